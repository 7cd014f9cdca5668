package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
)

// LegacyStore is the in-memory legacy store: raw mirror, enrollment directory and
// settings.  New stores start with DeleteAll = "0", as a migrated database does.
type LegacyStore struct {
	*RawLogStore

	mu        sync.Mutex
	employees map[int]string
	settings  map[string]string
}

func NewLegacyStore() *LegacyStore {
	return &LegacyStore{
		RawLogStore: NewRawLogStore(),
		employees:   make(map[int]string),
		settings:    map[string]string{store.SettingDeleteAll: "0"},
	}
}

var (
	_ store.EmployeeDirectory = (*LegacyStore)(nil)
	_ store.SettingsStore     = (*LegacyStore)(nil)
)

// SetEmployee maps enrollment to code.  Test-only helper.
func (s *LegacyStore) SetEmployee(enrollment int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[enrollment] = code
}

func (s *LegacyStore) LookupEmployeeCode(ctx context.Context, enrollment int) (string, bool, error) {
	if err := s.hit(ctx, OpLookupEmployeeCode); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.employees[enrollment]
	return strings.TrimSpace(code), ok, nil
}

func (s *LegacyStore) GetSetting(ctx context.Context, name string) (string, bool, error) {
	if err := s.hit(ctx, OpGetSetting); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[name]
	return v, ok, nil
}

func (s *LegacyStore) PutSetting(ctx context.Context, name, value string) error {
	if err := s.hit(ctx, OpPutSetting); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[name] = value
	return nil
}

// DeleteSetting removes a settings row.  Test-only helper.
func (s *LegacyStore) DeleteSetting(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, name)
}
