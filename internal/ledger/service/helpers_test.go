package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store/memory"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// memStores is a StoreOpener over one pair of in-memory stores that outlive every
// open/close, the way files outlive connections.
type memStores struct {
	legacy  *memory.LegacyStore
	primary *memory.PrimaryStore

	mu       sync.Mutex
	openErrs []error
	opens    int
	closes   int

	// primaryDown fails every OpenStores call; OpenSettings still works.
	primaryDown    bool
	settingsOpens  int
	settingsCloses int
}

func newMemStores() *memStores {
	return &memStores{legacy: memory.NewLegacyStore(), primary: memory.NewPrimaryStore()}
}

// failOpens queues errors for the next OpenStores calls.
func (m *memStores) failOpens(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs = append(m.openErrs, errs...)
}

// nextOpenErr pops the next queued open error.  The caller holds m.mu.
func (m *memStores) nextOpenErr() error {
	if len(m.openErrs) == 0 {
		return nil
	}
	err := m.openErrs[0]
	m.openErrs = m.openErrs[1:]
	return err
}

func (m *memStores) OpenStores(_ context.Context) (*service.Stores, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if err := m.nextOpenErr(); err != nil {
		return nil, err
	}
	if m.primaryDown {
		return nil, errors.New("primary store unavailable")
	}
	return &service.Stores{
		Legacy:     service.Sink{Name: "legacy", Raw: m.legacy},
		Primary:    service.Sink{Name: "primary", Raw: m.primary},
		Employees:  m.legacy,
		Settings:   m.legacy,
		Pending:    m.primary,
		Attendance: m.primary,
		CloseFunc: func() error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.closes++
			return nil
		},
	}, nil
}

func (m *memStores) OpenSettings(_ context.Context) (*service.Stores, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settingsOpens++
	if err := m.nextOpenErr(); err != nil {
		return nil, err
	}
	return &service.Stores{
		Legacy:    service.Sink{Name: "legacy", Raw: m.legacy},
		Employees: m.legacy,
		Settings:  m.legacy,
		CloseFunc: func() error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.settingsCloses++
			return nil
		},
	}, nil
}

func (m *memStores) counts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

func (m *memStores) settingsCounts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsOpens, m.settingsCloses
}

func (m *memStores) stores(t *testing.T) *service.Stores {
	t.Helper()

	st, err := m.OpenStores(context.Background())
	if err != nil {
		t.Fatalf("OpenStores: %v", err)
	}
	return st
}

// retryOnce mimics the connection retry policy: a transient error gets exactly one
// more attempt.
type retryOnce struct {
	transient error
	attempts  int
}

func (r *retryOnce) WithRetry(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	r.attempts++
	err := fn(ctx)
	if err == nil || !errors.Is(err, r.transient) {
		return err
	}
	r.attempts++
	return fn(ctx)
}

var errTransient = errors.New("connection reset by peer")

func ev(dev, enroll, year, month, day, hour, minute, second int, dir types.Direction) types.RawLogEvent {
	return types.RawLogEvent{
		LogicalDevice:    dev,
		PhysicalDevice:   dev,
		EnrollmentNumber: enroll,
		VerifyMode:       1,
		Year:             year, Month: month, Day: day,
		Hour: hour, Minute: minute, Second: second,
		Direction: dir,
	}
}

// insertRaw stores events in the primary raw table as the collector would.
func insertRaw(t *testing.T, m *memStores, evs ...types.RawLogEvent) {
	t.Helper()

	for _, e := range evs {
		if _, err := m.primary.InsertRawLog(context.Background(), e); err != nil {
			t.Fatalf("InsertRawLog: %v", err)
		}
	}
}
