// Package duckdb implements the legacy store on DuckDB: the raw event mirror, the
// enrollment directory and the pipeline settings.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	dbpkg "github.com/BrandonDHaskell/bioledger/internal/db"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// Handle yields the current connection and writer; see sqlite.Handle.
type Handle interface {
	DB() *sql.DB
	Writer() *dbpkg.Worker
}

type LegacyStore struct {
	h Handle
}

func NewLegacyStore(h Handle) *LegacyStore {
	return &LegacyStore{h: h}
}

var (
	_ store.RawLogStore       = (*LegacyStore)(nil)
	_ store.EmployeeDirectory = (*LegacyStore)(nil)
	_ store.SettingsStore     = (*LegacyStore)(nil)
)

func (s *LegacyStore) HasRawLog(ctx context.Context, k types.EventKey) (bool, error) {
	var n int
	if err := s.h.DB().QueryRowContext(ctx, `
SELECT COUNT(*) FROM raw_logs
WHERE logical_device = ? AND enrollment_number = ?
  AND ev_year = ? AND ev_month = ? AND ev_day = ?
  AND ev_hour = ? AND ev_minute = ? AND ev_second = ?
  AND direction = ?;
`, k.LogicalDevice, k.EnrollmentNumber,
		k.Year, k.Month, k.Day, k.Hour, k.Minute, k.Second,
		string(k.Direction),
	).Scan(&n); err != nil {
		return false, fmt.Errorf("HasRawLog: %w", err)
	}
	return n > 0, nil
}

// InsertRawLog mirrors ev.  A unique-index violation is reported as
// store.ErrDuplicate.
func (s *LegacyStore) InsertRawLog(ctx context.Context, ev types.RawLogEvent) (int64, error) {
	var id int64
	err := s.h.Writer().Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
INSERT INTO raw_logs(
  logical_device, physical_device, enrollment_number, verify_mode,
  ev_year, ev_month, ev_day, ev_hour, ev_minute, ev_second,
  direction, reconciled
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
RETURNING id;
`,
			ev.LogicalDevice, ev.PhysicalDevice, ev.EnrollmentNumber, ev.VerifyMode,
			ev.Year, ev.Month, ev.Day, ev.Hour, ev.Minute, ev.Second,
			string(ev.Direction),
		).Scan(&id)
		if err != nil {
			if isConstraintViolation(err) {
				return store.ErrDuplicate
			}
			return fmt.Errorf("InsertRawLog: %w", err)
		}
		return nil
	})
	return id, err
}

func isConstraintViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint error") || strings.Contains(msg, "duplicate key")
}

// LookupEmployeeCode returns the mapped code with surrounding whitespace removed.
func (s *LegacyStore) LookupEmployeeCode(ctx context.Context, enrollment int) (string, bool, error) {
	var code sql.NullString
	err := s.h.DB().QueryRowContext(ctx, `
SELECT employee_code FROM employees WHERE enrollment_number = ?;
`, enrollment).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("LookupEmployeeCode %d: %w", enrollment, err)
	}
	return strings.TrimSpace(code.String), true, nil
}

func (s *LegacyStore) GetSetting(ctx context.Context, name string) (string, bool, error) {
	var v sql.NullString
	err := s.h.DB().QueryRowContext(ctx, `
SELECT setting_value FROM settings WHERE setting_name = ?;
`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("GetSetting %s: %w", name, err)
	}
	return strings.TrimSpace(v.String), true, nil
}

func (s *LegacyStore) PutSetting(ctx context.Context, name, value string) error {
	return s.h.Writer().Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE settings SET setting_value = ? WHERE setting_name = ?;
`, value, name)
		if err != nil {
			return fmt.Errorf("PutSetting update: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO settings(setting_name, setting_value) VALUES (?, ?);
`, name, value); err != nil {
			return fmt.Errorf("PutSetting insert: %w", err)
		}
		return nil
	})
}
