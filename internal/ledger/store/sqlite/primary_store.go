// Package sqlite implements the primary store (raw logs and the attendance ledger)
// on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/BrandonDHaskell/bioledger/internal/db"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// Handle yields the current connection and writer.  *db.Conn satisfies it; a reopen
// swaps both, so the store fetches them on every call.
type Handle interface {
	DB() *sql.DB
	Writer() *dbpkg.Worker
}

type PrimaryStore struct {
	h Handle
}

func NewPrimaryStore(h Handle) *PrimaryStore {
	return &PrimaryStore{h: h}
}

var (
	_ store.RawLogStore        = (*PrimaryStore)(nil)
	_ store.PendingRawLogStore = (*PrimaryStore)(nil)
	_ store.AttendanceStore    = (*PrimaryStore)(nil)
)

func (s *PrimaryStore) HasRawLog(ctx context.Context, k types.EventKey) (bool, error) {
	var one int
	err := s.h.DB().QueryRowContext(ctx, `
SELECT 1 FROM raw_logs
WHERE logical_device = ? AND enrollment_number = ?
  AND ev_year = ? AND ev_month = ? AND ev_day = ?
  AND ev_hour = ? AND ev_minute = ? AND ev_second = ?
  AND direction = ?
LIMIT 1;
`, k.LogicalDevice, k.EnrollmentNumber,
		k.Year, k.Month, k.Day, k.Hour, k.Minute, k.Second,
		string(k.Direction),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasRawLog: %w", err)
	}
	return true, nil
}

// InsertRawLog stores ev unreconciled.  An existing natural key yields
// store.ErrDuplicate and leaves the stored row untouched.
func (s *PrimaryStore) InsertRawLog(ctx context.Context, ev types.RawLogEvent) (int64, error) {
	var id int64
	err := s.h.Writer().Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO raw_logs(
  logical_device, physical_device, enrollment_number, verify_mode,
  ev_year, ev_month, ev_day, ev_hour, ev_minute, ev_second,
  direction, reconciled
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
ON CONFLICT DO NOTHING;
`,
			ev.LogicalDevice, ev.PhysicalDevice, ev.EnrollmentNumber, ev.VerifyMode,
			ev.Year, ev.Month, ev.Day, ev.Hour, ev.Minute, ev.Second,
			string(ev.Direction),
		)
		if err != nil {
			return fmt.Errorf("InsertRawLog: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrDuplicate
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("InsertRawLog last id: %w", err)
		}
		return nil
	})
	return id, err
}

func (s *PrimaryStore) PendingRawLogs(ctx context.Context) ([]types.RawLogEvent, error) {
	rows, err := s.h.DB().QueryContext(ctx, `
SELECT id, logical_device, physical_device, enrollment_number, verify_mode,
       ev_year, ev_month, ev_day, ev_hour, ev_minute, ev_second, direction
FROM raw_logs
WHERE reconciled IS NULL OR reconciled = '0'
ORDER BY enrollment_number, ev_year, ev_month, ev_day, ev_hour, ev_minute, ev_second, id;
`)
	if err != nil {
		return nil, fmt.Errorf("PendingRawLogs query: %w", err)
	}
	defer rows.Close()

	var out []types.RawLogEvent
	for rows.Next() {
		var ev types.RawLogEvent
		var dir string
		if err := rows.Scan(
			&ev.ID, &ev.LogicalDevice, &ev.PhysicalDevice, &ev.EnrollmentNumber, &ev.VerifyMode,
			&ev.Year, &ev.Month, &ev.Day, &ev.Hour, &ev.Minute, &ev.Second, &dir,
		); err != nil {
			return nil, fmt.Errorf("PendingRawLogs scan: %w", err)
		}
		ev.Direction = types.Direction(dir)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PendingRawLogs rows: %w", err)
	}
	return out, nil
}

func (s *PrimaryStore) ReconcileTx(ctx context.Context, fn func(ctx context.Context, tx store.AttendanceTx) error) error {
	return s.h.Writer().Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, attendanceTx{tx: tx})
	})
}
