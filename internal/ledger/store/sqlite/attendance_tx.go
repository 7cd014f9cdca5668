package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// attendanceTx must only be used inside the ReconcileTx callback that created it.
type attendanceTx struct {
	tx *sql.Tx
}

func (a attendanceTx) HasAttendance(ctx context.Context, k types.AttendanceKey) (bool, error) {
	var one int
	err := a.tx.QueryRowContext(ctx, `
SELECT 1 FROM attendance
WHERE employee_code = ? AND entry_date = ? AND direction = ? AND entry_time = ?
LIMIT 1;
`, k.EmployeeCode, k.EntryDate, string(k.Direction), k.EntryTime).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasAttendance: %w", err)
	}
	return true, nil
}

func (a attendanceTx) InsertAttendance(ctx context.Context, rec types.AttendanceRecord) error {
	if _, err := a.tx.ExecContext(ctx, `
INSERT INTO attendance(
  employee_code, ticket_number, entry_date, direction, entry_time,
  transfer_flag, updated_by, location, error_message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.EmployeeCode, rec.TicketNumber, rec.EntryDate, string(rec.Direction), rec.EntryTime,
		rec.TransferFlag, nullable(rec.UpdatedBy), nullable(rec.Location), nullable(rec.ErrorMessage),
	); err != nil {
		return fmt.Errorf("InsertAttendance: %w", err)
	}
	return nil
}

func (a attendanceTx) MarkReconciled(ctx context.Context, rawID int64) error {
	res, err := a.tx.ExecContext(ctx, `
UPDATE raw_logs SET reconciled = '1' WHERE id = ?;
`, rawID)
	if err != nil {
		return fmt.Errorf("MarkReconciled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("MarkReconciled: raw log %d not found", rawID)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
