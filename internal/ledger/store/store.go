// Package store declares the persistence capabilities the pipeline depends on.
// Implementations live in the sqlite (primary), duckdb (legacy), badger (run
// journal) and memory (tests) subpackages.
package store

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// ErrDuplicate is returned by inserts that hit an existing natural key.
var ErrDuplicate = errors.New("duplicate natural key")

// RawLogStore holds raw device events, unique on their natural key.
type RawLogStore interface {
	HasRawLog(ctx context.Context, key types.EventKey) (bool, error)
	InsertRawLog(ctx context.Context, ev types.RawLogEvent) (int64, error)
}

// PendingRawLogStore lists raw events not yet folded into the attendance ledger,
// ordered by enrollment number then event time.
type PendingRawLogStore interface {
	PendingRawLogs(ctx context.Context) ([]types.RawLogEvent, error)
}

// AttendanceTx is the write surface available inside one reconciliation transaction.
type AttendanceTx interface {
	HasAttendance(ctx context.Context, key types.AttendanceKey) (bool, error)
	InsertAttendance(ctx context.Context, rec types.AttendanceRecord) error
	MarkReconciled(ctx context.Context, rawID int64) error
}

// AttendanceStore runs fn inside a single transaction.  fn returning an error rolls
// everything back; otherwise the commit result is returned.
type AttendanceStore interface {
	ReconcileTx(ctx context.Context, fn func(ctx context.Context, tx AttendanceTx) error) error
}
