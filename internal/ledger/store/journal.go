package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// JournalStore keeps the history of pipeline runs and the last successful collection
// per device.
type JournalStore interface {
	RecordRun(ctx context.Context, run types.RunSummary) error
	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]types.RunSummary, error)
	MarkDeviceCollected(ctx context.Context, number int, at time.Time, events int) error
	DeviceStatuses(ctx context.Context) ([]types.DeviceStatus, error)
	// DeviceStatus returns one device's status; found is false if it was never
	// collected.
	DeviceStatus(ctx context.Context, number int) (status types.DeviceStatus, found bool, err error)
	// PruneRuns keeps the newest keep runs and deletes the rest.
	PruneRuns(ctx context.Context, keep int) (int, error)
}
