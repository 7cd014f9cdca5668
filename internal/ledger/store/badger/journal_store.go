// Package badger keeps the run journal in an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

const (
	runPrefix    = "run/"
	devicePrefix = "device/"
)

// JournalStore stores one JSON value per run under run/<start nanos>/<id>, so key
// order is start order, and one per device under device/<number>.
type JournalStore struct {
	db *badger.DB
}

// Open opens the journal at dir.  An empty dir keeps the journal in memory.
func Open(dir string) (*JournalStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JournalStore{db: db}, nil
}

func (s *JournalStore) Close() error {
	return s.db.Close()
}

var _ store.JournalStore = (*JournalStore)(nil)

func runKey(run types.RunSummary) []byte {
	return fmt.Appendf(nil, "%s%020d/%s", runPrefix, run.StartedAt.UnixNano(), run.ID)
}

func deviceKey(number int) []byte {
	return fmt.Appendf(nil, "%s%06d", devicePrefix, number)
}

func (s *JournalStore) RecordRun(_ context.Context, run types.RunSummary) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run), data)
	})
}

func (s *JournalStore) RecentRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	var out []types.RunSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(runPrefix + "\xff")); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var run types.RunSummary
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("RecentRuns: %w", err)
	}
	return out, nil
}

func (s *JournalStore) MarkDeviceCollected(_ context.Context, number int, at time.Time, events int) error {
	data, err := json.Marshal(types.DeviceStatus{Number: number, LastCollected: at.UTC(), LastEvents: events})
	if err != nil {
		return fmt.Errorf("marshal device status: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(deviceKey(number), data)
	})
}

func (s *JournalStore) DeviceStatuses(_ context.Context) ([]types.DeviceStatus, error) {
	var out []types.DeviceStatus
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(devicePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var st types.DeviceStatus
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("DeviceStatuses: %w", err)
	}
	return out, nil
}

func (s *JournalStore) DeviceStatus(_ context.Context, number int) (types.DeviceStatus, bool, error) {
	var st types.DeviceStatus
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(deviceKey(number))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.DeviceStatus{}, false, nil
	}
	if err != nil {
		return types.DeviceStatus{}, false, fmt.Errorf("DeviceStatus %d: %w", number, err)
	}
	return st, true, nil
}

func (s *JournalStore) PruneRuns(_ context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		for it.Seek([]byte(runPrefix + "\xff")); it.Valid(); it.Next() {
			seen++
			if seen > keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("PruneRuns scan: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("PruneRuns delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("PruneRuns flush: %w", err)
	}
	return len(stale), nil
}
