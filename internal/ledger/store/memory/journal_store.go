package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

type JournalStore struct {
	mu      sync.Mutex
	runs    []types.RunSummary
	devices map[int]types.DeviceStatus
}

func NewJournalStore() *JournalStore {
	return &JournalStore{devices: make(map[int]types.DeviceStatus)}
}

var _ store.JournalStore = (*JournalStore)(nil)

func (s *JournalStore) RecordRun(_ context.Context, run types.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *JournalStore) RecentRuns(_ context.Context, limit int) ([]types.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.runs)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JournalStore) MarkDeviceCollected(_ context.Context, number int, at time.Time, events int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[number] = types.DeviceStatus{Number: number, LastCollected: at, LastEvents: events}
	return nil
}

func (s *JournalStore) DeviceStatuses(_ context.Context) ([]types.DeviceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DeviceStatus, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b types.DeviceStatus) int { return a.Number - b.Number })
	return out, nil
}

func (s *JournalStore) DeviceStatus(_ context.Context, number int) (types.DeviceStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.devices[number]
	return st, ok, nil
}

func (s *JournalStore) PruneRuns(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 0 || len(s.runs) <= keep {
		return 0, nil
	}
	n := len(s.runs) - keep
	s.runs = slices.Clone(s.runs[n:])
	return n, nil
}
