package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// RawLogStore is an in-memory raw event table, unique on the natural key.
type RawLogStore struct {
	*faults

	mu     sync.Mutex
	rows   []types.RawLogEvent
	keys   map[types.EventKey]int
	nextID int64
}

func NewRawLogStore() *RawLogStore {
	return &RawLogStore{faults: newFaults(), keys: make(map[types.EventKey]int)}
}

var (
	_ store.RawLogStore        = (*RawLogStore)(nil)
	_ store.PendingRawLogStore = (*RawLogStore)(nil)
)

func (s *RawLogStore) HasRawLog(ctx context.Context, k types.EventKey) (bool, error) {
	if err := s.hit(ctx, OpHasRawLog); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k]
	return ok, nil
}

func (s *RawLogStore) InsertRawLog(ctx context.Context, ev types.RawLogEvent) (int64, error) {
	if err := s.hit(ctx, OpInsertRawLog); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[ev.Key()]; ok {
		return 0, store.ErrDuplicate
	}
	s.nextID++
	ev.ID = s.nextID
	ev.Reconciled = false
	s.keys[ev.Key()] = len(s.rows)
	s.rows = append(s.rows, ev)
	return ev.ID, nil
}

func (s *RawLogStore) PendingRawLogs(ctx context.Context) ([]types.RawLogEvent, error) {
	if err := s.hit(ctx, OpPendingRawLogs); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.RawLogEvent
	for _, ev := range s.rows {
		if !ev.Reconciled {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, comparePending)
	return out, nil
}

func comparePending(a, b types.RawLogEvent) int {
	for _, d := range [...]int{
		a.EnrollmentNumber - b.EnrollmentNumber,
		a.Year - b.Year, a.Month - b.Month, a.Day - b.Day,
		a.Hour - b.Hour, a.Minute - b.Minute, a.Second - b.Second,
	} {
		if d != 0 {
			return d
		}
	}
	return 0
}

// markReconciled flags the row with id.  Caller must not hold s.mu.
func (s *RawLogStore) markReconciled(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Reconciled = true
			return true
		}
	}
	return false
}

func (s *RawLogStore) exists(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.rows {
		if ev.ID == id {
			return true
		}
	}
	return false
}

// Rows returns a copy of all stored events.  Test-only helper.
func (s *RawLogStore) Rows() []types.RawLogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.RawLogEvent, len(s.rows))
	copy(out, s.rows)
	return out
}
