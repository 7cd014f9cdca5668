package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// PrimaryStore pairs a raw event table with the attendance ledger so that a
// reconciliation transaction can mark raw rows.  Writes made inside ReconcileTx are
// staged and only applied on commit.
type PrimaryStore struct {
	*RawLogStore

	mu   sync.Mutex
	rows []types.AttendanceRecord
	keys map[types.AttendanceKey]struct{}
}

func NewPrimaryStore() *PrimaryStore {
	return &PrimaryStore{
		RawLogStore: NewRawLogStore(),
		keys:        make(map[types.AttendanceKey]struct{}),
	}
}

var _ store.AttendanceStore = (*PrimaryStore)(nil)

func (s *PrimaryStore) ReconcileTx(ctx context.Context, fn func(ctx context.Context, tx store.AttendanceTx) error) error {
	tx := &stagedTx{s: s, keys: make(map[types.AttendanceKey]struct{})}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := s.hit(ctx, OpCommit); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	for _, rec := range tx.inserts {
		s.keys[rec.Key()] = struct{}{}
		s.rows = append(s.rows, rec)
	}
	s.mu.Unlock()
	for _, id := range tx.marks {
		s.markReconciled(id)
	}
	return nil
}

// Attendance returns a copy of all committed records.  Test-only helper.
func (s *PrimaryStore) Attendance() []types.AttendanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AttendanceRecord, len(s.rows))
	copy(out, s.rows)
	return out
}

// SeedAttendance commits rec directly.  Test-only helper.
func (s *PrimaryStore) SeedAttendance(rec types.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[rec.Key()] = struct{}{}
	s.rows = append(s.rows, rec)
}

type stagedTx struct {
	s       *PrimaryStore
	inserts []types.AttendanceRecord
	keys    map[types.AttendanceKey]struct{}
	marks   []int64
}

func (t *stagedTx) HasAttendance(ctx context.Context, k types.AttendanceKey) (bool, error) {
	if err := t.s.hit(ctx, OpHasAttendance); err != nil {
		return false, err
	}
	if _, ok := t.keys[k]; ok {
		return true, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.keys[k]
	return ok, nil
}

func (t *stagedTx) InsertAttendance(ctx context.Context, rec types.AttendanceRecord) error {
	if err := t.s.hit(ctx, OpInsertAttendance); err != nil {
		return err
	}
	t.keys[rec.Key()] = struct{}{}
	t.inserts = append(t.inserts, rec)
	return nil
}

func (t *stagedTx) MarkReconciled(ctx context.Context, rawID int64) error {
	if err := t.s.hit(ctx, OpMarkReconciled); err != nil {
		return err
	}
	if !t.s.exists(rawID) {
		return errors.New("raw log not found")
	}
	t.marks = append(t.marks, rawID)
	return nil
}
