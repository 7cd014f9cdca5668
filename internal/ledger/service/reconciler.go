package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

type ReconcileResult struct {
	Processed int // attendance rows inserted
	Skipped   int // raw rows whose attendance row already existed
	Errors    int // raw rows left pending
}

// Reconciler folds pending raw events into the attendance ledger in one
// transaction on the primary store.
type Reconciler struct {
	mapper  *EmployeeMapper
	log     zerolog.Logger
	metrics *metrics.Pipeline
}

func NewReconciler(mapper *EmployeeMapper, log zerolog.Logger, m *metrics.Pipeline) *Reconciler {
	if mapper == nil {
		mapper = NewEmployeeMapper()
	}
	return &Reconciler{mapper: mapper, log: log, metrics: m}
}

// Reconcile fetches the pending raw rows before opening the transaction, then
// processes each row inside it.  A row that fails is logged, counted and left
// unmarked; the rest go on.  A fetch or commit failure rolls everything back and is
// returned.
func (r *Reconciler) Reconcile(ctx context.Context, st *Stores) (ReconcileResult, error) {
	ctx = r.log.WithContext(ctx)

	var pending []types.RawLogEvent
	err := st.Primary.retrier().WithRetry(ctx, "fetch pending raw logs", func(ctx context.Context) error {
		var err error
		pending, err = st.Pending.PendingRawLogs(ctx)
		return err
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("fetch pending raw logs: %w", err)
	}

	r.log.Info().Int("pending", len(pending)).Msg("reconciliation started")
	if len(pending) == 0 {
		return ReconcileResult{}, nil
	}

	var res ReconcileResult
	err = st.Attendance.ReconcileTx(ctx, func(ctx context.Context, tx store.AttendanceTx) error {
		res = ReconcileResult{}
		for _, ev := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			skipped, err := r.reconcileRow(ctx, tx, st.Employees, ev)
			switch {
			case err != nil:
				res.Errors++
				r.log.Error().Err(err).
					Int64("raw_id", ev.ID).
					Int("enrollment", ev.EnrollmentNumber).
					Str("at", ev.Stamp()).
					Msg("raw log not reconciled")
			case skipped:
				res.Skipped++
			default:
				res.Processed++
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Msg("reconciliation rolled back, raw logs stay pending")
		return ReconcileResult{}, fmt.Errorf("reconcile transaction: %w", err)
	}

	r.metrics.ReconcileRow(metrics.RowProcessed, res.Processed)
	r.metrics.ReconcileRow(metrics.RowSkipped, res.Skipped)
	r.metrics.ReconcileRow(metrics.RowError, res.Errors)
	r.log.Info().
		Int("processed", res.Processed).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Msg("reconciliation committed")
	return res, nil
}

func (r *Reconciler) reconcileRow(ctx context.Context, tx store.AttendanceTx, dir store.EmployeeDirectory, ev types.RawLogEvent) (skipped bool, err error) {
	code := r.mapper.Resolve(ctx, ev.EnrollmentNumber, dir)

	rec, err := types.NewAttendanceRecord(code, ev)
	if err != nil {
		return false, err
	}

	exists, err := tx.HasAttendance(ctx, rec.Key())
	if err != nil {
		return false, err
	}
	if !exists {
		if err := tx.InsertAttendance(ctx, rec); err != nil {
			return false, err
		}
	}

	if err := tx.MarkReconciled(ctx, ev.ID); err != nil {
		return false, err
	}
	return exists, nil
}
