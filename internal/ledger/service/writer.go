package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

// DefaultEarliestYear is the cutoff below which events are never persisted.
const DefaultEarliestYear = 2023

// SaveOutcome reports what one Save did.
type SaveOutcome struct {
	Dropped   bool     // below the year cutoff; no store was touched
	Inserted  []string // sinks that took a new row
	Duplicate []string // sinks that already held the event
}

// RawLogWriter persists device events into both raw stores, each deduplicated on
// the natural key.
type RawLogWriter struct {
	earliestYear int
	metrics      *metrics.Pipeline
}

func NewRawLogWriter(earliestYear int, m *metrics.Pipeline) *RawLogWriter {
	if earliestYear <= 0 {
		earliestYear = DefaultEarliestYear
	}
	return &RawLogWriter{earliestYear: earliestYear, metrics: m}
}

// Save writes ev to legacy and primary.  Both are always attempted; their failures
// are returned joined.  Logs go to the logger carried by ctx.
func (w *RawLogWriter) Save(ctx context.Context, ev types.RawLogEvent, legacy, primary Sink) (SaveOutcome, error) {
	log := zerolog.Ctx(ctx)

	if ev.Year < w.earliestYear {
		log.Debug().
			Int("enrollment", ev.EnrollmentNumber).
			Str("at", ev.Stamp()).
			Int("earliest_year", w.earliestYear).
			Msg("event before cutoff year dropped")
		w.metrics.EventDropped()
		return SaveOutcome{Dropped: true}, nil
	}

	var out SaveOutcome
	var errs []error
	for _, sink := range []Sink{legacy, primary} {
		inserted, err := w.saveTo(ctx, ev, sink)
		switch {
		case err != nil:
			log.Error().Err(err).
				Str("store", sink.Name).
				Int("enrollment", ev.EnrollmentNumber).
				Str("at", ev.Stamp()).
				Msg("raw log write failed")
			w.metrics.RawWrite(sink.Name, metrics.ResultFailed)
			errs = append(errs, fmt.Errorf("%s store: %w", sink.Name, err))
		case inserted:
			w.metrics.RawWrite(sink.Name, metrics.ResultInserted)
			out.Inserted = append(out.Inserted, sink.Name)
		default:
			w.metrics.RawWrite(sink.Name, metrics.ResultDuplicate)
			out.Duplicate = append(out.Duplicate, sink.Name)
		}
	}
	return out, errors.Join(errs...)
}

func (w *RawLogWriter) saveTo(ctx context.Context, ev types.RawLogEvent, sink Sink) (bool, error) {
	var inserted bool
	err := sink.retrier().WithRetry(ctx, "save raw log", func(ctx context.Context) error {
		inserted = false
		has, err := sink.Raw.HasRawLog(ctx, ev.Key())
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		if _, err := sink.Raw.InsertRawLog(ctx, ev); err != nil {
			// Lost a race with another writer; the row is there either way.
			if errors.Is(err, store.ErrDuplicate) {
				return nil
			}
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}
