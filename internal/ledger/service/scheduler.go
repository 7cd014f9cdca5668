package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// Runner executes one pipeline run.  *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (types.RunSummary, error)
}

// RunScheduler runs the pipeline on a fixed interval as a suture.Service.  Runs
// happen inline in Serve, so a slow run delays the next tick instead of overlapping
// with it.
type RunScheduler struct {
	runner   Runner
	opts     RunOptions
	interval time.Duration
	log      zerolog.Logger
}

// NewRunScheduler defaults the interval to 15 minutes.
func NewRunScheduler(r Runner, opts RunOptions, interval time.Duration, log zerolog.Logger) *RunScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &RunScheduler{runner: r, opts: opts, interval: interval, log: log}
}

// Serve runs immediately on startup, then on every tick until ctx is cancelled.
func (s *RunScheduler) Serve(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Int("batch", s.opts.Batch).Msg("run scheduler started")

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("run scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RunScheduler) String() string { return "run-scheduler" }

func (s *RunScheduler) runOnce(ctx context.Context) {
	sum, err := s.runner.Run(ctx, s.opts)
	if err != nil {
		s.log.Error().Err(err).Str("run", sum.ID).Msg("scheduled run failed")
		return
	}
	s.log.Info().Str("run", sum.ID).Msg("scheduled run complete")
}
