package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/device"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

var (
	ErrNoDevices     = errors.New("no devices selected")
	ErrRunInProgress = errors.New("a run is already in progress")
)

type RunState int

const (
	StateIdle RunState = iota
	StateCollecting
	StateCollected
	StateReconciling
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateCollected:
		return "collected"
	case StateReconciling:
		return "reconciling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// DeviceLogs hands out per-device loggers.  *logging.RunLog implements it.
type DeviceLogs interface {
	Device(number int) (zerolog.Logger, func())
}

type RunOptions struct {
	// Batch selects the devices to collect from; 0 means all.
	Batch int
}

type OrchestratorConfig struct {
	Opener   StoreOpener
	SDK      device.SDK
	Machines []types.MachineConfiguration
	Writer   *RawLogWriter
	Phase    ReconcilePhase

	// Journal, when set, receives every run summary and per-device collection.
	Journal     store.JournalStore
	JournalKeep int

	Logs    DeviceLogs
	Logger  zerolog.Logger
	Metrics *metrics.Pipeline
	Now     func() time.Time
}

// Orchestrator drives one pipeline run: collect from every selected device in
// turn, then reconcile.  Runs never overlap.
type Orchestrator struct {
	cfg OrchestratorConfig

	running sync.Mutex

	mu    sync.RWMutex
	state RunState
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Writer == nil {
		cfg.Writer = NewRawLogWriter(DefaultEarliestYear, cfg.Metrics)
	}
	return &Orchestrator{cfg: cfg}
}

// State reports where the current (or last) run is.
func (o *Orchestrator) State() RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(log zerolog.Logger, s RunState) {
	o.mu.Lock()
	from := o.state
	o.state = s
	o.mu.Unlock()
	log.Info().Str("from", from.String()).Str("to", s.String()).Msg("run state")
}

// Run executes one full pipeline run.  Device failures are recorded in the summary
// and never fail the run; a failed reconciliation does.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (types.RunSummary, error) {
	if !o.running.TryLock() {
		return types.RunSummary{}, ErrRunInProgress
	}
	defer o.running.Unlock()

	sum := types.RunSummary{
		ID:        uuid.NewString(),
		StartedAt: o.cfg.Now().UTC(),
		Batch:     opts.Batch,
	}
	log := o.cfg.Logger.With().Str("run", sum.ID).Logger()

	machines := types.SelectBatch(o.cfg.Machines, opts.Batch)
	if len(machines) == 0 {
		err := fmt.Errorf("batch %d: %w", opts.Batch, ErrNoDevices)
		log.Error().Err(err).Msg("nothing to collect")
		return o.finish(ctx, log, sum, StateFailed, err)
	}
	o.setState(log, StateIdle)

	sum.DeleteAllMode = o.readDeleteAllMode(ctx, log)
	log.Info().
		Bool("delete_all_mode", sum.DeleteAllMode).
		Int("devices", len(machines)).
		Int("batch", opts.Batch).
		Msg("run started")

	o.setState(log, StateCollecting)
	for _, m := range machines {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, log, sum, StateFailed, err)
		}
		sum.Devices = append(sum.Devices, o.collect(ctx, sum.ID, m, sum.DeleteAllMode))
	}
	o.setState(log, StateCollected)

	o.setState(log, StateReconciling)
	if err := o.cfg.Phase.Reconcile(ctx, sum.DeleteAllMode); err != nil {
		log.Error().Err(err).Msg("reconciliation failed")
		return o.finish(ctx, log, sum, StateFailed, fmt.Errorf("reconcile: %w", err))
	}
	return o.finish(ctx, log, sum, StateDone, nil)
}

// readDeleteAllMode opens the legacy store just for the read; any failure reads as
// false.  Openers without SettingsOpener fall back to opening both stores.
func (o *Orchestrator) readDeleteAllMode(ctx context.Context, log zerolog.Logger) bool {
	var (
		st  *Stores
		err error
	)
	if so, ok := o.cfg.Opener.(SettingsOpener); ok {
		st, err = so.OpenSettings(ctx)
	} else {
		st, err = o.cfg.Opener.OpenStores(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Msg("stores unavailable for DeleteAll read, assuming off")
		return false
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close stores after DeleteAll read")
		}
	}()
	return ReadDeleteAllMode(log.WithContext(ctx), st)
}

// collect runs one device end to end on its own store connections.  It never fails;
// problems end up in the result.  A panic from the SDK or a store is recovered and
// recorded as the device's failure so the next device still runs.
func (o *Orchestrator) collect(ctx context.Context, runID string, m types.MachineConfiguration, fullHistory bool) (res types.DeviceResult) {
	log, closeLog := o.deviceLogger(runID, m.Number)
	defer closeLog()
	ctx = log.WithContext(ctx)

	res = types.DeviceResult{Number: m.Number}
	fail := func(msg string, err error) types.DeviceResult {
		log.Error().Err(err).Int("read", res.Read).Int("inserted", res.Inserted).Msg(msg)
		o.cfg.Metrics.DeviceFailed(m.Number)
		res.Error = fmt.Sprintf("%s: %v", msg, err)
		return res
	}
	defer func() {
		if p := recover(); p != nil {
			res = fail("device panicked", fmt.Errorf("%v", p))
		}
	}()

	log.Info().Str("address", m.Address).Int("port", m.Port).Str("direction", m.Direction.String()).
		Msg("processing device")

	st, err := o.cfg.Opener.OpenStores(ctx)
	if err != nil {
		return fail("open stores", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close stores")
		}
	}()

	if err := device.Connect(o.cfg.SDK, m); err != nil {
		return fail("connect", err)
	}
	log.Info().Msg("connected")
	defer func() {
		device.Disconnect(o.cfg.SDK, log)
		log.Info().Msg("disconnected")
	}()

	events := device.NewReader(log).Read(o.cfg.SDK, m, fullHistory)
	res.Read = len(events)
	o.cfg.Metrics.EventRead(m.Number, len(events))

	for _, ev := range events {
		out, err := o.cfg.Writer.Save(ctx, ev, st.Legacy, st.Primary)
		if err != nil {
			return fail("save raw log", err)
		}
		switch {
		case out.Dropped:
			res.Dropped++
		case len(out.Inserted) > 0:
			res.Inserted++
		}
	}

	log.Info().Int("read", res.Read).Int("inserted", res.Inserted).Int("dropped", res.Dropped).
		Msg("device processed")
	if o.cfg.Journal != nil {
		if err := o.cfg.Journal.MarkDeviceCollected(ctx, m.Number, o.cfg.Now(), res.Read); err != nil {
			log.Warn().Err(err).Msg("journal device status")
		}
	}
	return res
}

func (o *Orchestrator) deviceLogger(runID string, number int) (zerolog.Logger, func()) {
	if o.cfg.Logs == nil {
		return o.cfg.Logger.With().Str("run", runID).Int("device", number).Logger(), func() {}
	}
	l, closeFn := o.cfg.Logs.Device(number)
	return l.With().Str("run", runID).Logger(), closeFn
}

func (o *Orchestrator) finish(ctx context.Context, log zerolog.Logger, sum types.RunSummary, final RunState, runErr error) (types.RunSummary, error) {
	sum.FinishedAt = o.cfg.Now().UTC()
	sum.State = final.String()
	if runErr != nil {
		sum.Error = runErr.Error()
	}
	o.setState(log, final)
	o.cfg.Metrics.RunFinished(sum.StartedAt, sum.FinishedAt, runErr == nil)

	if o.cfg.Journal != nil {
		// The summary is kept even when the run's own context was cancelled.
		jctx := context.WithoutCancel(ctx)
		if err := o.cfg.Journal.RecordRun(jctx, sum); err != nil {
			log.Warn().Err(err).Msg("journal run summary")
		}
		if o.cfg.JournalKeep > 0 {
			if n, err := o.cfg.Journal.PruneRuns(jctx, o.cfg.JournalKeep); err != nil {
				log.Warn().Err(err).Msg("prune run journal")
			} else if n > 0 {
				log.Debug().Int("pruned", n).Msg("run journal pruned")
			}
		}
	}

	failed := 0
	for _, d := range sum.Devices {
		if d.Error != "" {
			failed++
		}
	}
	log.Info().
		Str("state", sum.State).
		Int("devices", len(sum.Devices)).
		Int("device_failures", failed).
		Dur("elapsed", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("run finished")
	return sum, runErr
}
