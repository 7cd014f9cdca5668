// Package app wires configuration, stores, devices and the pipeline services into
// the objects the binaries run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/config"
	"github.com/BrandonDHaskell/bioledger/internal/db"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/device"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store/badger"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
	"github.com/BrandonDHaskell/bioledger/internal/logging"
	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

type Options struct {
	// Prefix names the log files.  Default: "collector".
	Prefix string

	// Console receives the human log stream.  Default: stdout.
	Console io.Writer

	// Phase replaces the configured reconcile phase.  Tests only.
	Phase service.ReconcilePhase
}

// App is one fully wired collector.
type App struct {
	Config   *config.Config
	Machines []types.MachineConfiguration
	SDK      device.SDK

	Log      *logging.RunLog
	Registry *prometheus.Registry
	Metrics  *metrics.Pipeline
	Manager  *db.Manager
	Opener   *StoreOpener
	Journal  *badger.JournalStore // nil when journal.path is empty

	Orchestrator *service.Orchestrator
}

// New builds the collector from cfg.  Nothing here talks to a device; the stores
// are only touched in dev, to seed the fixture's enrollment directory.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if opts.Prefix == "" {
		opts.Prefix = "collector"
	}

	rl, err := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Directory: cfg.LogDirectory,
		Prefix:    opts.Prefix,
		Console:   opts.Console,
	})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: rl}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	logger := rl.Logger()

	a.Machines, err = config.LoadDevices(cfg.Devices.File)
	if err != nil {
		return nil, err
	}

	fixture, err := device.LoadFixture(cfg.Devices.Fixture)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	for _, fd := range fixture.Devices {
		if _, err := config.FindDevice(a.Machines, fd.Number); err != nil {
			return nil, fmt.Errorf("%w: fixture: %v", config.ErrInvalidConfig, err)
		}
	}
	sim, err := fixture.Simulator()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	a.SDK = sim

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	a.Manager = NewManager(cfg, logger, a.Metrics)
	a.Opener = NewStoreOpener(a.Manager)

	if cfg.Env == "dev" {
		if err := seedLegacy(ctx, a.Manager, fixture.Employees); err != nil {
			return nil, err
		}
	}

	if cfg.Journal.Path != "" {
		a.Journal, err = badger.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
	}

	phase := opts.Phase
	if phase == nil {
		phase = newPhase(cfg, a.Opener, logger, a.Metrics)
	}

	oc := service.OrchestratorConfig{
		Opener:      a.Opener,
		SDK:         a.SDK,
		Machines:    a.Machines,
		Writer:      service.NewRawLogWriter(cfg.Ingest.EarliestYear, a.Metrics),
		Phase:       phase,
		JournalKeep: cfg.Journal.Keep,
		Logs:        rl,
		Logger:      logger,
		Metrics:     a.Metrics,
	}
	if a.Journal != nil {
		oc.Journal = a.Journal
	}
	a.Orchestrator = service.NewOrchestrator(oc)

	logger.Debug().
		Str("env", cfg.Env).
		Str("config", cfg.File).
		Int("devices", len(a.Machines)).
		Bool("isolated_reconciler", cfg.Reconciler.Isolated).
		Msg("collector wired")
	return a, nil
}

func newPhase(cfg *config.Config, opener service.StoreOpener, logger zerolog.Logger, m *metrics.Pipeline) service.ReconcilePhase {
	if cfg.Reconciler.Isolated {
		return &service.IsolatedPhase{
			Binary:       cfg.Reconciler.Binary,
			LogDirectory: cfg.LogDirectory,
			ConfigPath:   cfg.File,
			Log:          logger.With().Str("phase", "reconcile").Logger(),
		}
	}
	r := service.NewReconciler(service.NewEmployeeMapper(), logger, m)
	return service.NewInProcessPhase(opener, r, logger)
}

// TimeSync returns the clock synchronisation service over the configured devices.
func (a *App) TimeSync() *service.TimeSync {
	return service.NewTimeSync(a.SDK, a.Log, a.Log.Logger())
}

// WriteMetrics dumps the registry to metrics.textfile, if configured.
func (a *App) WriteMetrics() error {
	return metrics.WriteTextfile(a.Config.Metrics.Textfile, a.Registry)
}

func (a *App) Close() error {
	var errs []error
	if a.Journal != nil {
		errs = append(errs, a.Journal.Close())
	}
	if a.Log != nil {
		errs = append(errs, a.Log.Close())
	}
	return errors.Join(errs...)
}
