package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/BrandonDHaskell/bioledger/internal/app"
	"github.com/BrandonDHaskell/bioledger/internal/config"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

const usage = `usage: bioledger-collector [run|timesync|status|serve] [flags]

  run       collect from every device (or one batch) and reconcile (default)
  timesync  set every device clock to the host time
  status    print recent runs and per-device collection as JSON
  serve     run on a schedule and expose the status API

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("bioledger-collector "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	var (
		configPath string
		batch      int
		limit      int
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config (default: $BIOLEDGER_CONFIG or ./bioledger.yaml)")
	fs.IntVar(&batch, "batch", 0, "device batch to process (0 = all)")
	fs.IntVar(&limit, "limit", 20, "runs to show (status)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	switch cmd {
	case "run", "timesync", "status", "serve":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// status owns stdout for its JSON
	console := stdout
	if cmd == "status" {
		console = stderr
	}
	a, err := app.New(ctx, cfg, app.Options{Console: console})
	if err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer a.Close()
	log := a.Log.Logger()

	switch cmd {
	case "run":
		_, err = a.Orchestrator.Run(ctx, service.RunOptions{Batch: batch})
		if merr := a.WriteMetrics(); merr != nil {
			log.Warn().Err(merr).Str("path", cfg.Metrics.Textfile).Msg("write metrics textfile")
		}

	case "timesync":
		var res service.TimeSyncResult
		res, err = a.TimeSync().Run(ctx, types.SelectBatch(a.Machines, batch))
		if err == nil && res.Synced == 0 && len(res.Failed) > 0 {
			err = fmt.Errorf("no device synchronised (failed: %v)", res.Failed)
		}

	case "status":
		err = printStatus(ctx, stdout, a, limit)

	case "serve":
		log.Info().Str("addr", cfg.Serve.Addr).Dur("interval", cfg.Serve.Interval).Msg("serve mode")
		err = a.Supervisor(service.RunOptions{Batch: batch}).Serve(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("failed")
		return 1
	}
	return 0
}

type statusReport struct {
	Runs    []types.RunSummary   `json:"runs"`
	Devices []types.DeviceStatus `json:"devices"`
}

func printStatus(ctx context.Context, w io.Writer, a *app.App, limit int) error {
	if a.Journal == nil {
		return errors.New("run journal is not configured (journal.path)")
	}
	runs, err := a.Journal.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	devices, err := a.Journal.DeviceStatuses(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(statusReport{Runs: runs, Devices: devices}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
