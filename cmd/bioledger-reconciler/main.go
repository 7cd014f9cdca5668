package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BrandonDHaskell/bioledger/internal/app"
	"github.com/BrandonDHaskell/bioledger/internal/config"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run reconciles pending raw logs on fresh store connections and, in DeleteAll
// mode, clears the flag afterwards.  Exit code 0 means both succeeded.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bioledger-reconciler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		deleteAllMode bool
		logDirectory  string
		configPath    string
	)
	fs.BoolVar(&deleteAllMode, "deleteAllMode", false, "clear the DeleteAll flag after a successful reconciliation")
	fs.StringVar(&logDirectory, "logDirectory", "", "directory for the reconciler log (required)")
	fs.StringVar(&configPath, "config", "", "path to YAML config (default: $BIOLEDGER_CONFIG or ./bioledger.yaml)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return 1
	}

	if logDirectory == "" {
		fmt.Fprintln(stderr, "--logDirectory is required")
		fs.Usage()
		return 1
	}
	if fi, err := os.Stat(logDirectory); err != nil || !fi.IsDir() {
		fmt.Fprintf(stderr, "log directory %q does not exist\n", logDirectory)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}

	rl, err := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Directory: logDirectory,
		Prefix:    "reconciler",
		Console:   stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}
	defer rl.Close()
	log := rl.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Bool("delete_all_mode", deleteAllMode).Msg("reconciler started")

	opener := app.NewStoreOpener(app.NewManager(cfg, log, nil))
	r := service.NewReconciler(service.NewEmployeeMapper(), log, nil)
	if err := service.NewInProcessPhase(opener, r, log).Reconcile(ctx, deleteAllMode); err != nil {
		log.Error().Err(err).Msg("reconciler failed")
		return 1
	}

	log.Info().Msg("reconciler finished")
	return 0
}
