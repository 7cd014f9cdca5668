package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/config"
	"github.com/BrandonDHaskell/bioledger/internal/db"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store/duckdb"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store/sqlite"
	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

// NewManager builds the connection manager for the configured store paths.
func NewManager(cfg *config.Config, logger zerolog.Logger, m *metrics.Pipeline) *db.Manager {
	return db.NewManager(db.ManagerConfig{
		LegacyPath:       cfg.Legacy.Path,
		PrimaryPath:      cfg.Primary.Path,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}, logger, m)
}

// StoreOpener opens the legacy (DuckDB) and primary (SQLite) stores through a
// Manager.  Each call gets its own connections.
type StoreOpener struct {
	mgr *db.Manager
}

func NewStoreOpener(mgr *db.Manager) *StoreOpener {
	return &StoreOpener{mgr: mgr}
}

func (o *StoreOpener) OpenStores(ctx context.Context) (*service.Stores, error) {
	legacy, err := o.mgr.Open(ctx, db.KindLegacy)
	if err != nil {
		return nil, err
	}
	primary, err := o.mgr.Open(ctx, db.KindPrimary)
	if err != nil {
		_ = o.mgr.Close(legacy)
		return nil, err
	}

	ls := duckdb.NewLegacyStore(legacy)
	ps := sqlite.NewPrimaryStore(primary)

	return &service.Stores{
		Legacy:     service.Sink{Name: string(db.KindLegacy), Raw: ls, Retry: legacy},
		Primary:    service.Sink{Name: string(db.KindPrimary), Raw: ps, Retry: primary},
		Employees:  ls,
		Settings:   ls,
		Pending:    ps,
		Attendance: ps,
		CloseFunc: func() error {
			return errors.Join(o.mgr.Close(primary), o.mgr.Close(legacy))
		},
	}, nil
}

// OpenSettings opens only the legacy store, for reads of the settings table.
func (o *StoreOpener) OpenSettings(ctx context.Context) (*service.Stores, error) {
	legacy, err := o.mgr.Open(ctx, db.KindLegacy)
	if err != nil {
		return nil, err
	}
	ls := duckdb.NewLegacyStore(legacy)
	return &service.Stores{
		Legacy:    service.Sink{Name: string(db.KindLegacy), Raw: ls, Retry: legacy},
		Employees: ls,
		Settings:  ls,
		CloseFunc: func() error { return o.mgr.Close(legacy) },
	}, nil
}

var _ service.SettingsOpener = (*StoreOpener)(nil)

// seedLegacy writes the settings row and the fixture's enrollment directory into
// the legacy store.
func seedLegacy(ctx context.Context, mgr *db.Manager, employees map[int]string) error {
	conn, err := mgr.Open(ctx, db.KindLegacy)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close(conn) }()

	if err := db.SeedDev(ctx, conn.DB(), db.SeedDevOptions{Employees: employees}); err != nil {
		return fmt.Errorf("seed legacy store: %w", err)
	}
	return nil
}
