package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"
)

// Kind names one of the two stores.  The primary store (B) is SQLite and holds the
// raw table the reconciler consumes plus the attendance ledger; the legacy store (A)
// is DuckDB and holds a raw mirror, the enrollment directory and the settings row.
type Kind string

const (
	KindLegacy  Kind = "legacy"
	KindPrimary Kind = "primary"
)

func (k Kind) driver() string {
	if k == KindLegacy {
		return "duckdb"
	}
	return "sqlite"
}

type Config struct {
	Kind Kind
	Path string // file path; a "file:" URI is passed to SQLite untouched
}

// Open opens, pings and migrates one store.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Kind != KindLegacy && cfg.Kind != KindPrimary {
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join("data", string(cfg.Kind)+".db")
	}

	if !strings.HasPrefix(cfg.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s store dir: %w", cfg.Kind, err)
		}
	}

	db, err := sql.Open(cfg.Kind.driver(), dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("sql.Open %s: %w", cfg.Kind, err)
	}

	// One connection per store; the pipeline is single-threaded and the
	// reconciler transaction must not race a second pooled connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s ping: %w", cfg.Kind, err)
	}

	if err := Migrate(ctx, db, cfg.Kind); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func dsn(cfg Config) string {
	if cfg.Kind == KindLegacy {
		return cfg.Path + "?access_mode=read_write"
	}
	if strings.HasPrefix(cfg.Path, "file:") {
		return cfg.Path
	}
	// Per-connection PRAGMAs for modernc.org/sqlite.
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		cfg.Path,
	)
}
