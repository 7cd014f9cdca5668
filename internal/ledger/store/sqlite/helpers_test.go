package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/bioledger/internal/db"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each call gets a unique in-memory database.  The shared-cache URI
	// keeps the database alive for the lifetime of the connection pool.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		strings.ReplaceAll(t.Name(), "/", "_"),
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	// Match production: single connection for SQLite safety.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if err := db.Migrate(context.Background(), conn, db.KindPrimary); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// testHandle pins one connection and writer, standing in for a *db.Conn.
type testHandle struct {
	db *sql.DB
	w  *db.Worker
}

func (h testHandle) DB() *sql.DB { return h.db }
func (h testHandle) Writer() *db.Worker { return h.w }

func newTestHandle(t *testing.T) testHandle {
	t.Helper()

	conn := openTestDB(t)
	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return testHandle{db: conn, w: w}
}

func rawEvent(dev, enroll, day, hour int) types.RawLogEvent {
	return types.RawLogEvent{
		LogicalDevice:    dev,
		PhysicalDevice:   dev,
		EnrollmentNumber: enroll,
		VerifyMode:       1,
		Year:             2024, Month: 1, Day: day,
		Hour: hour, Minute: 0, Second: 0,
		Direction: types.DirectionIn,
	}
}

func countRows(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := conn.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
