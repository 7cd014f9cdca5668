package db_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/db"
)

// newTestManager returns a Manager whose stores live in files under a fresh temp dir.
func newTestManager(t *testing.T) *db.Manager {
	t.Helper()

	dir := t.TempDir()
	return db.NewManager(db.ManagerConfig{
		LegacyPath:  filepath.Join(dir, "legacy.duckdb"),
		PrimaryPath: filepath.Join(dir, "primary.db"),
	}, zerolog.Nop(), nil)
}

// openConn opens kind through m and closes it when the test finishes.
func openConn(t *testing.T, m *db.Manager, kind db.Kind) *db.Conn {
	t.Helper()

	c, err := m.Open(context.Background(), kind)
	if err != nil {
		t.Fatalf("Open %s: %v", kind, err)
	}
	t.Cleanup(func() { _ = m.Close(c) })
	return c
}

type resetError struct{ n int }

func (e resetError) Error() string {
	return fmt.Sprintf("read tcp: An existing connection was forcibly closed by the remote host (%d)", e.n)
}
