package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

type ManagerConfig struct {
	LegacyPath  string
	PrimaryPath string

	// FailureThreshold is the number of consecutive failed opens of one store
	// before further opens fail fast.  Defaults to 3.
	FailureThreshold uint32

	// OpenTimeout is how long a tripped store stays closed to new opens.
	// Defaults to 5m, longer than a normal run.
	OpenTimeout time.Duration
}

// Manager owns the lifetime of store connections.  Everything else borrows a *Conn
// for the duration of one call and never closes it.
type Manager struct {
	paths    map[Kind]string
	breakers map[Kind]*gobreaker.CircuitBreaker[*sql.DB]
	logger   zerolog.Logger
	metrics  *metrics.Pipeline
}

func NewManager(cfg ManagerConfig, logger zerolog.Logger, m *metrics.Pipeline) *Manager {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 5 * time.Minute
	}

	mgr := &Manager{
		paths: map[Kind]string{
			KindLegacy:  cfg.LegacyPath,
			KindPrimary: cfg.PrimaryPath,
		},
		breakers: make(map[Kind]*gobreaker.CircuitBreaker[*sql.DB], 2),
		logger:   logger,
		metrics:  m,
	}

	for _, kind := range []Kind{KindLegacy, KindPrimary} {
		threshold := cfg.FailureThreshold
		mgr.metrics.BreakerState(string(kind), 0)
		mgr.breakers[kind] = gobreaker.NewCircuitBreaker[*sql.DB](gobreaker.Settings{
			Name:        "store-" + string(kind),
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("store open breaker state change")
				mgr.metrics.BreakerState(string(kind), breakerValue(to))
			},
		})
	}

	return mgr
}

func breakerValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}

// Conn is one owned store connection.  A reopen swaps the underlying *sql.DB and
// Worker in place, so borrowers must fetch them through DB and Writer on every call.
type Conn struct {
	kind Kind
	mgr  *Manager

	mu     sync.RWMutex
	db     *sql.DB
	writer *Worker
	gen    int
	closed bool
}

func (c *Conn) Kind() Kind { return c.kind }

func (c *Conn) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

func (c *Conn) Writer() *Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writer
}

// Generation counts how many times the connection has been reopened.
func (c *Conn) Generation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (m *Manager) Open(ctx context.Context, kind Kind) (*Conn, error) {
	db, err := m.open(ctx, kind)
	if err != nil {
		return nil, err
	}
	return &Conn{kind: kind, mgr: m, db: db, writer: NewWorker(db)}, nil
}

func (m *Manager) open(ctx context.Context, kind Kind) (*sql.DB, error) {
	cb, ok := m.breakers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
	db, err := cb.Execute(func() (*sql.DB, error) {
		return Open(ctx, Config{Kind: kind, Path: m.paths[kind]})
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", kind, err)
	}
	return db, nil
}

// Close releases the connection.  Closing twice is a no-op.
func (m *Manager) Close(c *Conn) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.writer.Close()
	return c.db.Close()
}

// Reopen replaces the connection's handle with a fresh one.  The old handle is closed
// first; its close error is ignored since the handle is presumed broken.
func (m *Manager) Reopen(ctx context.Context, c *Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("reopen of closed connection")
	}

	c.writer.Close()
	_ = c.db.Close()

	db, err := m.open(ctx, c.kind)
	if err != nil {
		// Leave the Conn closed so later calls fail fast instead of using a dead handle.
		c.closed = true
		return err
	}
	c.db = db
	c.writer = NewWorker(db)
	c.gen++
	m.logger.Info().Str("store", string(c.kind)).Int("generation", c.gen).Msg("store connection reopened")
	return nil
}
