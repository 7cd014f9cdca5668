package service

import (
	"context"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
)

// Retrier runs a store operation under the connection's retry policy.  *db.Conn
// implements it.
type Retrier interface {
	WithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// NoRetry runs the operation exactly once.
type NoRetry struct{}

func (NoRetry) WithRetry(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Sink is one destination of raw events.
type Sink struct {
	Name  string
	Raw   store.RawLogStore
	Retry Retrier
}

func (s Sink) retrier() Retrier {
	if s.Retry == nil {
		return NoRetry{}
	}
	return s.Retry
}

// Stores is one opened pair of legacy and primary stores.  Whoever opened it closes
// it; everything else only borrows.
type Stores struct {
	Legacy  Sink
	Primary Sink

	Employees  store.EmployeeDirectory // legacy
	Settings   store.SettingsStore     // legacy
	Pending    store.PendingRawLogStore
	Attendance store.AttendanceStore

	CloseFunc func() error
}

func (s *Stores) Close() error {
	if s == nil || s.CloseFunc == nil {
		return nil
	}
	return s.CloseFunc()
}

// StoreOpener opens a fresh pair of store connections.
type StoreOpener interface {
	OpenStores(ctx context.Context) (*Stores, error)
}

// StoreOpenerFunc adapts a function to StoreOpener.
type StoreOpenerFunc func(ctx context.Context) (*Stores, error)

func (f StoreOpenerFunc) OpenStores(ctx context.Context) (*Stores, error) { return f(ctx) }

// SettingsOpener is implemented by openers that can open the legacy store on its
// own.  The result carries Legacy, Employees and Settings; the primary side is empty.
type SettingsOpener interface {
	OpenSettings(ctx context.Context) (*Stores, error)
}
