package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var ErrFailedAfterRetry = errors.New("failed after retry")

// transientMarkers are lowercased fragments of socket-reset style errors that clear
// after one reconnect.  Anything else is treated as permanent.
var transientMarkers = []string{
	"forcibly closed by the remote host",
	"not a socket",
	"connection reset",
	"broken pipe",
	"bad connection",
	"database is closed",
}

// IsTransient reports whether err is worth one reconnect and retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// WithRetry runs fn once.  On a transient error it reopens the connection and runs
// fn exactly once more; whatever that second attempt returns is final.  Non-transient
// errors are returned as-is without a retry.
func (c *Conn) WithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !IsTransient(err) {
		return err
	}

	log := c.mgr.logger
	log.Warn().Err(err).Str("store", string(c.kind)).Str("op", op).Msg("transient store error, reopening connection")
	c.mgr.metrics.StoreRetry(string(c.kind))

	if rerr := c.mgr.Reopen(ctx, c); rerr != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrFailedAfterRetry, errors.Join(err, rerr))
	}

	if err := fn(ctx); err != nil {
		log.Error().Err(err).Str("store", string(c.kind)).Str("op", op).Msg("store operation failed after retry")
		return fmt.Errorf("%s: %w: %w", op, ErrFailedAfterRetry, err)
	}
	return nil
}

// WithRetryValue is WithRetry for operations that produce a value.
func WithRetryValue[T any](ctx context.Context, c *Conn, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.WithRetry(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
