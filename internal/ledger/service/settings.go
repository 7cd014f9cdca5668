package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
)

// ReadDeleteAllMode reports whether a full-history collection was requested.  A
// missing row, an unreadable store or any value other than "1" reads as false.
func ReadDeleteAllMode(ctx context.Context, st *Stores) bool {
	var v string
	var found bool
	err := st.Legacy.retrier().WithRetry(ctx, "read DeleteAll", func(ctx context.Context) error {
		var err error
		v, found, err = st.Settings.GetSetting(ctx, store.SettingDeleteAll)
		return err
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("DeleteAll setting unreadable, assuming off")
		return false
	}
	return found && strings.TrimSpace(v) == "1"
}

// ClearDeleteAllMode resets the flag to "0", inserting the row if it is missing.
func ClearDeleteAllMode(ctx context.Context, st *Stores) error {
	err := st.Legacy.retrier().WithRetry(ctx, "clear DeleteAll", func(ctx context.Context) error {
		return st.Settings.PutSetting(ctx, store.SettingDeleteAll, "0")
	})
	if err != nil {
		return fmt.Errorf("clear DeleteAll: %w", err)
	}
	return nil
}
