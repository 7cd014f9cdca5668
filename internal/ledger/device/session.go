package device

import (
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// Connect points the SDK at the machine and opens the link.
func Connect(sdk SDK, m types.MachineConfiguration) error {
	if !sdk.SetConnectionParams(m.Address, m.Port, m.Password) {
		return &Error{Op: "set connection params", Code: sdk.LastErrorCode()}
	}
	if !sdk.Open(m.Number) {
		return &Error{Op: "open", Code: sdk.LastErrorCode()}
	}
	return nil
}

// Disconnect closes the link.  It never fails: a panic from the SDK is logged and
// swallowed since the next device must still be reachable.
func Disconnect(sdk SDK, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("device close panicked")
		}
	}()
	sdk.Close()
}
