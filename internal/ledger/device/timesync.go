package device

import (
	"fmt"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// SyncClock sets the device clock to the host time.  The device is disabled while
// its clock changes and re-enabled on every path out, including a panic.
func SyncClock(sdk SDK, m types.MachineConfiguration) (err error) {
	if !sdk.Enable(m.Number, false) {
		return &Error{Op: "disable device", Code: sdk.LastErrorCode()}
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("set device clock panicked: %v", p)
		}
		if !sdk.Enable(m.Number, true) && err == nil {
			err = &Error{Op: "enable device", Code: sdk.LastErrorCode()}
		}
	}()

	if !sdk.SetDeviceClock(m.Number) {
		return &Error{Op: "set device clock", Code: sdk.LastErrorCode()}
	}
	return nil
}
