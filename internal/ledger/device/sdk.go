// Package device drives biometric terminals through the vendor SDK capability.
//
// The SDK handle is stateful and not safe for concurrent use: one caller owns it and
// talks to one device at a time.  Nothing here locks; the orchestrator guarantees the
// sequential discipline.
package device

import "github.com/BrandonDHaskell/bioledger/internal/ledger/types"

// SDK is the opaque device capability.  Boolean results mirror the vendor API: false
// means "look at LastErrorCode".
type SDK interface {
	SetConnectionParams(address string, port, password int) bool
	Open(machine int) bool
	Close()
	Enable(machine int, on bool) bool
	SetDeviceClock(machine int) bool
	LastErrorCode() int
	SetReadMark(value int) bool
	ReadUnread(machine int) bool
	ReadAll(machine int) bool
	NextUnread(machine int) (bool, types.RawLogEvent)
	NextAll(machine int) (bool, types.RawLogEvent)
}
