// Package memory holds in-memory stores for tests and dev runs.  Every operation
// can be made to fail through Fail, which queues errors per operation name.
package memory

import (
	"context"
	"sync"
)

// Operation names accepted by Fail.
const (
	OpHasRawLog          = "HasRawLog"
	OpInsertRawLog       = "InsertRawLog"
	OpPendingRawLogs     = "PendingRawLogs"
	OpHasAttendance      = "HasAttendance"
	OpInsertAttendance   = "InsertAttendance"
	OpMarkReconciled     = "MarkReconciled"
	OpCommit             = "Commit"
	OpLookupEmployeeCode = "LookupEmployeeCode"
	OpGetSetting         = "GetSetting"
	OpPutSetting         = "PutSetting"
)

// faults is a per-operation queue of injected errors plus a call counter.
type faults struct {
	mu     sync.Mutex
	queued map[string][]error
	calls  map[string]int
}

func newFaults() *faults {
	return &faults{queued: make(map[string][]error), calls: make(map[string]int)}
}

// Fail queues errs for op; each call to op consumes one.  A nil entry lets that
// call through.
func (f *faults) Fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], errs...)
}

// Calls reports how many times op was invoked.
func (f *faults) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faults) hit(ctx context.Context, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	q := f.queued[op]
	if len(q) == 0 {
		return nil
	}
	f.queued[op] = q[1:]
	return q[0]
}
