package device_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/device"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// ═══════════════════════════════════════════════════════════════════════
// Reader
// ═══════════════════════════════════════════════════════════════════════

func TestRead_EmptyDeviceIsNotAnError(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{})
	r, buf := newReader()

	got := r.Read(sim, m, false)
	if len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
	if strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("end-of-data must not be logged as an error:\n%s", buf)
	}
	if !strings.Contains(buf.String(), "no logs on device") {
		t.Errorf("expected informational line:\n%s", buf)
	}
}

func TestRead_StampsLogicalNumberAndDirection(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{Logs: []types.RawLogEvent{
		event(42, 10, 9, 0, 0),
		event(43, 10, 9, 1, 0),
	}})
	m.Direction = types.DirectionOut
	r, _ := newReader()

	got := r.Read(sim, m, false)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	for _, ev := range got {
		if ev.LogicalDevice != m.Number {
			t.Errorf("LogicalDevice = %d, want %d", ev.LogicalDevice, m.Number)
		}
		if ev.Direction != types.DirectionOut {
			t.Errorf("Direction = %q, want O", ev.Direction)
		}
		if ev.PhysicalDevice != 9 {
			t.Errorf("PhysicalDevice = %d, want the device-reported 9", ev.PhysicalDevice)
		}
	}
	if sim.ReadMarks(m.Number) != 1 {
		t.Errorf("read mark set %d times, want 1", sim.ReadMarks(m.Number))
	}
}

func TestRead_IncrementalSkipsAlreadyReadRecords(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{Logs: []types.RawLogEvent{
		event(42, 10, 9, 0, 0),
	}})
	r, _ := newReader()

	if got := r.Read(sim, m, false); len(got) != 1 {
		t.Fatalf("first read: got %d events, want 1", len(got))
	}
	if got := r.Read(sim, m, false); len(got) != 0 {
		t.Fatalf("second read: got %d events, want 0", len(got))
	}

	sim.AppendLogs(m.Number, event(44, 10, 17, 0, 0))
	got := r.Read(sim, m, false)
	if len(got) != 1 || got[0].EnrollmentNumber != 44 {
		t.Fatalf("third read: want only the new record, got %+v", got)
	}

	if got := r.Read(sim, m, true); len(got) != 2 {
		t.Errorf("full-history read: got %d events, want 2", len(got))
	}
}

func TestRead_RequestErrorYieldsNothing(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{
		Logs:          []types.RawLogEvent{event(42, 10, 9, 0, 0)},
		ReadErrorCode: device.CodeReadFail,
	})
	r, buf := newReader()

	if got := r.Read(sim, m, false); len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"code":3`) {
		t.Errorf("expected error line with code 3:\n%s", buf)
	}
}

func TestRead_PanicKeepsPartialBatch(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{
		Logs: []types.RawLogEvent{
			event(1, 10, 9, 0, 0),
			event(2, 10, 9, 0, 1),
			event(3, 10, 9, 0, 2),
		},
		PanicAfter: 2,
	})
	r, buf := newReader()

	got := r.Read(sim, m, false)
	if len(got) != 2 {
		t.Fatalf("expected 2 events collected before the fault, got %d", len(got))
	}
	if !strings.Contains(buf.String(), "simulated SDK fault") {
		t.Errorf("expected the fault to be logged:\n%s", buf)
	}
}

// ═══════════════════════════════════════════════════════════════════════
// Session and clock
// ═══════════════════════════════════════════════════════════════════════

func TestConnect_UnreachableReportsCommPort(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{Unreachable: true})

	err := device.Connect(sim, m)
	var de *device.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *device.Error, got %v", err)
	}
	if de.Code != device.CodeCommPort {
		t.Errorf("Code = %d, want %d", de.Code, device.CodeCommPort)
	}
}

func TestConnect_RejectsMissingAddress(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{})
	m.Address = ""

	var de *device.Error
	if err := device.Connect(sim, m); !errors.As(err, &de) || de.Code != device.CodeInvalidParam {
		t.Fatalf("expected invalid param error, got %v", err)
	}
}

func TestDisconnect_ClosesHandle(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{})
	device.Disconnect(sim, zerolog.Nop())
	if sim.Connected() != 0 {
		t.Errorf("handle still open against %d", sim.Connected())
	}
	if err := device.Connect(sim, m); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
}

func TestSyncClock_SetsClockAndReenables(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{})
	at := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	sim.Now = func() time.Time { return at }

	if err := device.SyncClock(sim, m); err != nil {
		t.Fatalf("SyncClock: %v", err)
	}
	if !sim.ClockSetAt(m.Number).Equal(at) {
		t.Errorf("clock set at %v, want %v", sim.ClockSetAt(m.Number), at)
	}
	if !sim.Enabled(m.Number) {
		t.Error("device left disabled")
	}
}

func TestSyncClock_ReenablesOnFailure(t *testing.T) {
	sim, m := newSim(t, &device.SimulatedDevice{ClockFails: true})

	err := device.SyncClock(sim, m)
	var de *device.Error
	if !errors.As(err, &de) || de.Code != device.CodeWriteFail {
		t.Fatalf("expected write-fail error, got %v", err)
	}
	if !sim.Enabled(m.Number) {
		t.Error("device left disabled after failed clock set")
	}
}

func TestErrorMessage_UnknownCode(t *testing.T) {
	if got := device.ErrorMessage(99); !strings.Contains(got, "99") {
		t.Errorf("ErrorMessage(99) = %q", got)
	}
	if got := device.ErrorMessage(device.CodeLogEnd); !strings.HasPrefix(got, "ERR_LOG_END") {
		t.Errorf("ErrorMessage(6) = %q", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════
// Fixtures
// ═══════════════════════════════════════════════════════════════════════

func TestLoadFixture_BuildsSimulator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	body := `
employees:
  42: E042
devices:
  - number: 1
    logs:
      - enrollment: 42
        physical: 9
        verify_mode: 1
        time: "2024-01-10 09:00:00"
      - enrollment: 42
        physical: 9
        time: "2024-13-40 25:00:00"
  - number: 2
    unreachable: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := device.LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if f.Employees[42] != "E042" {
		t.Errorf("employees = %v", f.Employees)
	}
	sim, err := f.Simulator()
	if err != nil {
		t.Fatalf("Simulator: %v", err)
	}

	m := machine(1)
	if err := device.Connect(sim, m); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	r, _ := newReader()
	got := r.Read(sim, m, true)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Month != 13 || got[1].Hour != 25 {
		t.Errorf("invalid components must survive verbatim, got %s", got[1].Stamp())
	}

	if err := device.Connect(sim, machine(2)); err == nil {
		t.Error("expected unreachable device 2 to fail")
	}
}

// ── Test helpers ─────────────────────────────────────────────────────────

func machine(n int) types.MachineConfiguration {
	return types.MachineConfiguration{
		Number:    n,
		Address:   "10.0.0.1",
		Port:      4370,
		Direction: types.DirectionIn,
		Batch:     1,
	}
}

// newSim registers d as machine 1 and connects to it unless it is unreachable.
func newSim(t *testing.T, d *device.SimulatedDevice) (*device.Simulator, types.MachineConfiguration) {
	t.Helper()

	sim := device.NewSimulator()
	sim.AddDevice(1, d)
	m := machine(1)
	if !d.Unreachable {
		if err := device.Connect(sim, m); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	return sim, m
}

func newReader() (*device.Reader, *bytes.Buffer) {
	var buf bytes.Buffer
	return device.NewReader(zerolog.New(&buf)), &buf
}

func event(enroll, day, hour, minute, second int) types.RawLogEvent {
	return types.RawLogEvent{
		PhysicalDevice:   9,
		EnrollmentNumber: enroll,
		VerifyMode:       1,
		Year:             2024, Month: 1, Day: day,
		Hour: hour, Minute: minute, Second: second,
	}
}
