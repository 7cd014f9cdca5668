package device

import (
	"sync"
	"time"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// SimulatedDevice is the scripted state of one simulated terminal.
type SimulatedDevice struct {
	Logs []types.RawLogEvent

	// ReadErrorCode, when non-zero, fails every read request with that code.
	ReadErrorCode int
	// Unreachable devices fail Open with CodeCommPort.
	Unreachable bool
	// PanicAfter makes the SDK panic after yielding that many records (0 = never).
	PanicAfter int
	// ClockFails makes SetDeviceClock fail with CodeWriteFail.
	ClockFails bool

	read      []bool
	readMarks int
	enabled   bool
	clockSet  time.Time
}

// Simulator implements SDK against in-memory devices.  Records handed out by a
// NextUnread/NextAll call while the read mark is 1 are flagged read, so a later
// ReadUnread only sees newer records, as real terminals behave.
type Simulator struct {
	mu       sync.Mutex
	devices  map[int]*SimulatedDevice
	current  int
	lastErr  int
	readMark int
	cursor   []int
	yielded  int

	// Now stamps clock syncs.  Default: time.Now.
	Now func() time.Time
}

func NewSimulator() *Simulator {
	return &Simulator{devices: make(map[int]*SimulatedDevice), Now: time.Now}
}

func (s *Simulator) AddDevice(number int, d *SimulatedDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.read = make([]bool, len(d.Logs))
	d.enabled = true
	s.devices[number] = d
}

// AppendLogs adds records to a device as if people had just badged.
func (s *Simulator) AppendLogs(number int, evs ...types.RawLogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.devices[number]
	d.Logs = append(d.Logs, evs...)
	d.read = append(d.read, make([]bool, len(evs))...)
}

// ReadMarks reports how many times the read mark was set while number was open.
func (s *Simulator) ReadMarks(number int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[number].readMarks
}

// Enabled reports whether the device currently accepts badges.
func (s *Simulator) Enabled(number int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[number].enabled
}

// ClockSetAt reports when the device clock was last synchronised.
func (s *Simulator) ClockSetAt(number int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[number].clockSet
}

// Connected reports the machine the handle is open against, 0 if none.
func (s *Simulator) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Simulator) SetConnectionParams(address string, port, password int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address == "" || port <= 0 {
		s.lastErr = CodeInvalidParam
		return false
	}
	s.lastErr = CodeSuccess
	return true
}

func (s *Simulator) Open(machine int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[machine]
	if !ok || d.Unreachable {
		s.lastErr = CodeCommPort
		return false
	}
	s.current = machine
	s.cursor = nil
	s.lastErr = CodeSuccess
	return true
}

func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
	s.cursor = nil
}

// device returns the open device for machine or records CodeCommPort.
// Caller holds s.mu.
func (s *Simulator) device(machine int) *SimulatedDevice {
	if s.current == 0 || s.current != machine {
		s.lastErr = CodeCommPort
		return nil
	}
	return s.devices[machine]
}

func (s *Simulator) Enable(machine int, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(machine)
	if d == nil {
		return false
	}
	d.enabled = on
	s.lastErr = CodeSuccess
	return true
}

func (s *Simulator) SetDeviceClock(machine int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(machine)
	if d == nil {
		return false
	}
	if d.ClockFails {
		s.lastErr = CodeWriteFail
		return false
	}
	d.clockSet = s.Now()
	s.lastErr = CodeSuccess
	return true
}

func (s *Simulator) LastErrorCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Simulator) SetReadMark(value int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readMark = value
	if d := s.devices[s.current]; d != nil {
		d.readMarks++
	}
	s.lastErr = CodeSuccess
	return true
}

func (s *Simulator) ReadUnread(machine int) bool { return s.request(machine, false) }

func (s *Simulator) ReadAll(machine int) bool { return s.request(machine, true) }

func (s *Simulator) request(machine int, all bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(machine)
	if d == nil {
		return false
	}
	if d.ReadErrorCode != CodeSuccess {
		s.lastErr = d.ReadErrorCode
		return false
	}

	s.cursor = s.cursor[:0]
	s.yielded = 0
	for i := range d.Logs {
		if all || !d.read[i] {
			s.cursor = append(s.cursor, i)
		}
	}
	if len(s.cursor) == 0 {
		s.lastErr = CodeLogEnd
		return false
	}
	s.lastErr = CodeSuccess
	return true
}

func (s *Simulator) NextUnread(machine int) (bool, types.RawLogEvent) { return s.next(machine) }

func (s *Simulator) NextAll(machine int) (bool, types.RawLogEvent) { return s.next(machine) }

func (s *Simulator) next(machine int) (bool, types.RawLogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.device(machine)
	if d == nil {
		return false, types.RawLogEvent{}
	}
	if len(s.cursor) == 0 {
		s.lastErr = CodeLogEnd
		return false, types.RawLogEvent{}
	}
	if d.PanicAfter > 0 && s.yielded >= d.PanicAfter {
		panic("simulated SDK fault")
	}

	i := s.cursor[0]
	s.cursor = s.cursor[1:]
	s.yielded++
	if s.readMark == 1 {
		d.read[i] = true
	}

	// The terminal knows neither its logical number nor its direction.
	ev := d.Logs[i]
	ev.LogicalDevice = 0
	ev.Direction = ""
	s.lastErr = CodeSuccess
	return true, ev
}
