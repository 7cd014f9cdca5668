package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// Fixture describes simulated terminals and, optionally, the enrollment directory
// to seed alongside them.
type Fixture struct {
	Employees map[int]string  `yaml:"employees"`
	Devices   []FixtureDevice `yaml:"devices"`
}

type FixtureDevice struct {
	Number      int          `yaml:"number"`
	Unreachable bool         `yaml:"unreachable"`
	ReadError   int          `yaml:"read_error"`
	ClockFails  bool         `yaml:"clock_fails"`
	Logs        []FixtureLog `yaml:"logs"`
}

type FixtureLog struct {
	Enrollment int    `yaml:"enrollment"`
	Physical   int    `yaml:"physical"`
	VerifyMode int    `yaml:"verify_mode"`
	Time       string `yaml:"time"` // "YYYY-MM-DD HH:MM:SS", components taken verbatim
}

func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Simulator builds a Simulator holding the fixture's devices.
func (f *Fixture) Simulator() (*Simulator, error) {
	sim := NewSimulator()
	for _, fd := range f.Devices {
		d := &SimulatedDevice{
			Unreachable:   fd.Unreachable,
			ReadErrorCode: fd.ReadError,
			ClockFails:    fd.ClockFails,
		}
		for i, l := range fd.Logs {
			ev := types.RawLogEvent{
				PhysicalDevice:   l.Physical,
				EnrollmentNumber: l.Enrollment,
				VerifyMode:       l.VerifyMode,
			}
			if _, err := fmt.Sscanf(l.Time, "%d-%d-%d %d:%d:%d",
				&ev.Year, &ev.Month, &ev.Day, &ev.Hour, &ev.Minute, &ev.Second); err != nil {
				return nil, fmt.Errorf("device %d log %d: bad time %q: %w", fd.Number, i, l.Time, err)
			}
			d.Logs = append(d.Logs, ev)
		}
		sim.AddDevice(fd.Number, d)
	}
	return sim, nil
}
