package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

var ErrUnknownDevice = errors.New("unknown device")

// DeviceTable is the parsed device table file.
type DeviceTable struct {
	Devices []DeviceEntry `yaml:"devices" validate:"required,min=1,dive"`
}

type DeviceEntry struct {
	Number    int    `yaml:"number" validate:"gte=1"`
	Address   string `yaml:"address" validate:"required"`
	Port      int    `yaml:"port" validate:"gte=1,lte=65535"`
	Password  int    `yaml:"password" validate:"gte=0"`
	Direction string `yaml:"direction" validate:"required"`
	Batch     int    `yaml:"batch" validate:"gte=0"`
}

// LoadDevices reads and validates a device table.  Machines are returned in file order.
func LoadDevices(path string) ([]types.MachineConfiguration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read device table: %v", ErrInvalidConfig, err)
	}

	var table DeviceTable
	if err := yaml.Unmarshal(b, &table); err != nil {
		return nil, fmt.Errorf("%w: parse device table: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(&table); err != nil {
		return nil, fmt.Errorf("%w: device table: %v", ErrInvalidConfig, err)
	}

	seen := make(map[int]bool, len(table.Devices))
	out := make([]types.MachineConfiguration, 0, len(table.Devices))
	for _, d := range table.Devices {
		if seen[d.Number] {
			return nil, fmt.Errorf("%w: device %d listed twice", ErrInvalidConfig, d.Number)
		}
		seen[d.Number] = true

		dir, err := types.ParseDirection(d.Direction)
		if err != nil {
			return nil, fmt.Errorf("%w: device %d: %v", ErrInvalidConfig, d.Number, err)
		}
		out = append(out, types.MachineConfiguration{
			Number:    d.Number,
			Address:   d.Address,
			Port:      d.Port,
			Password:  d.Password,
			Direction: dir,
			Batch:     d.Batch,
		})
	}
	return out, nil
}

// FindDevice returns the machine with the given logical number.
func FindDevice(machines []types.MachineConfiguration, number int) (types.MachineConfiguration, error) {
	for _, m := range machines {
		if m.Number == number {
			return m, nil
		}
	}
	return types.MachineConfiguration{}, fmt.Errorf("%w: %d", ErrUnknownDevice, number)
}
