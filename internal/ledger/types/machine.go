package types

import "fmt"

// MachineConfiguration is the static descriptor of one terminal.
type MachineConfiguration struct {
	Number    int // logical device number, 1..N
	Address   string
	Port      int
	Password  int
	Direction Direction
	Batch     int
}

func (m MachineConfiguration) String() string {
	return fmt.Sprintf("device %d (%s:%d %s)", m.Number, m.Address, m.Port, m.Direction)
}

// SelectBatch returns the machines assigned to batch, in their configured order.
// Batch 0 selects every machine.
func SelectBatch(machines []MachineConfiguration, batch int) []MachineConfiguration {
	if batch == 0 {
		return machines
	}
	var out []MachineConfiguration
	for _, m := range machines {
		if m.Batch == batch {
			out = append(out, m)
		}
	}
	return out
}
