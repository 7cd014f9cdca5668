package types

import "time"

// DeviceResult is what one device contributed to a run.
type DeviceResult struct {
	Number   int    `json:"number"`
	Read     int    `json:"read"`
	Inserted int    `json:"inserted"`
	Dropped  int    `json:"dropped"`
	Error    string `json:"error,omitempty"`
}

// RunSummary is the journal entry written at the end of every pipeline run.
type RunSummary struct {
	ID            string         `json:"id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	DeleteAllMode bool           `json:"delete_all_mode"`
	Batch         int            `json:"batch,omitempty"`
	Devices       []DeviceResult `json:"devices"`
	State         string         `json:"state"`
	Error         string         `json:"error,omitempty"`
}

func (s RunSummary) Succeeded() bool { return s.Error == "" }

// DeviceStatus tracks the last successful collection from a device.
type DeviceStatus struct {
	Number        int       `json:"number"`
	LastCollected time.Time `json:"last_collected"`
	LastEvents    int       `json:"last_events"`
}
