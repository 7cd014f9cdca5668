package httpapi

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// ── Responses ────────────────────────────────────────────────────────────────

type healthResponse struct {
	OK         bool      `json:"ok"`
	State      string    `json:"state"`
	ServerTime time.Time `json:"server_time"`
}

type deviceResponse struct {
	Number        int        `json:"number"`
	Address       string     `json:"address"`
	Port          int        `json:"port"`
	Direction     string     `json:"direction"`
	Batch         int        `json:"batch"`
	LastCollected *time.Time `json:"last_collected,omitempty"`
	LastEvents    int        `json:"last_events"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func deviceFromMachine(m types.MachineConfiguration, statuses map[int]types.DeviceStatus) deviceResponse {
	d := deviceResponse{
		Number:    m.Number,
		Address:   m.Address,
		Port:      m.Port,
		Direction: m.Direction.String(),
		Batch:     m.Batch,
	}
	if st, ok := statuses[m.Number]; ok {
		at := st.LastCollected
		d.LastCollected = &at
		d.LastEvents = st.LastEvents
	}
	return d
}

// ── Encoding ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "json marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
