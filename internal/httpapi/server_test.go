package httpapi_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/httpapi"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store/memory"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
	"github.com/BrandonDHaskell/bioledger/internal/metrics"
)

type fixedState service.RunState

func (s fixedState) State() service.RunState { return service.RunState(s) }

var machines = []types.MachineConfiguration{
	{Number: 1, Address: "10.0.0.11", Port: 4370, Direction: types.DirectionIn, Batch: 1},
	{Number: 2, Address: "10.0.0.12", Port: 4370, Direction: types.DirectionOut, Batch: 2},
}

// newTestServer wires the status API over a memory journal and returns an
// httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, journal store.JournalStore) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	pm := metrics.New(reg)
	pm.EventRead(1, 3)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:   zerolog.Nop(),
		Addr:     ":0",
		State:    fixedState(service.StateCollecting),
		Journal:  journal,
		Machines: machines,
		Gatherer: reg,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// ── Health ───────────────────────────────────────────────────────────────────

func TestHealth_ReportsRunState(t *testing.T) {
	ts := newTestServer(t, nil)

	var body struct {
		OK    bool   `json:"ok"`
		State string `json:"state"`
	}
	getJSON(t, ts.URL+"/healthz", http.StatusOK, &body)

	if !body.OK || body.State != "collecting" {
		t.Errorf("health = %+v", body)
	}
}

// ── Runs ─────────────────────────────────────────────────────────────────────

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	j := memory.NewJournalStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = j.RecordRun(ctx, types.RunSummary{ID: id, State: "done"})
	}
	ts := newTestServer(t, j)

	var runs []types.RunSummary
	getJSON(t, ts.URL+"/v1/runs?limit=2", http.StatusOK, &runs)

	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRuns_EmptyJournalIsEmptyList(t *testing.T) {
	ts := newTestServer(t, memory.NewJournalStore())

	resp := get(t, ts.URL+"/v1/runs")
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestRuns_BadLimit_400(t *testing.T) {
	ts := newTestServer(t, memory.NewJournalStore())

	for _, q := range []string{"0", "-1", "abc", "100000"} {
		resp := get(t, ts.URL+"/v1/runs?limit="+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestRuns_NoJournal_503(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := get(t, ts.URL+"/v1/runs")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error != "journal_disabled" {
		t.Errorf("error body = %+v, %v", e, err)
	}
}

func TestRuns_JournalError_500(t *testing.T) {
	ts := newTestServer(t, brokenJournal{memory.NewJournalStore()})

	resp := get(t, ts.URL+"/v1/runs")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

// ── Devices ──────────────────────────────────────────────────────────────────

func TestDevices_MergesJournalStatus(t *testing.T) {
	j := memory.NewJournalStore()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_ = j.MarkDeviceCollected(context.Background(), 2, at, 5)
	ts := newTestServer(t, j)

	var devs []struct {
		Number        int        `json:"number"`
		Direction     string     `json:"direction"`
		LastCollected *time.Time `json:"last_collected"`
		LastEvents    int        `json:"last_events"`
	}
	getJSON(t, ts.URL+"/v1/devices", http.StatusOK, &devs)

	if len(devs) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devs))
	}
	if devs[0].Direction != "IN" || devs[0].LastCollected != nil {
		t.Errorf("device 1 = %+v", devs[0])
	}
	if devs[1].LastCollected == nil || !devs[1].LastCollected.Equal(at) || devs[1].LastEvents != 5 {
		t.Errorf("device 2 = %+v", devs[1])
	}
}

func TestDevice_ByNumber(t *testing.T) {
	ts := newTestServer(t, nil)

	var dev struct {
		Number  int    `json:"number"`
		Address string `json:"address"`
	}
	getJSON(t, ts.URL+"/v1/devices/2", http.StatusOK, &dev)
	if dev.Number != 2 || dev.Address != "10.0.0.12" {
		t.Errorf("device = %+v", dev)
	}

	if resp := get(t, ts.URL+"/v1/devices/9"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device: expected 404, got %d", resp.StatusCode)
	}
	if resp := get(t, ts.URL+"/v1/devices/x"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad number: expected 400, got %d", resp.StatusCode)
	}
}

func TestDevice_ByNumberUsesJournal(t *testing.T) {
	j := memory.NewJournalStore()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_ = j.MarkDeviceCollected(context.Background(), 2, at, 5)
	ts := newTestServer(t, j)

	var dev struct {
		Number        int        `json:"number"`
		LastCollected *time.Time `json:"last_collected"`
		LastEvents    int        `json:"last_events"`
	}
	getJSON(t, ts.URL+"/v1/devices/2", http.StatusOK, &dev)
	if dev.LastCollected == nil || !dev.LastCollected.Equal(at) || dev.LastEvents != 5 {
		t.Errorf("device 2 = %+v", dev)
	}

	dev.LastCollected, dev.LastEvents = nil, 0
	getJSON(t, ts.URL+"/v1/devices/1", http.StatusOK, &dev)
	if dev.Number != 1 || dev.LastCollected != nil {
		t.Errorf("device 1 = %+v, want no collection yet", dev)
	}
}

func TestDevice_JournalError(t *testing.T) {
	ts := newTestServer(t, brokenJournal{memory.NewJournalStore()})

	if resp := get(t, ts.URL+"/v1/devices/1"); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

// ── Metrics ──────────────────────────────────────────────────────────────────

func TestMetrics_Exposed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := get(t, ts.URL+"/metrics")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `bioledger_events_read_total{device="1"} 3`) {
		t.Errorf("metrics body missing counter:\n%s", body)
	}
}

// ── Serve ────────────────────────────────────────────────────────────────────

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	srv := httpapi.NewServer(httpapi.Dependencies{Logger: zerolog.Nop(), Addr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	// wait for the listener
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

// ── Test helpers ─────────────────────────────────────────────────────────────

type brokenJournal struct{ *memory.JournalStore }

func (brokenJournal) RecentRuns(context.Context, int) ([]types.RunSummary, error) {
	return nil, errors.New("disk on fire")
}

func (brokenJournal) DeviceStatus(context.Context, int) (types.DeviceStatus, bool, error) {
	return types.DeviceStatus{}, false, errors.New("disk on fire")
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp := get(t, url)
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
