// Package metrics holds the Prometheus instrumentation for pipeline runs.
//
// A Pipeline is registered on a caller-supplied registry rather than the default one:
// one-shot runs write the registry to a node_exporter textfile, serve mode exposes it
// on /metrics, and tests get a fresh registry each.
//
// All methods are safe on a nil *Pipeline, which records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Raw write results.
const (
	ResultInserted  = "inserted"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

// Reconcile row results.
const (
	RowProcessed = "processed"
	RowSkipped   = "skipped"
	RowError     = "error"
)

type Pipeline struct {
	EventsRead        *prometheus.CounterVec
	RawWrites         *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	StoreRetries      *prometheus.CounterVec
	DeviceFailures    *prometheus.CounterVec
	ReconcileRows     *prometheus.CounterVec
	RunDuration       prometheus.Gauge
	LastRunSuccess    prometheus.Gauge
	StoreBreakerState *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		EventsRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioledger_events_read_total",
			Help: "Raw events read from devices",
		}, []string{"device"}),
		RawWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioledger_raw_writes_total",
			Help: "Raw event writes per store and result",
		}, []string{"store", "result"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "bioledger_events_dropped_total",
			Help: "Raw events dropped by the earliest-year cutoff",
		}),
		StoreRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioledger_store_retries_total",
			Help: "Store operations retried after a transient error",
		}, []string{"store"}),
		DeviceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioledger_device_failures_total",
			Help: "Devices skipped because a collection step failed",
		}, []string{"device"}),
		ReconcileRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bioledger_reconcile_rows_total",
			Help: "Raw rows handled by the reconciler per result",
		}, []string{"result"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "bioledger_run_duration_seconds",
			Help: "Duration of the last pipeline run",
		}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "bioledger_last_run_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		}),
		StoreBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bioledger_store_breaker_state",
			Help: "Store open circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"store"}),
	}
}

func (p *Pipeline) EventRead(device int, n int) {
	if p == nil || n == 0 {
		return
	}
	p.EventsRead.WithLabelValues(strconv.Itoa(device)).Add(float64(n))
}

func (p *Pipeline) RawWrite(store, result string) {
	if p == nil {
		return
	}
	p.RawWrites.WithLabelValues(store, result).Inc()
}

func (p *Pipeline) EventDropped() {
	if p == nil {
		return
	}
	p.EventsDropped.Inc()
}

func (p *Pipeline) StoreRetry(store string) {
	if p == nil {
		return
	}
	p.StoreRetries.WithLabelValues(store).Inc()
}

func (p *Pipeline) DeviceFailed(device int) {
	if p == nil {
		return
	}
	p.DeviceFailures.WithLabelValues(strconv.Itoa(device)).Inc()
}

func (p *Pipeline) ReconcileRow(result string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.ReconcileRows.WithLabelValues(result).Add(float64(n))
}

func (p *Pipeline) BreakerState(store string, state float64) {
	if p == nil {
		return
	}
	p.StoreBreakerState.WithLabelValues(store).Set(state)
}

// RunFinished records the duration of a run and, when it succeeded, its end time.
func (p *Pipeline) RunFinished(started, finished time.Time, ok bool) {
	if p == nil {
		return
	}
	p.RunDuration.Set(finished.Sub(started).Seconds())
	if ok {
		p.LastRunSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile dumps everything gathered by g in the node_exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, g)
}
