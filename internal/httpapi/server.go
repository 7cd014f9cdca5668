package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/config"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/store"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// StateSource reports the orchestrator's current run state.
type StateSource interface {
	State() service.RunState
}

type Dependencies struct {
	Logger   zerolog.Logger
	Addr     string
	State    StateSource
	Journal  store.JournalStore // nil disables /v1/runs and device history
	Machines []types.MachineConfiguration
	Gatherer prometheus.Gatherer

	// ShutdownTimeout bounds the graceful stop.  Default: 10s.
	ShutdownTimeout time.Duration
}

// Server is the read-only status API of serve mode.  It runs as a supervised
// service: Serve blocks until ctx is cancelled.
type Server struct {
	httpServer      *http.Server
	logger          zerolog.Logger
	mux             *http.ServeMux
	state           StateSource
	journal         store.JournalStore
	machines        []types.MachineConfiguration
	shutdownTimeout time.Duration
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:          d.Logger,
		mux:             mux,
		state:           d.State,
		journal:         d.Journal,
		machines:        d.Machines,
		shutdownTimeout: d.ShutdownTimeout,
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/runs", s.handleRuns)
	mux.HandleFunc("GET /v1/devices", s.handleDevices)
	mux.HandleFunc("GET /v1/devices/{number}", s.handleDevice)
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status API listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Server) String() string { return "status-api" }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "unknown"
	if s.state != nil {
		state = s.state.State().String()
	}
	writeJSON(w, http.StatusOK, healthResponse{OK: true, State: state, ServerTime: time.Now().UTC()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_disabled", "run journal is not configured")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunLimit {
			writeError(w, http.StatusBadRequest, "bad_limit",
				fmt.Sprintf("limit must be between 1 and %d", maxRunLimit))
			return
		}
		limit = n
	}

	runs, err := s.journal.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list runs")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if runs == nil {
		runs = []types.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deviceStatuses(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list device statuses")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	out := make([]deviceResponse, 0, len(s.machines))
	for _, m := range s.machines {
		out = append(out, deviceFromMachine(m, statuses))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_device_number", "device number must be an integer")
		return
	}
	m, err := config.FindDevice(s.machines, n)
	if errors.Is(err, config.ErrUnknownDevice) {
		writeError(w, http.StatusNotFound, "unknown_device", err.Error())
		return
	}

	var statuses map[int]types.DeviceStatus
	if s.journal != nil {
		st, found, err := s.journal.DeviceStatus(r.Context(), n)
		if err != nil {
			s.logger.Error().Err(err).Int("device", n).Msg("device status")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		if found {
			statuses = map[int]types.DeviceStatus{n: st}
		}
	}
	writeJSON(w, http.StatusOK, deviceFromMachine(m, statuses))
}

func (s *Server) deviceStatuses(ctx context.Context) (map[int]types.DeviceStatus, error) {
	if s.journal == nil {
		return nil, nil
	}
	list, err := s.journal.DeviceStatuses(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]types.DeviceStatus, len(list))
	for _, st := range list {
		out[st.Number] = st
	}
	return out, nil
}
