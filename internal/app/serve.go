package app

import (
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/BrandonDHaskell/bioledger/internal/httpapi"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/service"
)

// Supervisor builds the serve-mode tree: the run scheduler and the status API,
// each restarted independently when it fails.
func (a *App) Supervisor(opts service.RunOptions) *suture.Supervisor {
	logger := a.Log.Logger().With().Str("component", "supervisor").Logger()

	sup := suture.New("bioledger", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	sup.Add(service.NewRunScheduler(a.Orchestrator, opts, a.Config.Serve.Interval, a.Log.Logger()))

	deps := httpapi.Dependencies{
		Logger:   a.Log.Logger().With().Str("component", "http").Logger(),
		Addr:     a.Config.Serve.Addr,
		State:    a.Orchestrator,
		Machines: a.Machines,
		Gatherer: a.Registry,
	}
	if a.Journal != nil {
		deps.Journal = a.Journal
	}
	sup.Add(httpapi.NewServer(deps))

	return sup
}
