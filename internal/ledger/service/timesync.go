package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/device"
	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

type TimeSyncResult struct {
	Synced int
	Failed []int // device numbers
}

// TimeSync sets every device clock to the host time, one device at a time.
type TimeSync struct {
	sdk  device.SDK
	logs DeviceLogs
	log  zerolog.Logger
}

func NewTimeSync(sdk device.SDK, logs DeviceLogs, log zerolog.Logger) *TimeSync {
	return &TimeSync{sdk: sdk, logs: logs, log: log}
}

// Run syncs each machine in order.  A device that fails is logged and skipped.  Only
// cancellation stops the loop early.
func (t *TimeSync) Run(ctx context.Context, machines []types.MachineConfiguration) (TimeSyncResult, error) {
	var res TimeSyncResult
	for _, m := range machines {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if t.syncOne(m) {
			res.Synced++
		} else {
			res.Failed = append(res.Failed, m.Number)
		}
	}
	t.log.Info().Int("synced", res.Synced).Ints("failed", res.Failed).Msg("time sync finished")
	return res, nil
}

func (t *TimeSync) syncOne(m types.MachineConfiguration) bool {
	log := t.log.With().Int("device", m.Number).Logger()
	if t.logs != nil {
		var closeLog func()
		log, closeLog = t.logs.Device(m.Number)
		defer closeLog()
	}

	if err := device.Connect(t.sdk, m); err != nil {
		log.Error().Err(err).Msg("connect for time sync")
		return false
	}
	defer device.Disconnect(t.sdk, log)

	if err := device.SyncClock(t.sdk, m); err != nil {
		log.Error().Err(err).Msg("time sync failed")
		return false
	}
	log.Info().Msg("device clock synchronised")
	return true
}
