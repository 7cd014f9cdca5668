package device

import (
	"iter"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/bioledger/internal/ledger/types"
)

// Reader runs the per-device read protocol.
type Reader struct {
	log zerolog.Logger
}

func NewReader(log zerolog.Logger) *Reader {
	return &Reader{log: log}
}

// Read pulls the device's log (all of it when fullHistory is set, otherwise only
// records not yet read) and stamps each event with the configured logical number and
// direction.  It never fails: a device error yields no events for this round, and a
// panic mid-read returns what was collected before it.
func (r *Reader) Read(sdk SDK, m types.MachineConfiguration, fullHistory bool) (out []types.RawLogEvent) {
	log := r.log.With().Int("device", m.Number).Bool("full_history", fullHistory).Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Int("collected", len(out)).
				Msg("device read aborted, keeping records collected so far")
		}
	}()

	// Arms incremental tracking; required before either read request.
	if !sdk.SetReadMark(1) {
		log.Warn().Int("code", sdk.LastErrorCode()).Msg("set read mark failed")
	}

	requested := sdk.ReadUnread
	next := sdk.NextUnread
	if fullHistory {
		requested = sdk.ReadAll
		next = sdk.NextAll
	}

	if !requested(m.Number) {
		code := sdk.LastErrorCode()
		if code == CodeLogEnd {
			log.Info().Msg("no logs on device")
			return nil
		}
		log.Error().Int("code", code).Str("reason", ErrorMessage(code)).Msg("read request failed")
		return nil
	}

	for ev := range records(m, next) {
		out = append(out, ev)
	}

	if code := sdk.LastErrorCode(); code != CodeSuccess && code != CodeLogEnd {
		log.Warn().Int("code", code).Str("reason", ErrorMessage(code)).Int("collected", len(out)).
			Msg("device stopped returning records with an error")
	}

	log.Info().Int("count", len(out)).Msg("device read complete")
	return out
}

// records is a single-use cursor over the device's read buffer.  Ranging over it a
// second time asks the device for more and yields nothing once it is drained.
func records(m types.MachineConfiguration, next func(int) (bool, types.RawLogEvent)) iter.Seq[types.RawLogEvent] {
	return func(yield func(types.RawLogEvent) bool) {
		for {
			ok, ev := next(m.Number)
			if !ok {
				return
			}
			ev.LogicalDevice = m.Number
			ev.Direction = m.Direction
			ev.ID = 0
			ev.Reconciled = false
			if !yield(ev) {
				return
			}
		}
	}
}
