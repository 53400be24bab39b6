// Package control owns the ACTIVE/PAUSED/CRYO state machine. All
// transitions, including the lazy thaw that happens on reads, run inside a
// single critical section so that concurrent callers serialize and the
// persisted updated_at order is total.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
	"github.com/piptrade/botd/internal/store"
)

// FSM is the process-wide control state owner.
type FSM struct {
	mu  sync.Mutex
	st  *store.Store
	now func() time.Time
}

// New builds the FSM over the store. The clock is injectable for tests.
func New(st *store.Store, clock func() time.Time) *FSM {
	if clock == nil {
		clock = time.Now
	}
	return &FSM{st: st, now: clock}
}

// Init creates the ACTIVE control row on first start.
func (f *FSM) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.st.GetControl(ctx)
	if err != nil {
		return err
	}
	if cur != nil {
		return nil
	}
	now := f.now().UTC()
	return f.st.PutControl(ctx, model.Control{
		State:        model.StateActive,
		UpdatedAtUTC: model.FormatUTC(now),
		UpdatedAtUS:  now.UnixMicro(),
	})
}

// Current returns the effective control state. If a PAUSED/CRYO deadline has
// elapsed the row is transitioned to ACTIVE and persisted before returning,
// under the same lock as explicit transitions so two readers never thaw
// twice.
func (f *FSM) Current(ctx context.Context) (model.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.loadLocked(ctx)
	if err != nil {
		return model.Control{}, err
	}
	now := f.now().UTC()

	deadline := int64(0)
	switch cur.State {
	case model.StatePaused:
		deadline = cur.PauseUntilEpoch
	case model.StateCryo:
		deadline = cur.CryoUntilEpoch
	default:
		return cur, nil
	}
	if deadline == 0 || now.Unix() < deadline {
		return cur, nil
	}

	// Deadline elapsed: thaw. A persistence failure here is surfaced, not
	// swallowed; a stale PAUSED/CRYO answer would mislead the worker.
	thawed := f.clearedLocked(cur, now)
	if err := f.st.PutControl(ctx, thawed); err != nil {
		return model.Control{}, err
	}
	f.appendEvent(ctx, now, model.EventInfo, "Auto-thawed to ACTIVE", map[string]interface{}{
		"previous_state": cur.State,
	})
	log.Info().Str("from", cur.State).Msg("control auto-thawed")
	return thawed, nil
}

// Pause moves to PAUSED until now+seconds. Renewing with an earlier
// deadline than the current one keeps the later deadline.
func (f *FSM) Pause(ctx context.Context, seconds int, reason string) (model.Control, error) {
	return f.freeze(ctx, model.StatePaused, seconds, reason)
}

// Cryo moves to CRYO until now+seconds. Same renewal rule as Pause.
func (f *FSM) Cryo(ctx context.Context, seconds int, reason string) (model.Control, error) {
	return f.freeze(ctx, model.StateCryo, seconds, reason)
}

func (f *FSM) freeze(ctx context.Context, state string, seconds int, reason string) (model.Control, error) {
	if seconds <= 0 {
		return model.Control{}, apperr.New(apperr.BadRequest, "seconds must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.loadLocked(ctx)
	if err != nil {
		return model.Control{}, err
	}
	now := f.now().UTC()
	until := now.Add(time.Duration(seconds) * time.Second)

	next := f.clearedLocked(cur, now)
	next.State = state
	switch state {
	case model.StatePaused:
		if cur.State == model.StatePaused && cur.PauseUntilEpoch > until.Unix() {
			until = time.Unix(cur.PauseUntilEpoch, 0).UTC()
		}
		next.PauseReason = reason
		next.PauseUntilUTC = model.FormatUTC(until)
		next.PauseUntilEpoch = until.Unix()
	case model.StateCryo:
		if cur.State == model.StateCryo && cur.CryoUntilEpoch > until.Unix() {
			until = time.Unix(cur.CryoUntilEpoch, 0).UTC()
		}
		next.CryoReason = reason
		next.CryoUntilUTC = model.FormatUTC(until)
		next.CryoUntilEpoch = until.Unix()
	}

	if err := f.st.PutControl(ctx, next); err != nil {
		return model.Control{}, err
	}
	verb := "Paused"
	if state == model.StateCryo {
		verb = "Cryo engaged"
	}
	f.appendEvent(ctx, now, model.EventWarning,
		fmt.Sprintf("%s until %s: %s", verb, model.FormatUTC(until), reason),
		map[string]interface{}{"seconds": seconds, "reason": reason})
	log.Warn().Str("state", state).Int("seconds", seconds).Str("reason", reason).Msg("control frozen")
	return next, nil
}

// Revive moves to ACTIVE, clears timers and reasons, and resets the pet to
// its hatchling defaults.
func (f *FSM) Revive(ctx context.Context, reason string) (model.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.loadLocked(ctx)
	if err != nil {
		return model.Control{}, err
	}
	now := f.now().UTC()
	next := f.clearedLocked(cur, now)

	if err := f.st.PutControl(ctx, next); err != nil {
		return model.Control{}, err
	}
	if err := f.st.UpsertPet(ctx, model.InitialPet(now)); err != nil {
		return model.Control{}, err
	}
	f.appendEvent(ctx, now, model.EventInfo, fmt.Sprintf("Revived: %s", reason),
		map[string]interface{}{"reason": reason})
	log.Info().Str("reason", reason).Msg("control revived")
	return next, nil
}

func (f *FSM) loadLocked(ctx context.Context) (model.Control, error) {
	cur, err := f.st.GetControl(ctx)
	if err != nil {
		return model.Control{}, err
	}
	if cur == nil {
		now := f.now().UTC()
		c := model.Control{
			State:        model.StateActive,
			UpdatedAtUTC: model.FormatUTC(now),
			UpdatedAtUS:  now.UnixMicro(),
		}
		if err := f.st.PutControl(ctx, c); err != nil {
			return model.Control{}, err
		}
		return c, nil
	}
	return *cur, nil
}

// clearedLocked produces an ACTIVE row with timers and reasons cleared and
// updated_at strictly after the previous row's.
func (f *FSM) clearedLocked(prev model.Control, now time.Time) model.Control {
	us := now.UnixMicro()
	if us <= prev.UpdatedAtUS {
		us = prev.UpdatedAtUS + 1
	}
	return model.Control{
		State:        model.StateActive,
		UpdatedAtUTC: model.FormatUTC(now),
		UpdatedAtUS:  us,
	}
}

// appendEvent records the transition in the events stream. Event loss is
// logged but does not fail the transition itself.
func (f *FSM) appendEvent(ctx context.Context, now time.Time, typ, message string, details map[string]interface{}) {
	raw, _ := json.Marshal(details)
	_, err := f.st.AppendEvent(ctx, model.Event{
		TimeUTC:     model.FormatUTC(now),
		AtEpoch:     now.Unix(),
		Type:        typ,
		Message:     message,
		DetailsJSON: string(raw),
	})
	if err != nil {
		log.Error().Err(err).Str("message", message).Msg("control event append failed")
	}
}
