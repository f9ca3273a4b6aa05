package coordinator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
)

// RunCoordinationCycle runs one full cycle, waiting for any cycle or manual
// call already in flight.
func (c *Coordinator) RunCoordinationCycle(ctx context.Context) CycleResult {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	return c.runCycleLocked(ctx)
}

// TryRunCoordinationCycle runs a cycle unless one is already in flight, in
// which case it reports false without waiting.
func (c *Coordinator) TryRunCoordinationCycle(ctx context.Context) (CycleResult, bool) {
	if !c.cycleMu.TryLock() {
		return CycleResult{}, false
	}
	defer c.cycleMu.Unlock()
	return c.runCycleLocked(ctx), true
}

func (c *Coordinator) runCycleLocked(ctx context.Context) (result CycleResult) {
	// A started cycle always finishes; commands are not transactional.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Coordination cycle panicked")
			result = CycleResult{
				Success:    false,
				Actions:    result.Actions,
				SystemMode: c.store.GlobalMode(),
				Reasoning:  fmt.Sprintf("cycle aborted: %v", r),
			}
		}
		c.publish()
	}()

	// Step 1
	c.syncUnits(ctx)

	// Step 2
	outside, _ := c.weather.CurrentTemperature(ctx)
	c.store.UpdateOutsideTemperature(outside, c.weather.LastUpdated())

	snap := c.store.Snapshot()
	prefs := c.store.Preferences()
	schedule := c.store.GetActiveSchedule()
	online := onlineUnits(snap)

	heatSP, coolSP := snap.GlobalMinTemp, snap.GlobalMaxTemp
	if schedule != nil {
		heatSP, coolSP = schedule.TargetMinTemp, schedule.TargetMaxTemp
	}
	decision := decideTargetMode(c.policy, ModeInput{
		OutsideTemp:     outside,
		HeatingSetpoint: heatSP,
		CoolingSetpoint: coolSP,
		CurrentMode:     snap.GlobalMode,
		Hysteresis:      prefs.HysteresisDegrees,
	}, len(online), schedule)

	// Step 3
	result.Conflicts = c.recordConflicts(detectConflicts(online, c.store.GlobalModeChangesWithin(time.Hour)))

	// Step 4
	result.Actions = generateActions(online, actionPlan{
		targetMode:   decision.mode,
		modes:        true,
		temperatures: true,
		schedule:     schedule,
		globalMin:    snap.GlobalMinTemp,
		globalMax:    snap.GlobalMaxTemp,
		respect:      c.store.ShouldRespectManualOverrideWithin,
		reason:       "coordination",
	})

	// Step 5
	result.Executed, result.Failures = c.execute(ctx, result.Actions, model.ReasonCoordinatorLogic)

	// Step 6
	if _, err := c.store.UpdateGlobalMode(decision.mode, decision.reason, &outside); err != nil {
		log.Error().Err(err).Str("mode", string(decision.mode)).Msg("Failed to commit global mode")
		return CycleResult{
			Success:    false,
			Actions:    result.Actions,
			Conflicts:  result.Conflicts,
			SystemMode: c.store.GlobalMode(),
			Reasoning:  fmt.Sprintf("commit failed: %v", err),
			Failures:   result.Failures,
			Executed:   result.Executed,
		}
	}

	result.Success = true
	result.SystemMode = decision.mode
	result.Reasoning = summarize(decision.reasoning, schedule, result)
	c.emitMetrics(outside, len(online), result)

	log.Info().
		Str("mode", string(decision.mode)).
		Float64("outside_temp", outside).
		Int("online_units", len(online)).
		Int("actions", len(result.Actions)).
		Int("failures", len(result.Failures)).
		Int("conflicts", len(result.Conflicts)).
		Dur("elapsed", time.Since(started)).
		Str("reasoning", result.Reasoning).
		Msg("Coordination cycle complete")
	return result
}

// syncUnits refreshes every configured unit from the device API. A unit that
// cannot be read is marked offline; the others carry on.
func (c *Coordinator) syncUnits(ctx context.Context) {
	if !c.devices.IsAuthenticated() {
		log.Info().Msg("Device API not authenticated, using cached unit state")
		return
	}

	offline := false
	for _, u := range c.units {
		reading, err := c.devices.GetStatus(ctx, u.ID)
		if err != nil {
			log.Warn().Err(err).Str("unit", u.ID).Msg("Failed to read unit status, marking offline")
			c.store.UpdateUnitState(u.ID, store.UnitUpdate{IsOnline: &offline})
			continue
		}
		n, err := reading.Normalize()
		if err != nil {
			log.Warn().Err(err).Str("unit", u.ID).Msg("Malformed unit status, marking offline")
			c.store.UpdateUnitState(u.ID, store.UnitUpdate{IsOnline: &offline})
			continue
		}

		online := true
		c.store.UpdateUnitState(u.ID, store.UnitUpdate{
			CurrentTemperature: &n.CurrentTemperature,
			TargetTemperature:  &n.TargetTemperature,
			Mode:               &n.Mode,
			IsOnline:           &online,
			Reason:             model.ReasonUserRequest,
		})
		log.Debug().
			Str("unit", u.ID).
			Float64("current", n.CurrentTemperature).
			Float64("target", n.TargetTemperature).
			Str("mode", string(n.Mode)).
			Msg("Unit synced")
	}
}

// recordConflicts logs each finding. Rapid switching is recorded and notified
// once per episode: while an unresolved rapid_switching conflict is open, the
// open one is reported instead.
func (c *Coordinator) recordConflicts(findings []finding) []model.ConflictEvent {
	var events []model.ConflictEvent
	for _, f := range findings {
		if f.kind == model.ConflictRapidSwitching {
			if open, ok := c.store.OpenConflict(f.kind); ok {
				log.Debug().Str("conflict", open.ID).Msg("Rapid switching still ongoing")
				events = append(events, open)
				continue
			}
		}
		ev := c.store.AddConflictEvent(f.kind, f.description, f.unitIDs)
		events = append(events, ev)
		if f.kind == model.ConflictRapidSwitching {
			c.notify("Rapid mode switching", f.description)
		}
	}
	return events
}

// execute runs actions in order with a pause between commands. A failed
// command is logged and skipped. Nothing runs without credentials.
func (c *Coordinator) execute(ctx context.Context, actions []Action, reason model.ChangeReason) (bool, []ActionFailure) {
	if len(actions) == 0 {
		return true, nil
	}
	if !c.devices.IsAuthenticated() {
		log.Info().Int("actions", len(actions)).Msg("Device API not authenticated, skipping actions")
		return false, nil
	}

	var failures []ActionFailure
	for i, a := range actions {
		if i > 0 && c.actionDelay > 0 {
			c.sleep(c.actionDelay)
		}
		if err := c.apply(ctx, a, reason); err != nil {
			log.Error().Err(err).Str("unit", a.UnitID).Str("action", string(a.Kind)).Msg("Action failed")
			failures = append(failures, ActionFailure{Action: a, Error: err.Error()})
			continue
		}
		log.Info().Str("action", a.String()).Str("reason", a.Reason).Msg("Action applied")
	}
	return true, failures
}

func (c *Coordinator) apply(ctx context.Context, a Action, reason model.ChangeReason) error {
	switch a.Kind {
	case ActionSetMode:
		if err := c.devices.SetMode(ctx, a.UnitID, a.Mode); err != nil {
			return err
		}
		mode := a.Mode
		c.store.UpdateUnitState(a.UnitID, store.UnitUpdate{Mode: &mode, Reason: reason})
	case ActionSetTemperature:
		if err := c.devices.SetTemperature(ctx, a.UnitID, a.Temperature); err != nil {
			return err
		}
		c.store.RecordCoordinatorTemperatureSet(a.UnitID, a.Temperature)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

func (c *Coordinator) publish() {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishStatus(c.GetCoordinatorStatus()); err != nil {
		log.Warn().Err(err).Msg("Failed to publish coordinator status")
	}
}

func (c *Coordinator) notify(title, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(title, message); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}

func (c *Coordinator) emitMetrics(outside float64, online int, result CycleResult) {
	if c.metrics == nil {
		return
	}
	c.metrics.Gauge("coordinator.outside_temp", outside)
	c.metrics.Gauge("coordinator.online_units", float64(online))
	c.metrics.Gauge("coordinator.actions", float64(len(result.Actions)))
	c.metrics.Gauge("coordinator.action_failures", float64(len(result.Failures)))
	c.metrics.Gauge("coordinator.unresolved_conflicts", float64(c.store.Snapshot().UnresolvedConflicts()))
}

func onlineUnits(snap *model.SystemState) []model.UnitState {
	var out []model.UnitState
	for _, u := range snap.OnlineUnits() {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func summarize(modeReasoning string, schedule *model.Schedule, r CycleResult) string {
	parts := []string{fmt.Sprintf("%s -> %s", modeReasoning, r.SystemMode)}
	if schedule != nil {
		parts = append(parts, fmt.Sprintf("schedule %q active (%.0f-%.0f°F)", scheduleLabel(schedule), schedule.TargetMinTemp, schedule.TargetMaxTemp))
	}
	if n := len(r.Conflicts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d conflict(s) detected", n))
	}
	switch {
	case len(r.Actions) == 0:
		parts = append(parts, "no actions needed")
	case !r.Executed:
		parts = append(parts, fmt.Sprintf("%d action(s) skipped: device API not authenticated", len(r.Actions)))
	case len(r.Failures) > 0:
		parts = append(parts, fmt.Sprintf("%d action(s), %d failed", len(r.Actions), len(r.Failures)))
	default:
		parts = append(parts, fmt.Sprintf("%d action(s) applied", len(r.Actions)))
	}
	return strings.Join(parts, "; ")
}
