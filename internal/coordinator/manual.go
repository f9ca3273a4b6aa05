package coordinator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
)

// SetGlobalMode applies mode immediately and commands every online unit whose
// mode differs. Setpoints are left alone.
func (c *Coordinator) SetGlobalMode(ctx context.Context, mode model.Mode, reason model.ChangeReason) (CycleResult, error) {
	if !mode.Valid() {
		return CycleResult{}, &model.ValidationError{Field: "mode", Message: fmt.Sprintf("invalid mode %q, valid modes: off, heat, cool", mode)}
	}
	if reason == "" {
		reason = model.ReasonUserRequest
	}

	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	defer c.publish()
	ctx = context.WithoutCancel(ctx)

	snap := c.store.Snapshot()
	if _, err := c.store.UpdateGlobalMode(mode, reason, snap.OutsideTemperature); err != nil {
		return CycleResult{}, err
	}

	result := CycleResult{SystemMode: mode}
	result.Actions = generateActions(onlineUnits(snap), actionPlan{
		targetMode: mode,
		modes:      true,
		reason:     string(reason),
	})
	result.Executed, result.Failures = c.execute(ctx, result.Actions, reason)
	result.Success = true
	result.Reasoning = summarize(fmt.Sprintf("global mode set manually (%s)", reason), nil, result)

	log.Info().Str("mode", string(mode)).Str("reason", string(reason)).Int("actions", len(result.Actions)).Msg("Global mode set")
	return result, nil
}

// SetGlobalTemperatureRange validates and stores the range, then runs a full cycle.
func (c *Coordinator) SetGlobalTemperatureRange(ctx context.Context, min, max float64) (CycleResult, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if err := c.store.UpdateGlobalTemperatureRange(min, max); err != nil {
		return CycleResult{}, err
	}
	return c.runCycleLocked(ctx), nil
}

// SetGlobalTemperatureRangeImmediate stores the range and corrects setpoints
// for the current global mode without re-evaluating the mode. Manual overrides
// are respected as in a normal cycle.
func (c *Coordinator) SetGlobalTemperatureRangeImmediate(ctx context.Context, min, max float64) (CycleResult, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if err := c.store.UpdateGlobalTemperatureRange(min, max); err != nil {
		return CycleResult{}, err
	}
	defer c.publish()
	ctx = context.WithoutCancel(ctx)

	snap := c.store.Snapshot()
	result := CycleResult{SystemMode: snap.GlobalMode}
	result.Actions = generateActions(onlineUnits(snap), actionPlan{
		targetMode:   snap.GlobalMode,
		temperatures: true,
		schedule:     c.store.GetActiveSchedule(),
		globalMin:    min,
		globalMax:    max,
		respect:      c.store.ShouldRespectManualOverrideWithin,
		reason:       "range_update",
	})
	result.Executed, result.Failures = c.execute(ctx, result.Actions, model.ReasonUserRequest)
	result.Success = true
	result.Reasoning = summarize(fmt.Sprintf("range set to %.1f-%.1f°F, keeping", min, max), nil, result)
	return result, nil
}

// EmergencyOff commands every configured unit off, online or not, and sets
// the global mode to off. Overrides and priority are ignored.
func (c *Coordinator) EmergencyOff(ctx context.Context, reason string) CycleResult {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	defer c.publish()
	ctx = context.WithoutCancel(ctx)

	log.Warn().Str("reason", reason).Int("units", len(c.units)).Msg("Emergency off requested")

	result := CycleResult{SystemMode: model.ModeOff, Executed: true}
	for i, u := range c.units {
		if i > 0 && c.actionDelay > 0 {
			c.sleep(c.actionDelay)
		}
		a := Action{UnitID: u.ID, Kind: ActionSetMode, Mode: model.ModeOff, Reason: "emergency_off"}
		result.Actions = append(result.Actions, a)
		if err := c.apply(ctx, a, model.ReasonOverride); err != nil {
			log.Error().Err(err).Str("unit", u.ID).Msg("Emergency off failed for unit")
			result.Failures = append(result.Failures, ActionFailure{Action: a, Error: err.Error()})
		}
	}

	snap := c.store.Snapshot()
	if _, err := c.store.UpdateGlobalMode(model.ModeOff, model.ReasonOverride, snap.OutsideTemperature); err != nil {
		log.Error().Err(err).Msg("Failed to record emergency off")
	}

	result.Success = true
	result.Reasoning = summarize(fmt.Sprintf("emergency off (%s)", reason), nil, result)
	c.notify("Emergency off", fmt.Sprintf("All %d units commanded off: %s (%d failed)", len(c.units), reason, len(result.Failures)))
	return result
}

// ClearManualOverride drops the unit's override and runs a full cycle so the
// global setpoints apply again.
func (c *Coordinator) ClearManualOverride(ctx context.Context, unitID string) (CycleResult, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if err := c.store.ClearManualOverride(unitID); err != nil {
		return CycleResult{}, err
	}
	return c.runCycleLocked(ctx), nil
}

func (c *Coordinator) ClearAllManualOverrides(ctx context.Context) CycleResult {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.store.ClearAllManualOverrides()
	return c.runCycleLocked(ctx)
}

// Store exposes the underlying store for read-mostly callers such as the admin API.
func (c *Coordinator) Store() *store.Store {
	return c.store
}
