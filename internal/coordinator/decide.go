package coordinator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

const (
	// Deadband below which a setpoint correction is not worth a command.
	temperatureDeadband = 1.0
	// Spread across online units above which a conflict is recorded.
	maxTemperatureSpread = 10.0
	// Global mode changes per hour above which switching is considered rapid.
	maxModeChangesPerHour = 3
)

type ActionKind string

const (
	ActionSetMode        ActionKind = "set_mode"
	ActionSetTemperature ActionKind = "set_temperature"
)

// Action is one device command. Actions run in the order generated.
type Action struct {
	UnitID      string     `json:"unit_id"`
	Kind        ActionKind `json:"kind"`
	Mode        model.Mode `json:"mode,omitempty"`
	Temperature float64    `json:"temperature,omitempty"`
	Reason      string     `json:"reason"`
}

func (a Action) String() string {
	if a.Kind == ActionSetMode {
		return fmt.Sprintf("%s: mode %s", a.UnitID, a.Mode)
	}
	return fmt.Sprintf("%s: setpoint %.1f°F", a.UnitID, a.Temperature)
}

// ModeInput is everything a ModePolicy may look at.
type ModeInput struct {
	OutsideTemp     float64
	HeatingSetpoint float64
	CoolingSetpoint float64
	CurrentMode     model.Mode
	Hysteresis      float64
}

// ModePolicy picks the global mode from the outdoor temperature. It returns
// the mode and a one-line explanation.
type ModePolicy interface {
	Name() string
	Decide(in ModeInput) (model.Mode, string)
}

// SetpointPolicy heats below the heating setpoint, cools above the cooling
// setpoint, and otherwise keeps the current mode.
type SetpointPolicy struct{}

func (SetpointPolicy) Name() string { return "setpoint" }

func (SetpointPolicy) Decide(in ModeInput) (model.Mode, string) {
	switch {
	case in.OutsideTemp < in.HeatingSetpoint:
		return model.ModeHeat, fmt.Sprintf("outside %.1f°F is below heating setpoint %.1f°F", in.OutsideTemp, in.HeatingSetpoint)
	case in.OutsideTemp > in.CoolingSetpoint:
		return model.ModeCool, fmt.Sprintf("outside %.1f°F is above cooling setpoint %.1f°F", in.OutsideTemp, in.CoolingSetpoint)
	default:
		return in.CurrentMode, fmt.Sprintf("outside %.1f°F is within %.1f-%.1f°F, keeping %s", in.OutsideTemp, in.HeatingSetpoint, in.CoolingSetpoint, in.CurrentMode)
	}
}

// HysteresisPolicy switches only once the outdoor temperature leaves a band of
// Hysteresis degrees around the middle of the range.
type HysteresisPolicy struct{}

func (HysteresisPolicy) Name() string { return "hysteresis" }

func (HysteresisPolicy) Decide(in ModeInput) (model.Mode, string) {
	avg := (in.HeatingSetpoint + in.CoolingSetpoint) / 2
	low, high := avg-in.Hysteresis, avg+in.Hysteresis
	switch {
	case in.OutsideTemp < low:
		return model.ModeHeat, fmt.Sprintf("outside %.1f°F is below %.1f°F (%.1f - %.1f hysteresis)", in.OutsideTemp, low, avg, in.Hysteresis)
	case in.OutsideTemp > high:
		return model.ModeCool, fmt.Sprintf("outside %.1f°F is above %.1f°F (%.1f + %.1f hysteresis)", in.OutsideTemp, high, avg, in.Hysteresis)
	default:
		return in.CurrentMode, fmt.Sprintf("outside %.1f°F is inside hysteresis band %.1f-%.1f°F, keeping %s", in.OutsideTemp, low, high, in.CurrentMode)
	}
}

// PolicyByName resolves the mode_policy config value.
func PolicyByName(name string) (ModePolicy, error) {
	switch name {
	case "", "setpoint":
		return SetpointPolicy{}, nil
	case "hysteresis":
		return HysteresisPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown mode policy %q", name)
	}
}

// modeDecision is the outcome of Step 2.
type modeDecision struct {
	mode      model.Mode
	reason    model.ChangeReason
	reasoning string
}

func decideTargetMode(policy ModePolicy, in ModeInput, onlineUnits int, schedule *model.Schedule) modeDecision {
	if onlineUnits == 0 {
		return modeDecision{mode: model.ModeOff, reason: model.ReasonCoordinatorLogic, reasoning: "no units online, forcing off"}
	}
	if schedule != nil && schedule.Mode != nil {
		return modeDecision{
			mode:      *schedule.Mode,
			reason:    model.ReasonSchedule,
			reasoning: fmt.Sprintf("schedule %q requests %s", scheduleLabel(schedule), *schedule.Mode),
		}
	}
	mode, why := policy.Decide(in)
	return modeDecision{mode: mode, reason: model.ReasonCoordinatorLogic, reasoning: why}
}

func scheduleLabel(s *model.Schedule) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// finding is a conflict detected in Step 3, before it is recorded.
type finding struct {
	kind        model.ConflictKind
	description string
	unitIDs     []string
}

func detectConflicts(online []model.UnitState, recentModeChanges int) []finding {
	var out []finding

	byMode := map[model.Mode][]string{}
	for _, u := range online {
		if u.Mode != model.ModeOff {
			byMode[u.Mode] = append(byMode[u.Mode], u.ID)
		}
	}
	if len(byMode) > 1 {
		var ids, parts []string
		for _, m := range []model.Mode{model.ModeHeat, model.ModeCool} {
			if units := byMode[m]; len(units) > 0 {
				sort.Strings(units)
				ids = append(ids, units...)
				parts = append(parts, fmt.Sprintf("%s (%s)", m, strings.Join(units, ", ")))
			}
		}
		sort.Strings(ids)
		out = append(out, finding{
			kind:        model.ConflictModeMismatch,
			description: "online units disagree on mode: " + strings.Join(parts, "; "),
			unitIDs:     ids,
		})
	}

	if len(online) > 1 {
		lo, hi := online[0], online[0]
		ids := make([]string, 0, len(online))
		for _, u := range online {
			ids = append(ids, u.ID)
			if u.CurrentTemperature < lo.CurrentTemperature {
				lo = u
			}
			if u.CurrentTemperature > hi.CurrentTemperature {
				hi = u
			}
		}
		if spread := hi.CurrentTemperature - lo.CurrentTemperature; spread > maxTemperatureSpread {
			sort.Strings(ids)
			out = append(out, finding{
				kind: model.ConflictTemperatureSpread,
				description: fmt.Sprintf("temperature spread of %.1f°F across online units (%s at %.1f°F, %s at %.1f°F)",
					spread, lo.ID, lo.CurrentTemperature, hi.ID, hi.CurrentTemperature),
				unitIDs: ids,
			})
		}
	}

	if recentModeChanges > maxModeChangesPerHour {
		out = append(out, finding{
			kind:        model.ConflictRapidSwitching,
			description: fmt.Sprintf("%d global mode changes in the last hour", recentModeChanges),
			unitIDs:     []string{},
		})
	}
	return out
}

// rangeFor returns the range that governs a unit: the active schedule's when
// it applies to the unit's room, otherwise the global range.
func rangeFor(u model.UnitState, schedule *model.Schedule, globalMin, globalMax float64) (float64, float64) {
	if schedule != nil && schedule.AppliesToRoom(u.Room) {
		return schedule.TargetMinTemp, schedule.TargetMaxTemp
	}
	return globalMin, globalMax
}

// byPriority orders units highest priority first, then by id.
func byPriority(units []model.UnitState) []model.UnitState {
	out := append([]model.UnitState(nil), units...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type actionPlan struct {
	targetMode   model.Mode
	modes        bool
	temperatures bool
	schedule     *model.Schedule
	globalMin    float64
	globalMax    float64
	// respect reports whether the unit's manual override holds within [min, max].
	respect func(u model.UnitState, min, max float64) bool
	reason  string
}

// desiredTemperature is the setpoint the target mode calls for, and false when
// the mode leaves the setpoint alone.
func desiredTemperature(mode model.Mode, min, max float64) (float64, bool) {
	switch mode {
	case model.ModeHeat:
		return min, true
	case model.ModeCool:
		return max, true
	default:
		return 0, false
	}
}

func generateActions(online []model.UnitState, plan actionPlan) []Action {
	var actions []Action
	for _, u := range byPriority(online) {
		if plan.modes && u.Mode != plan.targetMode {
			actions = append(actions, Action{UnitID: u.ID, Kind: ActionSetMode, Mode: plan.targetMode, Reason: plan.reason})
		}
		if !plan.temperatures {
			continue
		}
		min, max := rangeFor(u, plan.schedule, plan.globalMin, plan.globalMax)
		if plan.respect != nil && plan.respect(u, min, max) {
			continue
		}
		desired, ok := desiredTemperature(plan.targetMode, min, max)
		if !ok {
			continue
		}
		if math.Abs(desired-u.TargetTemperature) >= temperatureDeadband {
			actions = append(actions, Action{UnitID: u.ID, Kind: ActionSetTemperature, Temperature: desired, Reason: plan.reason})
		}
	}
	return actions
}
