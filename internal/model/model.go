package model

import (
	"fmt"
	"time"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/ringlog"
)

type Mode string

const (
	ModeOff  Mode = "off"
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeHeat, ModeCool:
		return true
	default:
		return false
	}
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return ModeOff, &ValidationError{Field: "mode", Message: fmt.Sprintf("invalid mode %q, valid modes: off, heat, cool", s)}
	}
	return m, nil
}

type ChangeReason string

const (
	ReasonUserRequest      ChangeReason = "user_request"
	ReasonWeatherBased     ChangeReason = "weather_based"
	ReasonCoordinatorLogic ChangeReason = "coordinator_logic"
	ReasonSchedule         ChangeReason = "schedule"
	ReasonOverride         ChangeReason = "override"
)

type ConflictKind string

const (
	ConflictModeMismatch      ConflictKind = "mode_mismatch"
	ConflictTemperatureSpread ConflictKind = "temperature_spread"
	ConflictRapidSwitching    ConflictKind = "rapid_switching"
)

// WriteOrigin records who last changed a unit's target temperature.
type WriteOrigin string

const (
	OriginCoordinator WriteOrigin = "coordinator"
	OriginExternal    WriteOrigin = "external"
)

const (
	MinAllowedTemp   float64 = 50
	MaxAllowedTemp   float64 = 90
	DefaultMinTemp   float64 = 68
	DefaultMaxTemp   float64 = 72
	ModeHistoryLimit         = 1000
	ConflictLogLimit         = 100
)

type UnitState struct {
	ID                            string      `json:"id"`
	Name                          string      `json:"name"`
	Room                          string      `json:"room"`
	CurrentTemperature            float64     `json:"current_temperature"`
	TargetTemperature             float64     `json:"target_temperature"`
	Mode                          Mode        `json:"mode"`
	IsOnline                      bool        `json:"is_online"`
	LastUpdated                   time.Time   `json:"last_updated"`
	HasReading                    bool        `json:"has_reading"` // a device reading has supplied the setpoint
	Priority                      int         `json:"priority"`
	ManualOverrideActive          bool        `json:"manual_override_active"`
	LastManualTemperatureChangeAt *time.Time  `json:"last_manual_temperature_change_at,omitempty"`
	LastWriteOrigin               WriteOrigin `json:"last_write_origin,omitempty"`
	LastCommandedTemperature      *float64    `json:"last_commanded_temperature,omitempty"`
}

// NewUnitState returns the first-boot defaults for a configured unit.
func NewUnitState(id string) *UnitState {
	return &UnitState{
		ID:              id,
		Name:            id,
		Mode:            ModeOff,
		IsOnline:        false,
		LastWriteOrigin: OriginCoordinator,
	}
}

type ModeChangeEvent struct {
	ID                  string       `json:"id"`
	Timestamp           time.Time    `json:"timestamp"`
	UnitID              string       `json:"unit_id,omitempty"` // empty for global changes
	PreviousMode        Mode         `json:"previous_mode"`
	NewMode             Mode         `json:"new_mode"`
	Reason              ChangeReason `json:"reason"`
	OutsideTempAtChange *float64     `json:"outside_temp_at_change,omitempty"`
}

type ConflictEvent struct {
	ID              string       `json:"id"`
	Timestamp       time.Time    `json:"timestamp"`
	Kind            ConflictKind `json:"kind"`
	Description     string       `json:"description"`
	AffectedUnitIDs []string     `json:"affected_unit_ids"`
	Resolved        bool         `json:"resolved"`
	Resolution      string       `json:"resolution,omitempty"`
}

type SystemState struct {
	GlobalMode                 Mode                            `json:"global_mode"`
	GlobalMinTemp              float64                         `json:"global_min_temp"`
	GlobalMaxTemp              float64                         `json:"global_max_temp"`
	OutsideTemperature         *float64                        `json:"outside_temperature,omitempty"`
	LastOutsideWeatherUpdateAt *time.Time                      `json:"last_outside_weather_update_at,omitempty"`
	Units                      map[string]*UnitState           `json:"units"`
	ModeChangeHistory          *ringlog.Ring[ModeChangeEvent] `json:"mode_change_history"`
	Conflicts                  *ringlog.Ring[ConflictEvent]   `json:"conflicts"`
}

func DefaultSystemState() *SystemState {
	return &SystemState{
		GlobalMode:        ModeOff,
		GlobalMinTemp:     DefaultMinTemp,
		GlobalMaxTemp:     DefaultMaxTemp,
		Units:             map[string]*UnitState{},
		ModeChangeHistory: ringlog.New[ModeChangeEvent](ModeHistoryLimit),
		Conflicts:         ringlog.New[ConflictEvent](ConflictLogLimit),
	}
}

// Normalize repairs a freshly decoded state: nil maps and logs are replaced and
// the logs are re-bounded to their fixed capacities.
func (s *SystemState) Normalize() {
	if s.Units == nil {
		s.Units = map[string]*UnitState{}
	}
	for id, u := range s.Units {
		if u == nil {
			s.Units[id] = NewUnitState(id)
			continue
		}
		if !u.Mode.Valid() {
			u.Mode = ModeOff
		}
		if u.LastWriteOrigin == "" {
			u.LastWriteOrigin = OriginCoordinator
		}
	}
	if !s.GlobalMode.Valid() {
		s.GlobalMode = ModeOff
	}
	if ValidateRange(s.GlobalMinTemp, s.GlobalMaxTemp) != nil {
		s.GlobalMinTemp, s.GlobalMaxTemp = DefaultMinTemp, DefaultMaxTemp
	}
	s.ModeChangeHistory = ringlog.FromItems(ModeHistoryLimit, s.ModeChangeHistory.Items())
	s.Conflicts = ringlog.FromItems(ConflictLogLimit, s.Conflicts.Items())
}

// Clone returns a deep copy safe to hand to readers outside the store lock.
func (s *SystemState) Clone() *SystemState {
	out := *s
	out.Units = make(map[string]*UnitState, len(s.Units))
	for id, u := range s.Units {
		cp := *u
		out.Units[id] = &cp
	}
	out.ModeChangeHistory = ringlog.FromItems(ModeHistoryLimit, s.ModeChangeHistory.Items())
	out.Conflicts = ringlog.FromItems(ConflictLogLimit, s.Conflicts.Items())
	return &out
}

func (s *SystemState) OnlineUnits() []*UnitState {
	var out []*UnitState
	for _, u := range s.Units {
		if u.IsOnline {
			out = append(out, u)
		}
	}
	return out
}

func (s *SystemState) UnresolvedConflicts() int {
	n := 0
	for _, c := range s.Conflicts.Items() {
		if !c.Resolved {
			n++
		}
	}
	return n
}
