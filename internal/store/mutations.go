package store

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

// commandMatchTolerance absorbs the rounding a device applies when it echoes
// back a setpoint the coordinator wrote.
const commandMatchTolerance = 0.5

// UnitUpdate is a partial update; nil fields are left untouched.
type UnitUpdate struct {
	CurrentTemperature *float64
	TargetTemperature  *float64
	Mode               *model.Mode
	IsOnline           *bool
	// Reason is recorded on the unit-scoped ModeChangeEvent when Mode changes.
	// Defaults to user_request.
	Reason model.ChangeReason
}

// UpdateGlobalTemperatureRange validates and applies the global range.
// Persistence is left to the save cadence.
func (s *Store) UpdateGlobalTemperatureRange(min, max float64) error {
	if err := model.ValidateRange(min, max); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.GlobalMinTemp = min
	s.state.GlobalMaxTemp = max

	log.Info().Float64("min", min).Float64("max", max).Msg("Global temperature range updated")
	return nil
}

// UpdateGlobalMode records a global mode change. It reports false and records
// nothing when mode is unchanged.
func (s *Store) UpdateGlobalMode(mode model.Mode, reason model.ChangeReason, outsideTemp *float64) (bool, error) {
	if !mode.Valid() {
		return false, &model.ValidationError{Field: "mode", Message: fmt.Sprintf("invalid mode %q", mode)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.GlobalMode
	if prev == mode {
		return false, nil
	}
	s.state.GlobalMode = mode
	s.appendModeChange(model.ModeChangeEvent{
		PreviousMode:        prev,
		NewMode:             mode,
		Reason:              reason,
		OutsideTempAtChange: outsideTemp,
	})

	log.Info().
		Str("from", string(prev)).
		Str("to", string(mode)).
		Str("reason", string(reason)).
		Msg("Global mode changed")
	return true, nil
}

// UpdateUnitState merges update into the unit, creating a default entry when
// the unit is unknown. A target temperature that changes to something other
// than the coordinator's last command is classified as an external write and
// starts a manual override.
func (s *Store) UpdateUnitState(id string, update UnitUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.state.Units[id]
	if !ok {
		u = model.NewUnitState(id)
		s.state.Units[id] = u
	}

	if update.CurrentTemperature != nil {
		u.CurrentTemperature = *update.CurrentTemperature
	}
	if update.IsOnline != nil {
		u.IsOnline = *update.IsOnline
	}
	if update.TargetTemperature != nil {
		target := *update.TargetTemperature
		if target != u.TargetTemperature && u.HasReading {
			if u.LastCommandedTemperature != nil && math.Abs(target-*u.LastCommandedTemperature) < commandMatchTolerance {
				u.LastWriteOrigin = model.OriginCoordinator
				u.ManualOverrideActive = false
				u.LastManualTemperatureChangeAt = nil
			} else {
				u.LastWriteOrigin = model.OriginExternal
				u.ManualOverrideActive = true
				at := now
				u.LastManualTemperatureChangeAt = &at
				log.Info().
					Str("unit", id).
					Float64("from", u.TargetTemperature).
					Float64("to", target).
					Msg("Manual temperature change detected")
			}
		}
		u.TargetTemperature = target
		u.HasReading = true
	}
	if update.Mode != nil && *update.Mode != u.Mode {
		reason := update.Reason
		if reason == "" {
			reason = model.ReasonUserRequest
		}
		s.appendModeChange(model.ModeChangeEvent{
			UnitID:       id,
			PreviousMode: u.Mode,
			NewMode:      *update.Mode,
			Reason:       reason,
		})
		u.Mode = *update.Mode
	}
	u.LastUpdated = now
}

// RecordCoordinatorTemperatureSet marks value as the coordinator's own write
// so the next sync does not mistake it for a user override.
func (s *Store) RecordCoordinatorTemperatureSet(id string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.Units[id]
	if !ok {
		u = model.NewUnitState(id)
		s.state.Units[id] = u
	}
	v := value
	u.LastCommandedTemperature = &v
	u.TargetTemperature = value
	u.LastWriteOrigin = model.OriginCoordinator
	u.ManualOverrideActive = false
	u.LastUpdated = s.now()
}

// ShouldRespectManualOverride applies the override rule against the global range.
func (s *Store) ShouldRespectManualOverride(unit model.UnitState) bool {
	min, max := s.GlobalRange()
	return s.ShouldRespectManualOverrideWithin(unit, min, max)
}

// ShouldRespectManualOverrideWithin reports whether the unit's target was last
// set externally, has not aged out, and lies within [min, max]. An override
// outside the range is never respected.
func (s *Store) ShouldRespectManualOverrideWithin(unit model.UnitState, min, max float64) bool {
	if !unit.ManualOverrideActive || unit.LastWriteOrigin != model.OriginExternal {
		return false
	}
	if s.overrideTTL > 0 && unit.LastManualTemperatureChangeAt != nil &&
		s.now().Sub(*unit.LastManualTemperatureChangeAt) >= s.overrideTTL {
		return false
	}
	return unit.TargetTemperature >= min && unit.TargetTemperature <= max
}

func (s *Store) ClearManualOverride(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.Units[id]
	if !ok {
		return fmt.Errorf("clear override for %s: %w", id, ErrUnknownUnit)
	}
	clearOverride(u)
	log.Info().Str("unit", id).Msg("Manual override cleared")
	return nil
}

func (s *Store) ClearAllManualOverrides() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, u := range s.state.Units {
		if u.ManualOverrideActive {
			n++
		}
		clearOverride(u)
	}
	log.Info().Int("cleared", n).Msg("All manual overrides cleared")
	return n
}

func clearOverride(u *model.UnitState) {
	u.ManualOverrideActive = false
	u.LastWriteOrigin = model.OriginCoordinator
	u.LastManualTemperatureChangeAt = nil
}

func (s *Store) AddConflictEvent(kind model.ConflictKind, description string, unitIDs []string) model.ConflictEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := model.ConflictEvent{
		ID:              uuid.NewString(),
		Timestamp:       s.now(),
		Kind:            kind,
		Description:     description,
		AffectedUnitIDs: append([]string(nil), unitIDs...),
	}
	s.state.Conflicts.Push(ev)

	log.Warn().
		Str("kind", string(kind)).
		Strs("units", unitIDs).
		Str("description", description).
		Msg("Conflict recorded")
	return ev
}

// OpenConflict returns the newest unresolved conflict of kind, if any.
func (s *Store) OpenConflict(kind model.ConflictKind) (model.ConflictEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.state.Conflicts.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == kind && !items[i].Resolved {
			return items[i], true
		}
	}
	return model.ConflictEvent{}, false
}

// ResolveConflict marks the conflict at index (0 = oldest retained) resolved.
func (s *Store) ResolveConflict(index int, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= s.state.Conflicts.Len() {
		return fmt.Errorf("resolve conflict %d: %w", index, ErrConflictIndex)
	}
	ev := s.state.Conflicts.At(index)
	ev.Resolved = true
	ev.Resolution = resolution
	s.state.Conflicts.Set(index, ev)

	log.Info().Int("index", index).Str("kind", string(ev.Kind)).Str("resolution", resolution).Msg("Conflict resolved")
	return nil
}

// UpdateOutsideTemperature records the reading used by the current cycle. A
// zero at means the value is a fallback and leaves the fetch time unchanged.
func (s *Store) UpdateOutsideTemperature(temp float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := temp
	s.state.OutsideTemperature = &t
	if !at.IsZero() {
		ts := at
		s.state.LastOutsideWeatherUpdateAt = &ts
	}
}

// GlobalModeChangesSince counts system-wide mode changes recorded at or after t.
func (s *Store) GlobalModeChangesSince(t time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.state.ModeChangeHistory.Items() {
		if ev.UnitID == "" && !ev.Timestamp.Before(t) {
			n++
		}
	}
	return n
}

// GlobalModeChangesWithin counts system-wide mode changes in the trailing window.
func (s *Store) GlobalModeChangesWithin(window time.Duration) int {
	return s.GlobalModeChangesSince(s.now().Add(-window))
}

func (s *Store) appendModeChange(ev model.ModeChangeEvent) {
	ev.ID = uuid.NewString()
	ev.Timestamp = s.now()
	s.state.ModeChangeHistory.Push(ev)
}
