package store

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

// UpdatePreferences replaces the preferences record after validation.
func (s *Store) UpdatePreferences(p model.UserPreferences) error {
	next := p.Clone()
	next.Normalize()
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = next
	s.applyRoomPriorities()

	log.Info().Int("schedules", len(next.Schedules)).Msg("User preferences updated")
	return nil
}

// UpsertSchedule replaces the schedule with the same id or appends it.
func (s *Store) UpsertSchedule(sched model.Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs.Clone()
	replaced := false
	for i := range next.Schedules {
		if next.Schedules[i].ID == sched.ID {
			next.Schedules[i] = sched
			replaced = true
			break
		}
	}
	if !replaced {
		next.Schedules = append(next.Schedules, sched)
	}
	s.prefs = next.Clone()

	log.Info().Str("schedule", sched.ID).Bool("replaced", replaced).Msg("Schedule saved")
	return nil
}

func (s *Store) DeleteSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.prefs.Schedules {
		if s.prefs.Schedules[i].ID == id {
			s.prefs.Schedules = append(s.prefs.Schedules[:i], s.prefs.Schedules[i+1:]...)
			log.Info().Str("schedule", id).Msg("Schedule deleted")
			return nil
		}
	}
	return fmt.Errorf("delete schedule %s: %w", id, ErrUnknownSchedule)
}

// SetRoomPriority records the default priority for a room and applies it to
// every unit in that room.
func (s *Store) SetRoomPriority(room string, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs.RoomPriorities[room] = priority
	s.applyRoomPriorities()
	log.Info().Str("room", room).Int("priority", priority).Msg("Room priority updated")
}

// applyRoomPriorities must be called with mu held.
func (s *Store) applyRoomPriorities() {
	for _, u := range s.state.Units {
		if p, ok := s.prefs.RoomPriorities[u.Room]; ok && u.Room != "" {
			u.Priority = p
		}
	}
}
