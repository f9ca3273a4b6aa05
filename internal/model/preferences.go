package model

import (
	"fmt"
	"slices"
	"time"
)

type Schedule struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Enabled         bool     `json:"enabled"`
	TimeStart       string   `json:"time_start"` // HH:MM local time
	TimeEnd         string   `json:"time_end"`
	DaysOfWeek      []int    `json:"days_of_week"` // 0=Sunday ... 6=Saturday
	TargetMinTemp   float64  `json:"target_min_temp"`
	TargetMaxTemp   float64  `json:"target_max_temp"`
	Mode            *Mode    `json:"mode,omitempty"`
	ApplicableRooms []string `json:"applicable_rooms,omitempty"` // nil means every room
}

type UserPreferences struct {
	DefaultMinTemp    float64        `json:"default_min_temp"`
	DefaultMaxTemp    float64        `json:"default_max_temp"`
	Schedules         []Schedule     `json:"schedules"`
	RoomPriorities    map[string]int `json:"room_priorities"`
	HysteresisDegrees float64        `json:"hysteresis_degrees"`
}

func DefaultPreferences() *UserPreferences {
	return &UserPreferences{
		DefaultMinTemp:    DefaultMinTemp,
		DefaultMaxTemp:    DefaultMaxTemp,
		Schedules:         []Schedule{},
		RoomPriorities:    map[string]int{},
		HysteresisDegrees: 2,
	}
}

func (p *UserPreferences) Normalize() {
	if p.Schedules == nil {
		p.Schedules = []Schedule{}
	}
	if p.RoomPriorities == nil {
		p.RoomPriorities = map[string]int{}
	}
	if ValidateRange(p.DefaultMinTemp, p.DefaultMaxTemp) != nil {
		p.DefaultMinTemp, p.DefaultMaxTemp = DefaultMinTemp, DefaultMaxTemp
	}
	if p.HysteresisDegrees < 0 {
		p.HysteresisDegrees = 0
	}
}

func (p *UserPreferences) Clone() *UserPreferences {
	out := *p
	out.Schedules = make([]Schedule, len(p.Schedules))
	for i, s := range p.Schedules {
		out.Schedules[i] = s.clone()
	}
	out.RoomPriorities = make(map[string]int, len(p.RoomPriorities))
	for k, v := range p.RoomPriorities {
		out.RoomPriorities[k] = v
	}
	return &out
}

func (p *UserPreferences) Validate() error {
	if err := ValidateRange(p.DefaultMinTemp, p.DefaultMaxTemp); err != nil {
		return err
	}
	if p.HysteresisDegrees < 0 || p.HysteresisDegrees > 10 {
		return &ValidationError{Field: "hysteresis_degrees", Message: "hysteresis must be between 0 and 10 degrees"}
	}
	seen := map[string]bool{}
	for _, s := range p.Schedules {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return &ValidationError{Field: "schedules", Message: fmt.Sprintf("duplicate schedule id %q", s.ID)}
		}
		seen[s.ID] = true
	}
	return nil
}

func (s Schedule) clone() Schedule {
	out := s
	out.DaysOfWeek = slices.Clone(s.DaysOfWeek)
	out.ApplicableRooms = slices.Clone(s.ApplicableRooms)
	if s.Mode != nil {
		m := *s.Mode
		out.Mode = &m
	}
	return out
}

func (s Schedule) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "schedule.id", Message: "schedule id is required"}
	}
	if _, err := parseClock(s.TimeStart); err != nil {
		return &ValidationError{Field: "schedule.time_start", Message: err.Error()}
	}
	if _, err := parseClock(s.TimeEnd); err != nil {
		return &ValidationError{Field: "schedule.time_end", Message: err.Error()}
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return &ValidationError{Field: "schedule.days_of_week", Message: fmt.Sprintf("day %d out of range 0-6", d)}
		}
	}
	if s.Mode != nil && !s.Mode.Valid() {
		return &ValidationError{Field: "schedule.mode", Message: fmt.Sprintf("invalid mode %q", *s.Mode)}
	}
	return ValidateRange(s.TargetMinTemp, s.TargetMaxTemp)
}

// ActiveAt reports whether the schedule covers t. A window whose end is
// earlier than its start wraps past midnight and belongs to the start day.
func (s Schedule) ActiveAt(t time.Time) bool {
	if !s.Enabled {
		return false
	}
	start, err := parseClock(s.TimeStart)
	if err != nil {
		return false
	}
	end, err := parseClock(s.TimeEnd)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	day := int(t.Weekday())

	if start <= end {
		return slices.Contains(s.DaysOfWeek, day) && now >= start && now < end
	}
	if now >= start {
		return slices.Contains(s.DaysOfWeek, day)
	}
	if now < end {
		return slices.Contains(s.DaysOfWeek, (day+6)%7)
	}
	return false
}

func (s Schedule) AppliesToRoom(room string) bool {
	return s.ApplicableRooms == nil || slices.Contains(s.ApplicableRooms, room)
}

// ActiveSchedule returns the first schedule, in configured order, active at t.
func ActiveSchedule(schedules []Schedule, t time.Time) *Schedule {
	for i := range schedules {
		if schedules[i].ActiveAt(t) {
			s := schedules[i].clone()
			return &s
		}
	}
	return nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
