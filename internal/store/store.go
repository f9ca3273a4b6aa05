package store

import (
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

var (
	ErrUnknownUnit     = errors.New("unknown unit")
	ErrConflictIndex   = errors.New("conflict index out of range")
	ErrUnknownSchedule = errors.New("unknown schedule")
)

// Backend persists the two durable records. A record that has never been
// saved is reported with an error wrapping fs.ErrNotExist.
type Backend interface {
	LoadSystemState() (*model.SystemState, error)
	SaveSystemState(*model.SystemState) error
	LoadPreferences() (*model.UserPreferences, error)
	SavePreferences(*model.UserPreferences) error
}

// Store owns SystemState and UserPreferences. Every mutation goes through its
// methods so the history and conflict bookkeeping stays consistent.
type Store struct {
	backend Backend

	mu    sync.RWMutex
	state *model.SystemState
	prefs *model.UserPreferences

	now         func() time.Time
	overrideTTL time.Duration

	stopAutosave chan struct{}
	autosaveWG   sync.WaitGroup
	closeOnce    sync.Once
}

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOverrideTTL ages manual overrides out after ttl; zero keeps them until cleared.
func WithOverrideTTL(ttl time.Duration) Option {
	return func(s *Store) { s.overrideTTL = ttl }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		state:   model.DefaultSystemState(),
		prefs:   model.DefaultPreferences(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads both records. Missing records start from defaults; unreadable
// ones also fall back to defaults so the coordinator can keep running.
func (s *Store) Load() {
	state, err := s.backend.LoadSystemState()
	switch {
	case err == nil:
		state.Normalize()
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Msg("No persisted system state, starting with defaults")
		state = model.DefaultSystemState()
	default:
		log.Warn().Err(err).Msg("Persisted system state unreadable, starting with defaults (recoverable data loss)")
		state = model.DefaultSystemState()
	}

	prefs, err := s.backend.LoadPreferences()
	switch {
	case err == nil:
		prefs.Normalize()
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Msg("No persisted user preferences, starting with defaults")
		prefs = model.DefaultPreferences()
	default:
		log.Warn().Err(err).Msg("Persisted user preferences unreadable, starting with defaults (recoverable data loss)")
		prefs = model.DefaultPreferences()
	}

	s.mu.Lock()
	s.state = state
	s.prefs = prefs
	s.mu.Unlock()

	log.Info().
		Str("mode", string(state.GlobalMode)).
		Float64("min", state.GlobalMinTemp).
		Float64("max", state.GlobalMaxTemp).
		Int("units", len(state.Units)).
		Int("schedules", len(prefs.Schedules)).
		Msg("Loaded coordinator state")
}

// Save writes both records from a consistent snapshot.
func (s *Store) Save() error {
	s.mu.RLock()
	state := s.state.Clone()
	prefs := s.prefs.Clone()
	s.mu.RUnlock()

	var errs []error
	if err := s.backend.SaveSystemState(state); err != nil {
		errs = append(errs, err)
	}
	if err := s.backend.SavePreferences(prefs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StartAutosave saves on every tick until Close. Failed saves are logged and
// retried on the next tick.
func (s *Store) StartAutosave(interval time.Duration) {
	s.stopAutosave = make(chan struct{})
	s.autosaveWG.Add(1)
	go func() {
		defer s.autosaveWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("Starting state autosave")
		for {
			select {
			case <-s.stopAutosave:
				return
			case <-ticker.C:
				if err := s.Save(); err != nil {
					log.Error().Err(err).Msg("Autosave failed, will retry on next tick")
				} else {
					log.Debug().Msg("State autosaved")
				}
			}
		}
	}()
}

// Close stops autosave and performs the final save.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopAutosave != nil {
			close(s.stopAutosave)
			s.autosaveWG.Wait()
		}
		err = s.Save()
		if err != nil {
			log.Error().Err(err).Msg("Final state save failed")
			return
		}
		log.Info().Msg("State saved on shutdown")
	})
	return err
}

// EnsureUnits creates first-boot entries for configured units and refreshes
// their display metadata. Priority comes from the unit config when set,
// otherwise from the room priority preference.
func (s *Store) EnsureUnits(units []config.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cu := range units {
		u, ok := s.state.Units[cu.ID]
		if !ok {
			u = model.NewUnitState(cu.ID)
			s.state.Units[cu.ID] = u
			log.Info().Str("unit", cu.ID).Msg("Registered new unit with defaults")
		}
		if cu.Name != "" {
			u.Name = cu.Name
		}
		u.Room = cu.Room
		if cu.Priority != nil {
			u.Priority = *cu.Priority
		} else {
			u.Priority = s.prefs.RoomPriorities[cu.Room]
		}
	}
}

func (s *Store) Snapshot() *model.SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Preferences() *model.UserPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Clone()
}

// Unit returns a copy of the unit's state.
func (s *Store) Unit(id string) (model.UnitState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.Units[id]
	if !ok {
		return model.UnitState{}, false
	}
	return *u, true
}

func (s *Store) GlobalRange() (float64, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GlobalMinTemp, s.state.GlobalMaxTemp
}

func (s *Store) GlobalMode() model.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GlobalMode
}

// GetActiveSchedule returns the first enabled schedule covering the current
// local day and time, or nil.
func (s *Store) GetActiveSchedule() *model.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.ActiveSchedule(s.prefs.Schedules, s.now())
}
