package shutdown

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

type step struct {
	name string
	fn   func() error
}

// Sequence runs teardown steps in the order they were added. Every step runs
// even when an earlier one fails.
type Sequence struct {
	steps []step
}

func (s *Sequence) Add(name string, fn func() error) {
	s.steps = append(s.steps, step{name: name, fn: fn})
}

// AddFunc adds a step that cannot fail, such as stopping the scheduler.
func (s *Sequence) AddFunc(name string, fn func()) {
	s.Add(name, func() error {
		fn()
		return nil
	})
}

func (s *Sequence) Run() error {
	var errs []error
	for _, st := range s.steps {
		if err := st.fn(); err != nil {
			log.Error().Err(err).Str("step", st.name).Msg("Shutdown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		log.Info().Str("step", st.name).Msg("Shutdown step complete")
	}
	return errors.Join(errs...)
}

// Shutdown runs seq and exits, non-zero if any step failed.
func Shutdown(seq *Sequence) {
	if err := seq.Run(); err != nil {
		os.Exit(1)
	}
	log.Info().Msg("Coordinator stopped")
	os.Exit(0)
}

func ShutdownWithError(seq *Sequence, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	_ = seq.Run()
	os.Exit(1)
}
