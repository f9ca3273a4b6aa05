package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
)

// Cycler is the part of the coordinator the scheduler drives.
type Cycler interface {
	RunCoordinationCycle(ctx context.Context) coordinator.CycleResult
	TryRunCoordinationCycle(ctx context.Context) (coordinator.CycleResult, bool)
	SetRunning(bool)
}

// Scheduler runs a coordination cycle on start and then every interval.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cycler Cycler, interval time.Duration) *Scheduler {
	return &Scheduler{cycler: cycler, interval: interval}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.cycler.SetRunning(true)

	go s.loop(ctx, s.done)
	log.Info().Dur("interval", s.interval).Msg("Coordination scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.cycler.RunCoordinationCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, ran := s.cycler.TryRunCoordinationCycle(ctx); !ran {
				log.Info().Msg("Coordination cycle already in progress, skipping tick")
			}
		}
	}
}

// Stop cancels the timer and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.cycler.SetRunning(false)
	log.Info().Msg("Coordination scheduler stopped")
}

// RunOnce runs a cycle now, waiting behind any cycle already in flight.
func (s *Scheduler) RunOnce(ctx context.Context) coordinator.CycleResult {
	return s.cycler.RunCoordinationCycle(ctx)
}
