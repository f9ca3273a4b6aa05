package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
)

// fakeCycler mimics the coordinator's single-cycle lock.
type fakeCycler struct {
	mu       sync.Mutex
	cycles   atomic.Int32
	skipped  atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	running  atomic.Bool
	duration time.Duration
}

func (f *fakeCycler) cycle() coordinator.CycleResult {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(f.duration)
	f.inFlight.Add(-1)
	f.cycles.Add(1)
	return coordinator.CycleResult{Success: true}
}

func (f *fakeCycler) RunCoordinationCycle(context.Context) coordinator.CycleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycle()
}

func (f *fakeCycler) TryRunCoordinationCycle(context.Context) (coordinator.CycleResult, bool) {
	if !f.mu.TryLock() {
		f.skipped.Add(1)
		return coordinator.CycleResult{}, false
	}
	defer f.mu.Unlock()
	return f.cycle(), true
}

func (f *fakeCycler) SetRunning(v bool) { f.running.Store(v) }

func TestStartRunsImmediatelyThenOnInterval(t *testing.T) {
	f := &fakeCycler{}
	s := New(f, 20*time.Millisecond)

	s.Start()
	assert.Eventually(t, func() bool { return f.cycles.Load() >= 1 }, time.Second, time.Millisecond)
	assert.True(t, f.running.Load())

	assert.Eventually(t, func() bool { return f.cycles.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, f.running.Load())

	after := f.cycles.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, f.cycles.Load(), "no cycles after Stop")
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	f := &fakeCycler{duration: 80 * time.Millisecond}
	s := New(f, time.Hour)

	s.Start()
	require.Eventually(t, func() bool { return f.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	assert.EqualValues(t, 0, f.inFlight.Load())
	assert.EqualValues(t, 1, f.cycles.Load())
}

func TestRunOnceSerializesWithTimer(t *testing.T) {
	f := &fakeCycler{duration: 15 * time.Millisecond}
	s := New(f, 5*time.Millisecond)
	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, s.RunOnce(context.Background()).Success)
		}()
	}
	wg.Wait()
	s.Stop()

	assert.False(t, f.overlap.Load(), "cycles must never overlap")
	assert.Greater(t, f.skipped.Load(), int32(0), "busy ticks are skipped")
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	f := &fakeCycler{}
	s := New(f, time.Hour)

	s.Stop()
	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return f.cycles.Load() == 1 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()
	assert.EqualValues(t, 1, f.cycles.Load())
}
