package bridge

import (
	"sync"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
)

// FakePublisher records published statuses for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Statuses []coordinator.Status
	Payloads [][]byte

	// PublishError, if set, is returned by PublishStatus.
	PublishError error
	Closed       bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishStatus(s coordinator.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatus(s)
	if err != nil {
		return err
	}
	f.Statuses = append(f.Statuses, s)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Last returns the most recent status, or false when nothing was published.
func (f *FakePublisher) Last() (coordinator.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Statuses) == 0 {
		return coordinator.Status{}, false
	}
	return f.Statuses[len(f.Statuses)-1], true
}
