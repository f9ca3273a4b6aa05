package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

// Call is one command received by FakeClient.
type Call struct {
	Op     string // "mode" or "temperature"
	UnitID string
	Mode   model.Mode
	Temp   float64
}

// FakeClient is an in-memory device API. Successful commands update the
// stored reading so a following GetStatus reflects them.
type FakeClient struct {
	mu            sync.Mutex
	authenticated bool
	readings      map[string]UnitReading
	statusErrs    map[string]error
	commandErrs   map[string]error
	calls         []Call
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		authenticated: true,
		readings:      map[string]UnitReading{},
		statusErrs:    map[string]error{},
		commandErrs:   map[string]error{},
	}
}

func (f *FakeClient) SetAuthenticated(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authenticated = v
}

// SetReading stores a °F reading for unitID.
func (f *FakeClient) SetReading(unitID string, current, setpoint float64, mode model.Mode) {
	f.SetRawReading(unitID, UnitReading{
		Current:  Temperature{Value: current, Unit: Fahrenheit},
		Setpoint: Temperature{Value: setpoint, Unit: Fahrenheit},
		Mode:     string(mode),
	})
}

func (f *FakeClient) SetRawReading(unitID string, r UnitReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings[unitID] = r
}

// FailStatus makes GetStatus for unitID fail; nil clears it.
func (f *FakeClient) FailStatus(unitID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErrs[unitID] = err
}

// FailCommands makes every command for unitID fail; nil clears it.
func (f *FakeClient) FailCommands(unitID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commandErrs[unitID] = err
}

// Calls returns every command attempted, successful or not, in order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeClient) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeClient) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *FakeClient) GetStatus(_ context.Context, unitID string) (UnitReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErrs[unitID]; err != nil {
		return UnitReading{}, err
	}
	r, ok := f.readings[unitID]
	if !ok {
		return UnitReading{}, fmt.Errorf("unit %s not found", unitID)
	}
	return r, nil
}

func (f *FakeClient) SetMode(_ context.Context, unitID string, mode model.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "mode", UnitID: unitID, Mode: mode})
	if err := f.commandErrs[unitID]; err != nil {
		return err
	}
	if r, ok := f.readings[unitID]; ok {
		r.Mode = string(mode)
		f.readings[unitID] = r
	}
	return nil
}

func (f *FakeClient) SetTemperature(_ context.Context, unitID string, tempF float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "temperature", UnitID: unitID, Temp: tempF})
	if err := f.commandErrs[unitID]; err != nil {
		return err
	}
	if r, ok := f.readings[unitID]; ok {
		r.Setpoint = Temperature{Value: tempF, Unit: Fahrenheit}
		f.readings[unitID] = r
	}
	return nil
}
