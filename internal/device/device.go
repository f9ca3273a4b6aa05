package device

import (
	"context"
	"fmt"
	"math"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

// Client is the cloud device API as the coordinator sees it. Implementations
// bound every call with their own timeout.
type Client interface {
	IsAuthenticated() bool
	GetStatus(ctx context.Context, unitID string) (UnitReading, error)
	SetMode(ctx context.Context, unitID string, mode model.Mode) error
	SetTemperature(ctx context.Context, unitID string, tempF float64) error
}

type TempUnit string

const (
	Celsius    TempUnit = "C"
	Fahrenheit TempUnit = "F"
)

// Temperature is a value tagged with the scale the device reported it in.
type Temperature struct {
	Value float64  `json:"value"`
	Unit  TempUnit `json:"unit"`
}

func (t Temperature) Fahrenheit() (float64, error) {
	switch t.Unit {
	case Fahrenheit:
		return t.Value, nil
	case Celsius:
		return t.Value*9/5 + 32, nil
	default:
		return 0, fmt.Errorf("unknown temperature unit %q", t.Unit)
	}
}

// UnitReading is one status poll of a unit.
type UnitReading struct {
	Current  Temperature `json:"current_temperature"`
	Setpoint Temperature `json:"setpoint"`
	Mode     string      `json:"mode"`
}

// Normalized is a reading converted to °F with a validated mode.
type Normalized struct {
	CurrentTemperature float64
	TargetTemperature  float64
	Mode               model.Mode
}

// Normalize converts the reading to °F. Unknown scales and modes are rejected
// so malformed payloads never reach the decision engine.
func (r UnitReading) Normalize() (Normalized, error) {
	current, err := r.Current.Fahrenheit()
	if err != nil {
		return Normalized{}, fmt.Errorf("current temperature: %w", err)
	}
	target, err := r.Setpoint.Fahrenheit()
	if err != nil {
		return Normalized{}, fmt.Errorf("setpoint: %w", err)
	}
	mode, err := model.ParseMode(r.Mode)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{
		CurrentTemperature: roundTenth(current),
		TargetTemperature:  roundTenth(target),
		Mode:               mode,
	}, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
