package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/device"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
)

// WeatherSource supplies the outdoor temperature. CurrentTemperature is
// expected to degrade to a cached or fallback value instead of failing.
type WeatherSource interface {
	CurrentTemperature(ctx context.Context) (float64, error)
	CacheValid() bool
	LastUpdated() time.Time
}

// Notifier sends a push notification.
type Notifier interface {
	Send(title, message string) error
}

// Metrics receives per-cycle gauges.
type Metrics interface {
	Gauge(name string, value float64, tags ...string)
}

// StatusPublisher is told about the aggregate state after every cycle and
// manual call.
type StatusPublisher interface {
	PublishStatus(Status) error
}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Status struct {
	IsRunning           bool       `json:"is_running"`
	IsAuthenticated     bool       `json:"is_authenticated"`
	GlobalMode          model.Mode `json:"global_mode"`
	GlobalRange         Range      `json:"global_range"`
	OutsideTemperature  *float64   `json:"outside_temperature,omitempty"`
	LastWeatherUpdate   *time.Time `json:"last_weather_update,omitempty"`
	OnlineUnits         int        `json:"online_units"`
	TotalUnits          int        `json:"total_units"`
	UnresolvedConflicts int        `json:"unresolved_conflicts"`
	WeatherCacheValid   bool       `json:"weather_cache_valid"`
}

// ActionFailure is a command the device API rejected.
type ActionFailure struct {
	Action Action `json:"action"`
	Error  string `json:"error"`
}

type CycleResult struct {
	Success    bool                  `json:"success"`
	Actions    []Action              `json:"actions"`
	Conflicts  []model.ConflictEvent `json:"conflicts"`
	SystemMode model.Mode            `json:"system_mode"`
	Reasoning  string                `json:"reasoning"`
	Failures   []ActionFailure       `json:"failures,omitempty"`
	// Executed is false when the action list was skipped for lack of credentials.
	Executed bool `json:"executed"`
}

// Coordinator runs coordination cycles and the manual API. At most one cycle
// or manual call mutates unit state at a time.
type Coordinator struct {
	store   *store.Store
	devices device.Client
	weather WeatherSource
	units   []config.Unit

	policy      ModePolicy
	actionDelay time.Duration
	sleep       func(time.Duration)

	notifier  Notifier
	metrics   Metrics
	publisher StatusPublisher

	cycleMu sync.Mutex
	running atomic.Bool
}

type Option func(*Coordinator)

func WithPolicy(p ModePolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithActionDelay sets the pause between consecutive device commands.
func WithActionDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.actionDelay = d }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithPublisher(p StatusPublisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

func New(st *store.Store, devices device.Client, weather WeatherSource, units []config.Unit, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       st,
		devices:     devices,
		weather:     weather,
		units:       units,
		policy:      SetpointPolicy{},
		actionDelay: time.Second,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	st.EnsureUnits(units)
	return c
}

// SetPublisher attaches a publisher after construction; the bridge needs the
// coordinator before it can publish for it.
func (c *Coordinator) SetPublisher(p StatusPublisher) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	c.publisher = p
}

// SetRunning is toggled by the scheduler.
func (c *Coordinator) SetRunning(v bool) {
	c.running.Store(v)
}

func (c *Coordinator) GetCoordinatorStatus() Status {
	snap := c.store.Snapshot()
	st := Status{
		IsRunning:           c.running.Load(),
		IsAuthenticated:     c.devices.IsAuthenticated(),
		GlobalMode:          snap.GlobalMode,
		GlobalRange:         Range{Min: snap.GlobalMinTemp, Max: snap.GlobalMaxTemp},
		OutsideTemperature:  snap.OutsideTemperature,
		LastWeatherUpdate:   snap.LastOutsideWeatherUpdateAt,
		OnlineUnits:         len(snap.OnlineUnits()),
		TotalUnits:          len(c.units),
		UnresolvedConflicts: snap.UnresolvedConflicts(),
		WeatherCacheValid:   c.weather.CacheValid(),
	}
	return st
}
