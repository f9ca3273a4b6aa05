package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
)

// Gauger is the subset of the statsd client the coordinator uses.
type Gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Metrics emits cycle gauges to a DogStatsD agent. A nil or disabled Metrics
// drops every gauge.
type Metrics struct {
	client Gauger
}

func New(cfg config.Datadog) *Metrics {
	if !cfg.Enabled {
		log.Info().Msg("Datadog metrics disabled")
		return &Metrics{}
	}

	client, err := statsd.New(cfg.AgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return &Metrics{}
	}
	client.Namespace = cfg.Namespace
	client.Tags = cfg.Tags

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
	return &Metrics{client: client}
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(client Gauger) *Metrics {
	return &Metrics{client: client}
}

func (m *Metrics) Gauge(name string, value float64, tags ...string) {
	if m == nil || m.client == nil {
		return
	}
	if err := m.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (m *Metrics) Close() {
	if m == nil || m.client == nil {
		return
	}
	if err := m.client.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close DogStatsD client")
	}
}
