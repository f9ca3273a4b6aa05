package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/api"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/bridge"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/datadog"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/device"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/logging"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/notifications"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/scheduler"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/weather"
	"github.com/thatsimonsguy/minisplit-coordinator/system/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config", cfg.ConfigFile).
		Str("state_backend", cfg.StateBackend).
		Int("units", len(cfg.Units)).
		Str("mode_policy", cfg.ModePolicy).
		Msg("Starting mini-split coordinator")

	var seq shutdown.Sequence

	backend, closeBackend, err := store.OpenBackend(cfg)
	if err != nil {
		shutdown.ShutdownWithError(&seq, err, "Failed to open state backend")
	}
	st := store.New(backend, store.WithOverrideTTL(cfg.ManualOverrideTTL()))
	st.Load()
	st.StartAutosave(cfg.AutosaveInterval())

	policy, err := coordinator.PolicyByName(cfg.ModePolicy)
	if err != nil {
		shutdown.ShutdownWithError(&seq, err, "Invalid mode policy")
	}

	devices := device.NewHTTPClient(cfg.Device)
	weatherCache := weather.NewCache(
		weather.NewOpenMeteo(cfg.Weather),
		time.Duration(cfg.Weather.CacheMinutes)*time.Minute,
		cfg.Weather.FallbackTempF,
	)
	metrics := datadog.New(cfg.Datadog)

	opts := []coordinator.Option{
		coordinator.WithPolicy(policy),
		coordinator.WithActionDelay(cfg.ActionDelay()),
		coordinator.WithMetrics(metrics),
	}
	if ntfy := notifications.New(cfg.NtfyTopic); ntfy != nil {
		opts = append(opts, coordinator.WithNotifier(ntfy))
	}
	coord := coordinator.New(st, devices, weatherCache, cfg.Units, opts...)

	var publisher bridge.Publisher
	if cfg.MQTT.Broker != "" {
		pub, err := bridge.Connect(cfg.MQTT, coord)
		if err != nil {
			log.Error().Err(err).Msg("MQTT bridge unavailable, continuing without it")
		} else {
			publisher = pub
			coord.SetPublisher(pub)
		}
	}

	sched := scheduler.New(coord, cfg.CycleInterval())
	server := api.NewServer(coord)

	seq.Add("api", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	})
	seq.AddFunc("scheduler", sched.Stop)
	seq.Add("store", st.Close)
	seq.Add("backend", closeBackend)
	if publisher != nil {
		seq.Add("bridge", publisher.Close)
	}
	seq.AddFunc("metrics", metrics.Close)

	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()
	sched.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("Shutting down coordinator")
	shutdown.Shutdown(&seq)
}
