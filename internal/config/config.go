package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Unit struct {
	ID       string `mapstructure:"id" json:"id"`
	Name     string `mapstructure:"name" json:"name"`
	Room     string `mapstructure:"room" json:"room"`
	Priority *int   `mapstructure:"priority" json:"priority,omitempty"`
}

type Weather struct {
	BaseURL        string  `mapstructure:"base_url"`
	Latitude       float64 `mapstructure:"latitude"`
	Longitude      float64 `mapstructure:"longitude"`
	CacheMinutes   int     `mapstructure:"cache_minutes"`
	FallbackTempF  float64 `mapstructure:"fallback_temp_f"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type Device struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MQTT struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type Datadog struct {
	Enabled   bool     `mapstructure:"enabled"`
	AgentAddr string   `mapstructure:"agent_addr"`
	Namespace string   `mapstructure:"namespace"`
	Tags      []string `mapstructure:"tags"`
}

type Service struct {
	User     string `mapstructure:"user"`
	Workdir  string `mapstructure:"workdir"`
	UnitPath string `mapstructure:"unit_path"`
	ExecPath string `mapstructure:"exec_path"`
}

type Config struct {
	ConfigFile string        `mapstructure:"-"`
	LogLevel   zerolog.Level `mapstructure:"-"`

	LogLevelName string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`

	StateBackend string `mapstructure:"state_backend"`
	StateDir     string `mapstructure:"state_dir"`
	DBPath       string `mapstructure:"db_path"`

	Units []Unit `mapstructure:"units"`

	CycleIntervalMinutes     int    `mapstructure:"cycle_interval_minutes"`
	AutosaveIntervalMinutes  int    `mapstructure:"autosave_interval_minutes"`
	ActionDelayMillis        int    `mapstructure:"action_delay_ms"`
	ModePolicy               string `mapstructure:"mode_policy"`
	ManualOverrideTTLMinutes int    `mapstructure:"manual_override_ttl_minutes"`

	APIPort   int    `mapstructure:"api_port"`
	NtfyTopic string `mapstructure:"ntfy_topic"`

	Weather Weather `mapstructure:"weather"`
	Device  Device  `mapstructure:"device"`
	MQTT    MQTT    `mapstructure:"mqtt"`
	Datadog Datadog `mapstructure:"datadog"`
	Service Service `mapstructure:"service"`
}

func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMinutes) * time.Minute
}

func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveIntervalMinutes) * time.Minute
}

func (c *Config) ActionDelay() time.Duration {
	return time.Duration(c.ActionDelayMillis) * time.Millisecond
}

func (c *Config) ManualOverrideTTL() time.Duration {
	return time.Duration(c.ManualOverrideTTLMinutes) * time.Minute
}

// Load parses command-line flags and reads the config file. Environment
// variables prefixed MINISPLIT_ override file values; a .env file in the
// working directory is honoured when present.
func Load() (*Config, error) {
	var configFile string
	flag.StringVar(&configFile, "config-file", "config.json", "Path to coordinator config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	if *logLevel != "" {
		cfg.LogLevelName = *logLevel
		cfg.LogLevel = parseLogLevel(*logLevel)
	}
	return cfg, nil
}

func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("MINISPLIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "/var/log/minisplit-coordinator.log")
	v.SetDefault("state_backend", "json")
	v.SetDefault("state_dir", "data")
	v.SetDefault("db_path", "data/coordinator.db")
	v.SetDefault("cycle_interval_minutes", 2)
	v.SetDefault("autosave_interval_minutes", 5)
	v.SetDefault("action_delay_ms", 1000)
	v.SetDefault("mode_policy", "setpoint")
	v.SetDefault("manual_override_ttl_minutes", 240)
	v.SetDefault("api_port", 8080)
	v.SetDefault("weather.base_url", "https://api.open-meteo.com")
	v.SetDefault("weather.cache_minutes", 15)
	v.SetDefault("weather.fallback_temp_f", 70)
	v.SetDefault("weather.timeout_seconds", 10)
	v.SetDefault("device.base_url", "")
	v.SetDefault("device.token", "")
	v.SetDefault("device.timeout_seconds", 10)
	v.SetDefault("ntfy_topic", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "minisplit-coordinator")
	v.SetDefault("mqtt.topic_prefix", "minisplit")
	v.SetDefault("datadog.agent_addr", "127.0.0.1:8125")
	v.SetDefault("datadog.namespace", "minisplit.")
	v.SetDefault("service.unit_path", "/etc/systemd/system/minisplit-coordinator.service")
	v.SetDefault("service.exec_path", "/usr/local/bin/minisplit-coordinator")
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Validate collects every problem before failing so a bad config file can be
// fixed in one pass.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Units) == 0 {
		problems = append(problems, "at least one unit must be configured")
	}
	seen := map[string]bool{}
	for i, u := range c.Units {
		if u.ID == "" {
			problems = append(problems, fmt.Sprintf("units[%d].id is required", i))
			continue
		}
		if seen[u.ID] {
			problems = append(problems, fmt.Sprintf("duplicate unit id %q", u.ID))
		}
		seen[u.ID] = true
	}

	switch c.StateBackend {
	case "json", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown state_backend %q (json, sqlite)", c.StateBackend))
	}
	switch c.ModePolicy {
	case "setpoint", "hysteresis":
	default:
		problems = append(problems, fmt.Sprintf("unknown mode_policy %q (setpoint, hysteresis)", c.ModePolicy))
	}

	if c.CycleIntervalMinutes <= 0 {
		problems = append(problems, "cycle_interval_minutes must be positive")
	}
	if c.AutosaveIntervalMinutes <= 0 {
		problems = append(problems, "autosave_interval_minutes must be positive")
	}
	if c.ActionDelayMillis < 0 {
		problems = append(problems, "action_delay_ms must not be negative")
	}
	if c.ManualOverrideTTLMinutes < 0 {
		problems = append(problems, "manual_override_ttl_minutes must not be negative")
	}
	if c.Weather.CacheMinutes <= 0 {
		problems = append(problems, "weather.cache_minutes must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
