// Package config loads participant configuration from environment
// variables (with an optional local .env file), the way the teacher's
// LoadConfig/Validate pair does for its server process.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds everything needed to construct and run a participant
// process via cmd/rtpsd.
type Config struct {
	DomainID      uint32 `env:"RTPS_DOMAIN_ID" envDefault:"0"`
	HostID        uint32 `env:"RTPS_HOST_ID" envDefault:"1"`
	AppID         uint32 `env:"RTPS_APP_ID" envDefault:"1"`
	InstanceID    uint32 `env:"RTPS_INSTANCE_ID" envDefault:"1"`
	Interface     string `env:"RTPS_INTERFACE" envDefault:""`
	UnicastPort   int    `env:"RTPS_UNICAST_PORT" envDefault:"0"`

	AnnounceInterval time.Duration `env:"RTPS_ANNOUNCE_INTERVAL" envDefault:"100ms"`
	PumpInterval     time.Duration `env:"RTPS_PUMP_INTERVAL" envDefault:"50ms"`
	LeaseDuration    time.Duration `env:"RTPS_LEASE_DURATION" envDefault:"100s"`

	AnnounceRatePerSecond float64 `env:"RTPS_ANNOUNCE_RATE" envDefault:"20"`
	DatagramRatePerSecond float64 `env:"RTPS_DATAGRAM_RATE" envDefault:"2000"`
	Workers               int     `env:"RTPS_WORKERS" envDefault:"4"`
	WorkerQueueSize       int     `env:"RTPS_WORKER_QUEUE_SIZE" envDefault:"64"`
	MaxInFlightMatches    int     `env:"RTPS_MAX_INFLIGHT_MATCHES" envDefault:"32"`

	MetricsAddr string `env:"RTPS_METRICS_ADDR" envDefault:":9096"`

	LogLevel  string `env:"RTPS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"RTPS_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a local .env file (if present) and then
// environment variables, with env vars taking priority.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is expected in containerized deployments.
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate enforces range and enum constraints that env.Parse's type
// checking alone cannot express.
func (c *Config) Validate() error {
	if c.DomainID > 232 {
		return fmt.Errorf("RTPS_DOMAIN_ID must be 0-232, got %d", c.DomainID)
	}
	if c.Workers < 1 {
		return fmt.Errorf("RTPS_WORKERS must be > 0, got %d", c.Workers)
	}
	if c.WorkerQueueSize < 1 {
		return fmt.Errorf("RTPS_WORKER_QUEUE_SIZE must be > 0, got %d", c.WorkerQueueSize)
	}
	if c.AnnounceRatePerSecond <= 0 {
		return fmt.Errorf("RTPS_ANNOUNCE_RATE must be > 0, got %f", c.AnnounceRatePerSecond)
	}
	if c.DatagramRatePerSecond <= 0 {
		return fmt.Errorf("RTPS_DATAGRAM_RATE must be > 0, got %f", c.DatagramRatePerSecond)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("RTPS_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("RTPS_LOG_FORMAT must be one of json, pretty (got %q)", c.LogFormat)
	}

	return nil
}

// LogConfig emits the resolved configuration at startup for operational
// visibility, mirroring the teacher's LogConfig.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Uint32("domain_id", c.DomainID).
		Uint32("host_id", c.HostID).
		Uint32("app_id", c.AppID).
		Uint32("instance_id", c.InstanceID).
		Str("interface", c.Interface).
		Int("unicast_port", c.UnicastPort).
		Dur("announce_interval", c.AnnounceInterval).
		Dur("pump_interval", c.PumpInterval).
		Dur("lease_duration", c.LeaseDuration).
		Float64("announce_rate", c.AnnounceRatePerSecond).
		Float64("datagram_rate", c.DatagramRatePerSecond).
		Int("workers", c.Workers).
		Int("worker_queue_size", c.WorkerQueueSize).
		Int("max_inflight_matches", c.MaxInFlightMatches).
		Str("metrics_addr", c.MetricsAddr).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("participant configuration loaded")
}
