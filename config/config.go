// Package config loads and validates the gateway's JSON configuration.
// Secrets (backend key, WebSocket token) can be supplied via environment
// variables so the config file stays safe to commit.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c360/telemetrygate/errors"
	"github.com/c360/telemetrygate/wire"
)

// Config is the complete gateway configuration.
type Config struct {
	Intake   IntakeConfig   `json:"intake"`
	Live     LiveConfig     `json:"live"`
	Store    StoreConfig    `json:"store"`
	NATS     NATSConfig     `json:"nats"`
	Downlink DownlinkConfig `json:"downlink"`
	Metrics  MetricsConfig  `json:"metrics"`
	Logging  LoggingConfig  `json:"logging"`
}

// IntakeConfig configures the device-facing CoAP listener.
type IntakeConfig struct {
	// Addr is the UDP listen address. Default ":5683".
	Addr string `json:"addr"`
}

// LiveConfig configures the operator-facing HTTP surface.
type LiveConfig struct {
	// Addr is the HTTP listen address. Default ":8080".
	Addr string `json:"addr"`
	// Token gates /ws connections; empty disables authentication. The
	// WS_TOKEN environment variable overrides it.
	Token string `json:"token,omitempty"`
	// QueueSize bounds each subscriber's delivery queue. Default 64.
	QueueSize int `json:"queue_size,omitempty"`
	// PingIntervalSeconds is the transport keepalive period. Default 30.
	PingIntervalSeconds int `json:"ping_interval_seconds,omitempty"`
}

// StoreConfig configures the Supabase backend.
type StoreConfig struct {
	// URL is the project base URL, e.g. "https://xyz.supabase.co". The
	// SUPABASE_URL environment variable overrides it.
	URL string `json:"url"`
	// Key is the service role key. The SUPABASE_KEY environment variable
	// overrides it; prefer the variable over the file.
	Key string `json:"key,omitempty"`
	// OpTimeoutSeconds bounds each backend write. Default 10.
	OpTimeoutSeconds int `json:"op_timeout_seconds,omitempty"`
}

// NATSConfig configures the optional event mirror.
type NATSConfig struct {
	// URL enables the mirror when non-empty, e.g. "nats://localhost:4222".
	// The NATS_URL environment variable overrides it.
	URL string `json:"url,omitempty"`
	// SubjectPrefix defaults to "telemetry".
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}

// DownlinkConfig is the policy returned to every device.
type DownlinkConfig struct {
	// HeartbeatIntervalSeconds defaults to 720.
	HeartbeatIntervalSeconds uint32 `json:"heartbeat_interval_seconds,omitempty"`
	// LocationMode is "NONE", "WIFI" or "GPS". Default "WIFI".
	LocationMode string `json:"location_mode,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Port defaults to 9090; negative disables the endpoint.
	Port int `json:"port,omitempty"`
	// Path defaults to "/metrics".
	Path string `json:"path,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error". Default "info".
	Level string `json:"level,omitempty"`
	// Format is "json" or "text". Default "json".
	Format string `json:"format,omitempty"`
}

// Load reads, defaults and validates the configuration at path. An empty
// path yields a default configuration, useful with environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read "+path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "parse "+path)
		}
	}

	cfg.applyEnvironment()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overlays secret-bearing settings from the environment.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		c.Store.Key = v
	}
	if v := os.Getenv("WS_TOKEN"); v != "" {
		c.Live.Token = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Intake.Addr == "" {
		c.Intake.Addr = ":5683"
	}
	if c.Live.Addr == "" {
		c.Live.Addr = ":8080"
	}
	if c.Live.QueueSize == 0 {
		c.Live.QueueSize = 64
	}
	if c.Live.PingIntervalSeconds == 0 {
		c.Live.PingIntervalSeconds = 30
	}
	if c.Store.OpTimeoutSeconds == 0 {
		c.Store.OpTimeoutSeconds = 10
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "telemetry"
	}
	if c.Downlink.HeartbeatIntervalSeconds == 0 {
		c.Downlink.HeartbeatIntervalSeconds = 720
	}
	if c.Downlink.LocationMode == "" {
		c.Downlink.LocationMode = "WIFI"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks cross-field consistency. The store section may be empty;
// the gateway then runs live-only without persistence.
func (c *Config) Validate() error {
	if (c.Store.URL == "") != (c.Store.Key == "") {
		return errors.WrapFatal(
			fmt.Errorf("%w: store url and key must be set together", errors.ErrInvalidConfig),
			"config", "Validate", "check store section")
	}
	policy, err := c.DownlinkPolicy()
	if err != nil {
		return err
	}
	// Round-trip through the encoder so a policy the codec would reject is
	// caught at load time rather than on every uplink reply.
	if _, err := wire.EncodeDownlink(policy); err != nil {
		return errors.WrapFatal(err, "config", "Validate", "check downlink section")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapFatal(
			fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidConfig, c.Logging.Level),
			"config", "Validate", "check logging section")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.WrapFatal(
			fmt.Errorf("%w: unknown log format %q", errors.ErrInvalidConfig, c.Logging.Format),
			"config", "Validate", "check logging section")
	}
	return nil
}

// DownlinkPolicy converts the downlink section to its wire form.
func (c *Config) DownlinkPolicy() (wire.DownlinkConfig, error) {
	var mode wire.LocationMode
	switch c.Downlink.LocationMode {
	case "NONE":
		mode = wire.LocationNone
	case "WIFI":
		mode = wire.LocationWiFi
	case "GPS":
		mode = wire.LocationGPS
	default:
		return wire.DownlinkConfig{}, errors.WrapFatal(
			fmt.Errorf("%w: unknown location mode %q", errors.ErrInvalidConfig, c.Downlink.LocationMode),
			"config", "DownlinkPolicy", "map location mode")
	}
	return wire.DownlinkConfig{
		HeartbeatInterval: c.Downlink.HeartbeatIntervalSeconds,
		LocationMode:      mode,
	}, nil
}

// OpTimeout returns the backend write deadline as a duration.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.Store.OpTimeoutSeconds) * time.Second
}

// PingInterval returns the keepalive period as a duration.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Live.PingIntervalSeconds) * time.Second
}
