package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Default values shared by Defaults and applyDefaults.
const (
	DefaultGatewayPort          = 18790
	DefaultDelaySeconds         = 5
	DefaultCallTimeoutSeconds   = 300
	DefaultRetentionMinutes     = 60
	DefaultSweepIntervalSeconds = 60
	DefaultSubscriberBuffer     = 16
	DefaultPollIntervalMs       = 2000
	DefaultMockLatencyMs        = 250
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}

	c := &cfg.Campaign
	if c.DefaultDelaySeconds == 0 {
		c.DefaultDelaySeconds = DefaultDelaySeconds
	}
	if c.CallTimeoutSeconds == 0 {
		c.CallTimeoutSeconds = DefaultCallTimeoutSeconds
	}
	if c.RetentionMinutes == 0 {
		c.RetentionMinutes = DefaultRetentionMinutes
	}
	if c.SweepIntervalSeconds == 0 {
		c.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}

	d := &cfg.Dialer
	if d.Mode == "" {
		d.Mode = "mock"
	}
	if d.Mock.LatencyMs == 0 {
		d.Mock.LatencyMs = DefaultMockLatencyMs
	}
	if d.Live.PollIntervalMs == 0 {
		d.Live.PollIntervalMs = DefaultPollIntervalMs
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
}
