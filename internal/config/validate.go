package config

import (
	"fmt"
	"slices"

	"github.com/soyeahso/outreach/internal/domain"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password"})
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Logging
	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "compact", "json"})

	// Campaign
	c := cfg.Campaign
	if c.DefaultDelaySeconds != 0 && (c.DefaultDelaySeconds < domain.MinDelaySeconds || c.DefaultDelaySeconds > domain.MaxDelaySeconds) {
		add("campaign.defaultDelaySeconds", "must be %d-%d, got %d", domain.MinDelaySeconds, domain.MaxDelaySeconds, c.DefaultDelaySeconds)
	}
	if c.CallTimeoutSeconds < 0 {
		add("campaign.callTimeoutSeconds", "must not be negative, got %d", c.CallTimeoutSeconds)
	}
	if c.RetentionMinutes < 0 {
		add("campaign.retentionMinutes", "must not be negative, got %d", c.RetentionMinutes)
	}
	if c.SweepIntervalSeconds < 0 {
		add("campaign.sweepIntervalSeconds", "must not be negative, got %d", c.SweepIntervalSeconds)
	}
	if c.SubscriberBuffer < 0 {
		add("campaign.subscriberBuffer", "must not be negative, got %d", c.SubscriberBuffer)
	}

	// Dialer
	oneOf("dialer.mode", cfg.Dialer.Mode, []string{"mock", "live"})
	for name, weight := range cfg.Dialer.Mock.Outcomes {
		if _, err := domain.ParseOutcome(name); err != nil {
			add("dialer.mock.outcomes."+name, "unknown outcome")
		} else if weight < 0 {
			add("dialer.mock.outcomes."+name, "weight must not be negative, got %d", weight)
		}
	}
	if cfg.Dialer.Mode == "live" {
		if cfg.Dialer.Live.BaseURL == "" {
			add("dialer.live.baseUrl", "required when dialer mode is live")
		}
		if cfg.Dialer.Live.APIKey == "" {
			add("dialer.live.apiKey", "required when dialer mode is live")
		}
	}
	oneOf("dialer.classifier.provider", cfg.Dialer.Classifier.Provider, []string{"mock", "claude"})
	if cfg.Dialer.Classifier.Provider == "claude" {
		if cfg.Dialer.Classifier.APIKey == "" {
			add("dialer.classifier.apiKey", "required when provider is claude")
		}
		if cfg.Dialer.Classifier.Model == "" {
			add("dialer.classifier.model", "required when provider is claude")
		}
	}

	// Store
	oneOf("store.driver", cfg.Store.Driver, []string{"sqlite", "memory"})

	// Hooks
	hookLists := map[string][]HookEntry{
		"hooks.agentCompleted": cfg.Hooks.AgentCompleted,
		"hooks.agentFailed":    cfg.Hooks.AgentFailed,
		"hooks.callCompleted":  cfg.Hooks.CallCompleted,
	}
	for _, path := range []string{"hooks.agentCompleted", "hooks.agentFailed", "hooks.callCompleted"} {
		for i, h := range hookLists[path] {
			if h.Command == "" {
				add(fmt.Sprintf("%s.%d.command", path, i), "command is required")
			}
		}
	}

	// IRC notifier (only if configured)
	if irc := cfg.Notify.IRC; irc != nil {
		if irc.Server == "" {
			add("notify.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("notify.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("notify.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("notify.irc.sasl", "SASL requires a password to be set")
		}
	}

	return issues
}
