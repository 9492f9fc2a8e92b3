package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, len(issues))
	for i, is := range issues {
		paths[i] = is.Path
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_SingleFieldIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"negative port", func(c *Config) { c.Gateway.Port = -1 }, "gateway.port"},
		{"port too large", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"custom bind without host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"bad auth mode", func(c *Config) { c.Gateway.Auth.Mode = "oauth" }, "gateway.auth.mode"},
		{"tls without cert", func(c *Config) { c.Gateway.TLS.Enabled = true }, "gateway.tls"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad console style", func(c *Config) { c.Logging.ConsoleStyle = "fancy" }, "logging.consoleStyle"},
		{"delay too small", func(c *Config) { c.Campaign.DefaultDelaySeconds = -3 }, "campaign.defaultDelaySeconds"},
		{"delay too large", func(c *Config) { c.Campaign.DefaultDelaySeconds = 61 }, "campaign.defaultDelaySeconds"},
		{"negative timeout", func(c *Config) { c.Campaign.CallTimeoutSeconds = -1 }, "campaign.callTimeoutSeconds"},
		{"negative retention", func(c *Config) { c.Campaign.RetentionMinutes = -1 }, "campaign.retentionMinutes"},
		{"negative buffer", func(c *Config) { c.Campaign.SubscriberBuffer = -1 }, "campaign.subscriberBuffer"},
		{"bad dialer mode", func(c *Config) { c.Dialer.Mode = "sip" }, "dialer.mode"},
		{"unknown outcome weight", func(c *Config) { c.Dialer.Mock.Outcomes = map[string]int{"maybe": 1} }, "dialer.mock.outcomes.maybe"},
		{"negative outcome weight", func(c *Config) { c.Dialer.Mock.Outcomes = map[string]int{"booked": -1} }, "dialer.mock.outcomes.booked"},
		{"bad classifier", func(c *Config) { c.Dialer.Classifier.Provider = "gpt" }, "dialer.classifier.provider"},
		{"bad store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"hook without command", func(c *Config) { c.Hooks.AgentFailed = []HookEntry{{Timeout: 10}} }, "hooks.agentFailed.0.command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1, "%v", issues)
			assert.Equal(t, tt.path, issues[0].Path)
		})
	}
}

func TestValidate_LiveDialerRequiresEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Dialer.Mode = "live"

	assert.ElementsMatch(t, []string{"dialer.live.baseUrl", "dialer.live.apiKey"}, issuePaths(Validate(&cfg)))

	cfg.Dialer.Live.BaseURL = "https://voice.example.com"
	cfg.Dialer.Live.APIKey = "k"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_ClaudeClassifierRequiresKeyAndModel(t *testing.T) {
	cfg := Defaults()
	cfg.Dialer.Classifier.Provider = "claude"

	assert.ElementsMatch(t, []string{"dialer.classifier.apiKey", "dialer.classifier.model"}, issuePaths(Validate(&cfg)))
}

func TestValidate_IRC(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{Port: 99999, SASL: true}

	assert.ElementsMatch(t, []string{
		"notify.irc.server",
		"notify.irc.nick",
		"notify.irc.port",
		"notify.irc.sasl",
	}, issuePaths(Validate(&cfg)))

	cfg.Notify.IRC = &IRCConfig{Server: "irc.example.net", Nick: "bot", Channels: []string{"#ops"}, SASL: true, Password: "pw"}
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = -1
	cfg.Logging.Level = "bad"
	cfg.Store.Driver = "bad"

	assert.Len(t, Validate(&cfg), 3)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "gateway.port", Message: "invalid"}
	assert.Equal(t, "gateway.port: invalid", issue.String())
}
