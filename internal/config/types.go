package config

// Config is the root configuration for the outreach daemon.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Campaign CampaignConfig `yaml:"campaign,omitempty"`
	Dialer   DialerConfig   `yaml:"dialer,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
	Notify   NotifyConfig   `yaml:"notify,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// CampaignConfig holds agent and registry defaults.
type CampaignConfig struct {
	DefaultDelaySeconds  int `yaml:"defaultDelaySeconds,omitempty"`
	CallTimeoutSeconds   int `yaml:"callTimeoutSeconds,omitempty"`
	RetentionMinutes     int `yaml:"retentionMinutes,omitempty"`
	SweepIntervalSeconds int `yaml:"sweepIntervalSeconds,omitempty"`
	SubscriberBuffer     int `yaml:"subscriberBuffer,omitempty"`
}

// DialerConfig selects and configures the call runner.
type DialerConfig struct {
	Mode       string           `yaml:"mode,omitempty"` // "mock" | "live"
	Mock       MockDialer       `yaml:"mock,omitempty"`
	Live       LiveDialer       `yaml:"live,omitempty"`
	Classifier ClassifierConfig `yaml:"classifier,omitempty"`
}

// MockDialer tunes the simulated runner.
type MockDialer struct {
	LatencyMs int            `yaml:"latencyMs,omitempty"`
	Seed      int64          `yaml:"seed,omitempty"`
	Outcomes  map[string]int `yaml:"outcomes,omitempty"` // outcome name → weight
}

// LiveDialer points at the telephony platform.
type LiveDialer struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"`
	PollIntervalMs int    `yaml:"pollIntervalMs,omitempty"`
	FromNumber     string `yaml:"fromNumber,omitempty"`
}

// ClassifierConfig selects the LLM used to classify finished calls.
type ClassifierConfig struct {
	Provider string `yaml:"provider,omitempty"` // "" | "mock" | "claude"
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"baseUrl,omitempty"`
}

// StoreConfig selects the lead/script/attempt store.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`
}

// HooksConfig defines shell hooks run on lifecycle events.
type HooksConfig struct {
	AgentCompleted []HookEntry `yaml:"agentCompleted,omitempty"`
	AgentFailed    []HookEntry `yaml:"agentFailed,omitempty"`
	CallCompleted  []HookEntry `yaml:"callCompleted,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// NotifyConfig configures outbound operator notifications.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC notifier settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}
