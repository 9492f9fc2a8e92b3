package llm

import (
	"fmt"
	"strings"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/logging"
)

// Provider names accepted in classifier config.
const (
	ProviderNone   = ""
	ProviderMock   = "mock"
	ProviderClaude = "claude"
)

// ProviderError is a non-2xx reply from a provider. Code is the HTTP status.
type ProviderError struct {
	Provider string
	Code     int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code == 0 {
		return e.Provider + ": " + e.Message
	}
	return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
}

// Auth reports a rejected credential.
func (e *ProviderError) Auth() bool { return e.Code == 401 || e.Code == 403 }

// Quota reports rate limiting or exhausted credit.
func (e *ProviderError) Quota() bool { return e.Code == 429 || e.Code == 402 }

// FromConfig builds the client named by cfg.Provider. It returns nil when no
// model-backed provider is usable, in which case callers classify without
// one.
func FromConfig(cfg config.ClassifierConfig, log *logging.Logger) (Client, error) {
	log = log.Sub("llm")
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case ProviderNone, ProviderMock:
		return nil, nil
	case ProviderClaude, "anthropic":
		if cfg.APIKey == "" || cfg.Model == "" {
			log.Warn().Str("provider", p).Msg("classifier needs apiKey and model; using keyword rules")
			return nil, nil
		}
		log.Info().Str("provider", ProviderClaude).Str("model", cfg.Model).Msg("classifier provider ready")
		return NewClaudeAPIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
