package dialer

import (
	"fmt"
	"time"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/llm"
	"github.com/soyeahso/outreach/internal/logging"
)

// New builds the Runner selected by cfg.Mode.
func New(cfg config.DialerConfig, leads domain.LeadDirectory, scripts domain.ScriptDirectory, log *logging.Logger) (Runner, error) {
	log = log.Sub("dialer")
	switch cfg.Mode {
	case "", "mock":
		weights := make(map[domain.Outcome]int, len(cfg.Mock.Outcomes))
		for name, w := range cfg.Mock.Outcomes {
			if o, err := domain.ParseOutcome(name); err == nil {
				weights[o] = w
			}
		}
		log.Info().Int("latencyMs", cfg.Mock.LatencyMs).Msg("using simulated dialer")
		return NewSimulator(SimulatorOptions{
			Latency: time.Duration(cfg.Mock.LatencyMs) * time.Millisecond,
			Seed:    cfg.Mock.Seed,
			Weights: weights,
			Leads:   leads,
			Scripts: scripts,
		}), nil

	case "live":
		client, err := llm.FromConfig(cfg.Classifier, log)
		if err != nil {
			return nil, err
		}
		classifier := NewClassifier(client, cfg.Classifier.Model)
		live, err := NewLive(LiveOptions{
			Telephony:    NewHTTPTelephony(cfg.Live.BaseURL, cfg.Live.APIKey),
			Classifier:   classifier,
			Leads:        leads,
			Scripts:      scripts,
			FromNumber:   cfg.Live.FromNumber,
			PollInterval: time.Duration(cfg.Live.PollIntervalMs) * time.Millisecond,
		}, log)
		if err != nil {
			return nil, err
		}
		return live, nil

	default:
		return nil, fmt.Errorf("dialer: unknown mode %q", cfg.Mode)
	}
}

var (
	_ Runner = (*Simulator)(nil)
	_ Runner = (*Live)(nil)
	_ Runner = RunnerFunc(nil)
)
