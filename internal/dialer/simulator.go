package dialer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/outreach/internal/domain"
)

// DefaultWeights is the outcome mix used when none is configured.
var DefaultWeights = map[domain.Outcome]int{
	domain.OutcomeBooked:        2,
	domain.OutcomeFollowUp:      3,
	domain.OutcomeNotInterested: 3,
	domain.OutcomeNoAnswer:      4,
	domain.OutcomeVoicemail:     3,
}

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	Latency time.Duration
	Seed    int64 // 0 uses the current time
	Weights map[domain.Outcome]int
	Leads   domain.LeadDirectory   // optional
	Scripts domain.ScriptDirectory // optional
}

// Simulator is the mock-mode Runner. It needs no credentials and produces
// weighted synthetic outcomes with a matching transcript.
type Simulator struct {
	opts    SimulatorOptions
	choices []domain.Outcome

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a Simulator.
func NewSimulator(opts SimulatorOptions) *Simulator {
	weights := opts.Weights
	if len(weights) == 0 {
		weights = DefaultWeights
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulator{opts: opts, rng: rand.New(rand.NewSource(seed))}
	// Declaration order keeps a seeded sequence stable.
	for _, o := range domain.Outcomes {
		if w := weights[o]; w > 0 {
			for i := 0; i < w; i++ {
				s.choices = append(s.choices, o)
			}
		}
	}
	if len(s.choices) == 0 {
		s.choices = []domain.Outcome{domain.OutcomeFollowUp}
	}
	return s
}

// Attempt simulates one call.
func (s *Simulator) Attempt(ctx context.Context, leadID, scriptID string, _ domain.AgentConfig) (Result, error) {
	started := time.Now()

	lead, ok, err := s.lead(ctx, leadID)
	if err != nil {
		return Result{}, err
	}
	if !ok || lead.Phone == "" {
		return Result{Outcome: domain.OutcomeSkipped, StartedAt: started}, nil
	}

	script := domain.DefaultScript()
	if s.opts.Scripts != nil && scriptID != "" {
		if sc, err := s.opts.Scripts.Script(ctx, scriptID); err == nil {
			script = sc
		} else if !errors.Is(err, domain.ErrScriptNotFound) {
			return Result{}, Fatal(KindProvider, "simulator", err)
		}
	}

	if err := sleep(ctx, s.opts.Latency); err != nil {
		return Result{}, AsFatal(err)
	}

	s.mu.Lock()
	outcome := s.choices[s.rng.Intn(len(s.choices))]
	duration := s.durationFor(outcome)
	s.mu.Unlock()

	return Result{
		Outcome:         outcome,
		StartedAt:       started,
		DurationSeconds: duration,
		Transcript:      syntheticTranscript(outcome, lead, script),
	}, nil
}

// lead resolves leadID; without a directory every lead is dialable.
func (s *Simulator) lead(ctx context.Context, leadID string) (domain.Lead, bool, error) {
	if s.opts.Leads == nil {
		return domain.Lead{ID: leadID, Name: leadID, Phone: "+15550000000"}, true, nil
	}
	lead, err := s.opts.Leads.Lead(ctx, leadID)
	if errors.Is(err, domain.ErrLeadNotFound) {
		return domain.Lead{}, false, nil
	}
	if err != nil {
		return domain.Lead{}, false, Fatal(KindProvider, "simulator", err)
	}
	return lead, true, nil
}

// durationFor must be called with s.mu held.
func (s *Simulator) durationFor(o domain.Outcome) float64 {
	switch o {
	case domain.OutcomeNoAnswer:
		return 0
	case domain.OutcomeVoicemail:
		return float64(15 + s.rng.Intn(20))
	default:
		return float64(30 + s.rng.Intn(240))
	}
}

func syntheticTranscript(o domain.Outcome, lead domain.Lead, script domain.Script) string {
	if o == domain.OutcomeNoAnswer {
		return ""
	}
	opening := script.OpeningLine
	if opening == "" {
		opening = "Hi, do you have a minute?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Agent: Hi %s. %s\n", lead.Name, opening)
	switch o {
	case domain.OutcomeVoicemail:
		b.Reset()
		fmt.Fprintf(&b, "Agent: Hi %s, sorry I missed you. %s I will try again soon.", lead.Name, opening)
	case domain.OutcomeBooked:
		b.WriteString("Lead: Sure, that sounds useful.\n")
		b.WriteString("Agent: Great, does Thursday at 10 work?\n")
		b.WriteString("Lead: Thursday works.")
	case domain.OutcomeFollowUp:
		b.WriteString("Lead: I'm busy right now, can you send me an email?\n")
		b.WriteString("Agent: Of course, I'll follow up this week.")
	case domain.OutcomeNotInterested:
		b.WriteString("Lead: No thanks, we're not interested.\n")
		b.WriteString("Agent: Understood, thanks for your time.")
	default:
		b.WriteString("Lead: Sorry, the line is bad.")
	}
	return b.String()
}
