package dialer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/llm"
	"github.com/soyeahso/outreach/internal/logging"
)

// LiveOptions configures a Live runner.
type LiveOptions struct {
	Telephony    Telephony
	Classifier   *Classifier
	Leads        domain.LeadDirectory
	Scripts      domain.ScriptDirectory // optional
	FromNumber   string
	PollInterval time.Duration
}

// Live places real calls through a Telephony platform.
type Live struct {
	opts LiveOptions
	log  *logging.Logger
}

// NewLive creates a Live runner.
func NewLive(opts LiveOptions, log *logging.Logger) (*Live, error) {
	if opts.Telephony == nil {
		return nil, errors.New("dialer: live runner needs a telephony client")
	}
	if opts.Leads == nil {
		return nil, errors.New("dialer: live runner needs a lead directory")
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(nil, "")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Live{opts: opts, log: log.Sub("live")}, nil
}

// Attempt dials the lead and waits for the platform to report the call ended.
func (l *Live) Attempt(ctx context.Context, leadID, scriptID string, _ domain.AgentConfig) (Result, error) {
	started := time.Now()

	lead, err := l.opts.Leads.Lead(ctx, leadID)
	if errors.Is(err, domain.ErrLeadNotFound) {
		l.log.Warn().Str("lead", leadID).Msg("lead not in directory, skipping")
		return Result{Outcome: domain.OutcomeSkipped, StartedAt: started}, nil
	}
	if err != nil {
		return Result{}, Fatal(KindProvider, "leads", err)
	}
	if strings.TrimSpace(lead.Phone) == "" {
		return Result{Outcome: domain.OutcomeSkipped, StartedAt: started}, nil
	}

	script, err := l.script(ctx, scriptID)
	if err != nil {
		return Result{}, err
	}

	callID, err := l.opts.Telephony.PlaceCall(ctx, CallRequest{
		To:        lead.Phone,
		From:      l.opts.FromNumber,
		Assistant: script,
		Metadata:  CallMetadata{LeadID: lead.ID, LeadName: lead.Name, Company: lead.Company},
	})
	if err != nil {
		return Result{}, AsFatal(err)
	}
	l.log.Debug().Str("lead", leadID).Str("call", callID).Msg("call placed")

	report, err := l.waitEnded(ctx, callID)
	if err != nil {
		return Result{}, err
	}

	outcome, err := l.outcome(ctx, report)
	if err != nil {
		return Result{}, err
	}

	duration := report.DurationSeconds
	if duration == 0 {
		duration = time.Since(started).Seconds()
	}
	return Result{
		Outcome:         outcome,
		StartedAt:       started,
		DurationSeconds: duration,
		Transcript:      report.Transcript,
	}, nil
}

func (l *Live) script(ctx context.Context, scriptID string) (domain.Script, error) {
	if scriptID == "" || scriptID == domain.DefaultScriptID || l.opts.Scripts == nil {
		return domain.DefaultScript(), nil
	}
	script, err := l.opts.Scripts.Script(ctx, scriptID)
	if errors.Is(err, domain.ErrScriptNotFound) {
		l.log.Warn().Str("script", scriptID).Msg("script not found, using default")
		return domain.DefaultScript(), nil
	}
	if err != nil {
		return domain.Script{}, Fatal(KindProvider, "scripts", err)
	}
	return script, nil
}

func (l *Live) waitEnded(ctx context.Context, callID string) (CallReport, error) {
	for {
		report, err := l.opts.Telephony.CallStatus(ctx, callID)
		if err != nil {
			return CallReport{}, AsFatal(err)
		}
		if report.Status == CallEnded {
			return report, nil
		}
		if err := sleep(ctx, l.opts.PollInterval); err != nil {
			return CallReport{}, AsFatal(err)
		}
	}
}

// outcome prefers the platform's verdict, then the end reason, then the classifier.
func (l *Live) outcome(ctx context.Context, report CallReport) (domain.Outcome, error) {
	if o, err := domain.ParseOutcome(report.Outcome); err == nil {
		return o, nil
	}

	switch strings.ToLower(report.EndedReason) {
	case "no-answer", "busy", "customer-did-not-answer", "customer-busy":
		return domain.OutcomeNoAnswer, nil
	case "voicemail":
		return domain.OutcomeVoicemail, nil
	case "failed", "error", "pipeline-error":
		return domain.OutcomeFailed, nil
	}

	o, err := l.opts.Classifier.Classify(ctx, report.Transcript)
	if err == nil {
		return o, nil
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Auth():
			return domain.OutcomeUnknown, Fatal(KindAuth, pe.Provider, err)
		case pe.Quota():
			return domain.OutcomeUnknown, Fatal(KindQuota, pe.Provider, err)
		}
	}
	if ctx.Err() != nil {
		return domain.OutcomeUnknown, AsFatal(ctx.Err())
	}
	l.log.Warn().Err(err).Str("call", report.ID).Msg("classification failed, recording follow-up")
	return domain.OutcomeFollowUp, nil
}
