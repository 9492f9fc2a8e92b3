package dialer

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/llm"
	"github.com/soyeahso/outreach/internal/transcript"
)

const classifierSystem = `You review sales call transcripts. Reply with exactly one of:
booked, follow-up, not-interested, voicemail, no-answer.
booked means a meeting was agreed. follow-up means the lead asked to be contacted later.`

// Classifier decides the outcome of a finished call from its transcript.
type Classifier struct {
	client llm.Client
	model  string
}

// NewClassifier creates a Classifier. A nil client uses keyword rules only.
func NewClassifier(client llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify returns the outcome for a transcript. An unusable LLM reply falls
// back to keyword rules; provider errors are returned to the caller.
func (c *Classifier) Classify(ctx context.Context, raw string) (domain.Outcome, error) {
	msgs := transcript.Parse(raw)
	if len(msgs) == 0 {
		return domain.OutcomeNoAnswer, nil
	}
	if c.client == nil {
		return classifyKeywords(msgs), nil
	}

	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := c.client.Complete(ctx, llm.Label(c.model, classifierSystem, b.String(), 8))
	if err != nil {
		return domain.OutcomeUnknown, err
	}

	word := resp.FirstWord()
	if o, err := domain.ParseOutcome(word); err == nil && o != domain.OutcomeSkipped && o != domain.OutcomeFailed {
		return o, nil
	}
	return classifyKeywords(msgs), nil
}

// classifyKeywords looks at what the lead said.
func classifyKeywords(msgs []domain.TranscriptMessage) domain.Outcome {
	var said strings.Builder
	userTurns := 0
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			userTurns++
			said.WriteString(strings.ToLower(m.Content))
			said.WriteByte(' ')
		}
	}
	if userTurns == 0 {
		return domain.OutcomeVoicemail
	}

	text := said.String()
	switch {
	case containsAny(text, "not interested", "no thanks", "remove me", "don't call", "do not call"):
		return domain.OutcomeNotInterested
	case containsAny(text, "works", "sounds good", "book", "see you", "calendar invite"):
		return domain.OutcomeBooked
	default:
		return domain.OutcomeFollowUp
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
