package domain

import (
	"encoding/json"
	"fmt"
)

// Outcome is the terminal classification of one call attempt.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeBooked
	OutcomeFollowUp
	OutcomeNotInterested
	OutcomeNoAnswer
	OutcomeVoicemail
	OutcomeSkipped
	OutcomeFailed
)

var outcomeNames = map[Outcome]string{
	OutcomeBooked:        "booked",
	OutcomeFollowUp:      "follow-up",
	OutcomeNotInterested: "not-interested",
	OutcomeNoAnswer:      "no-answer",
	OutcomeVoicemail:     "voicemail",
	OutcomeSkipped:       "skipped",
	OutcomeFailed:        "failed",
}

// Outcomes lists every settled outcome in declaration order.
var Outcomes = []Outcome{
	OutcomeBooked,
	OutcomeFollowUp,
	OutcomeNotInterested,
	OutcomeNoAnswer,
	OutcomeVoicemail,
	OutcomeSkipped,
	OutcomeFailed,
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether o is one of the settled outcomes.
func (o Outcome) Valid() bool {
	_, ok := outcomeNames[o]
	return ok
}

// ParseOutcome maps a wire name back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	for o, name := range outcomeNames {
		if name == s {
			return o, nil
		}
	}
	return OutcomeUnknown, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
