// Package transcript turns raw call transcripts into ordered speaker turns.
package transcript

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/soyeahso/outreach/internal/domain"
)

// speakerRe matches a leading "Label:" speaker prefix.
var speakerRe = regexp.MustCompile(`(?i)^\s*(assistant|agent|ai|bot|user|lead|human|customer|caller)\s*:\s?(.*)$`)

var speakerRoles = map[string]domain.Role{
	"assistant": domain.RoleAssistant,
	"agent":     domain.RoleAssistant,
	"ai":        domain.RoleAssistant,
	"bot":       domain.RoleAssistant,
	"user":      domain.RoleUser,
	"lead":      domain.RoleUser,
	"human":     domain.RoleUser,
	"customer":  domain.RoleUser,
	"caller":    domain.RoleUser,
}

// contentKeys are tried in order when reading a structured turn.
var contentKeys = []string{"content", "text", "message"}

// Parse converts a transcript into speaker-tagged messages in conversation order.
// A JSON array of turn objects is mapped directly; anything else is read as
// "Speaker: text" lines with unprefixed lines continuing the previous turn.
// Non-empty input always yields at least one message.
func Parse(raw string) []domain.TranscriptMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []domain.TranscriptMessage{}
	}

	if msgs, ok := parseJSON(trimmed); ok {
		return msgs
	}

	msgs := parseLines(raw)
	if len(msgs) == 0 {
		return []domain.TranscriptMessage{{Role: domain.RoleAssistant, Content: trimmed}}
	}
	return msgs
}

func parseJSON(raw string) ([]domain.TranscriptMessage, bool) {
	if !strings.HasPrefix(raw, "[") {
		return nil, false
	}

	var turns []map[string]any
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false
	}

	msgs := make([]domain.TranscriptMessage, 0, len(turns))
	for _, turn := range turns {
		content := strings.TrimSpace(turnContent(turn))
		if content == "" {
			continue
		}
		msgs = append(msgs, domain.TranscriptMessage{
			Role:    structuredRole(turn["role"]),
			Content: content,
		})
	}
	return msgs, true
}

func turnContent(turn map[string]any) string {
	for _, key := range contentKeys {
		if s, ok := turn[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func structuredRole(v any) domain.Role {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "human":
		return domain.RoleUser
	default:
		return domain.RoleAssistant
	}
}

func parseLines(raw string) []domain.TranscriptMessage {
	var (
		msgs []domain.TranscriptMessage
		role = domain.RoleAssistant
		buf  []string
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if content != "" {
			msgs = append(msgs, domain.TranscriptMessage{Role: role, Content: content})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		m := speakerRe.FindStringSubmatch(line)
		if m == nil {
			buf = append(buf, line)
			continue
		}
		flush()
		role = speakerRoles[strings.ToLower(m[1])]
		buf = append(buf, m[2])
	}
	flush()

	return msgs
}
