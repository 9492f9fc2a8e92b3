// Package llm is the completion client the live dialer uses to classify
// finished calls. FromConfig picks the provider.
package llm

import (
	"context"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is one prompt. A nil Temperature leaves the provider
// default in place.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Label builds a request for a short deterministic answer to a single user
// turn.
func Label(model, system, user string, maxTokens int) CompletionRequest {
	zero := 0.0
	return CompletionRequest{
		Model:       model,
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: user}},
		MaxTokens:   maxTokens,
		Temperature: &zero,
	}
}

type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// FirstWord is the reply's first word, lowercased, with surrounding quotes
// and punctuation removed. It is empty for a blank reply.
func (r *CompletionResponse) FirstWord() string {
	f := strings.Fields(r.Content)
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(f[0], `.,;:!"'`+"`"))
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client completes one prompt at a time.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}
