package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClaudeBaseURL = "https://api.anthropic.com"
	claudeAPIVersion     = "2023-06-01"
	defaultMaxTokens     = 256
	maxResponseBytes     = 1 << 20
)

// ClaudeAPIClient calls the Claude messages endpoint over plain HTTP.
type ClaudeAPIClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// ClaudeOption customizes a ClaudeAPIClient.
type ClaudeOption func(*ClaudeAPIClient)

// WithHTTPClient replaces the default client, which times out after a minute.
func WithHTTPClient(hc *http.Client) ClaudeOption {
	return func(c *ClaudeAPIClient) { c.http = hc }
}

// NewClaudeAPIClient returns a client for model. An empty baseURL means the
// public endpoint.
func NewClaudeAPIClient(apiKey, model, baseURL string, opts ...ClaudeOption) *ClaudeAPIClient {
	c := &ClaudeAPIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(cmp.Or(baseURL, defaultClaudeBaseURL), "/"),
		http:    &http.Client{Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ClaudeAPIClient) Name() string { return ProviderClaude }

type claudeRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// claudeError is the body of a non-2xx reply.
type claudeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete runs one non-streaming completion. The request model, when set
// to anything but the bare provider name, overrides the client's model.
func (c *ClaudeAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" || model == ProviderClaude {
		model = c.model
	}
	body, err := json.Marshal(claudeRequest{
		Model:       model,
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   cmp.Or(max(req.MaxTokens, 0), defaultMaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("claude: reading reply: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &ProviderError{Provider: ProviderClaude, Code: resp.StatusCode, Message: errorMessage(raw)}
	}

	var out claudeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("claude: decoding reply: %w", err)
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Content:    text.String(),
		StopReason: out.StopReason,
		Model:      out.Model,
		Usage:      Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
		Duration:   time.Since(start),
	}, nil
}

// errorMessage prefers the API's error envelope and falls back to the raw
// body.
func errorMessage(raw []byte) string {
	var e claudeError
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		if e.Error.Type != "" {
			return e.Error.Type + ": " + e.Error.Message
		}
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
