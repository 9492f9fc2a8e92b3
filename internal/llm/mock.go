package llm

import (
	"cmp"
	"context"
	"sync"
)

// DefaultMockReply is what an unconfigured MockClient answers.
const DefaultMockReply = "follow-up"

// MockClient answers from CompleteFunc, or with Reply, and records every
// request it sees.
type MockClient struct {
	ProviderName string
	Reply        string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string { return cmp.Or(m.ProviderName, ProviderMock) }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &CompletionResponse{Content: cmp.Or(m.Reply, DefaultMockReply), Model: m.Name()}, nil
}

// Requests returns a copy of the requests seen so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}
