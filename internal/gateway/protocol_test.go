package gateway

import (
	"encoding/json"
	"testing"

	"github.com/soyeahso/outreach/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-2", MethodAgentGet, map[string]string{"agentId": "ag-1"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-2", frame.ID)
	assert.Equal(t, "agent.get", frame.Method)
	assert.JSONEq(t, `{"agentId":"ag-1"}`, string(frame.Params))
}

func TestNewResponse(t *testing.T) {
	snap := domain.Snapshot{AgentID: "ag-1", Status: domain.StatusPaused, LeadQueueLength: 3}
	frame, err := NewResponse("req-1", snap)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.True(t, frame.Succeeded())
	assert.Nil(t, frame.Error)

	var decoded domain.Snapshot
	require.NoError(t, frame.Decode(&decoded))
	assert.Equal(t, domain.StatusPaused, decoded.Status)
	assert.Equal(t, 3, decoded.LeadQueueLength)
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-1", ErrorShape{
		Code:      CodeTimeout,
		Message:   "agent still running",
		Retryable: true,
		Details:   map[string]string{"agentId": "ag-1"},
	})

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.False(t, frame.Succeeded())
	require.NotNil(t, frame.Error)
	assert.True(t, frame.Error.Retryable)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	var decoded Frame
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, CodeTimeout, decoded.Error.Code)
	assert.Empty(t, decoded.Payload)
}

func TestNewEvent(t *testing.T) {
	frame, err := NewEvent(EventAgentSnapshot, domain.Snapshot{AgentID: "ag-1", Status: domain.StatusRunning}, 42)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, EventAgentSnapshot, frame.Event)
	assert.Equal(t, int64(42), frame.Seq)
	assert.False(t, frame.Succeeded())

	var snap domain.Snapshot
	require.NoError(t, frame.Decode(&snap))
	assert.Equal(t, "ag-1", snap.AgentID)
}

func TestEventSeqOmittedWhenZero(t *testing.T) {
	frame, err := NewEvent(EventConnectChallenge, map[string]string{"nonce": "abc"}, 0)
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"seq"`)
}

func TestFrameDecodeWithoutPayload(t *testing.T) {
	var v map[string]any
	assert.Error(t, Frame{ID: "x"}.Decode(&v))
}

func TestConnectParamsWire(t *testing.T) {
	data, err := json.Marshal(ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "dash", Version: "1.0.0", Platform: "linux", Mode: "dashboard"},
		Subscribe:   []string{"ag-1"},
	})
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, `"auth"`)
	assert.Contains(t, s, `"subscribe":["ag-1"]`)
	assert.Contains(t, s, `"mode":"dashboard"`)
}

func TestErrorShapeOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorShape{Code: CodeInvalidParams, Message: "agentId is required"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "details")
	assert.NotContains(t, string(data), "retryable")
}

func TestNegotiateProtocol(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  bool
	}{
		{"exact", 1, 1, false},
		{"unset", 0, 0, false},
		{"wider range", 1, 4, false},
		{"only newer", 2, 3, true},
		{"inverted", 3, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := negotiateProtocol(tt.min, tt.max)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ProtocolVersion, got)
		})
	}
}
