package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHandler_WritesPayloadToStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload.json")
	h := CommandHandler(config.HookEntry{Command: "cat > " + out})

	err := h(context.Background(), Payload{Event: EventAgentCompleted, Data: map[string]any{"agentId": "ag-1"}})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"agent_completed","data":{"agentId":"ag-1"}}`, string(data))
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "echo broken >&2; exit 3"})
	err := h(context.Background(), Payload{Event: EventAgentFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50})
	err := h(context.Background(), Payload{Event: EventCallCompleted})
	assert.Error(t, err)
}

func TestRegisterConfig(t *testing.T) {
	m := testManager()
	RegisterConfig(m, config.HooksConfig{
		AgentCompleted: []config.HookEntry{{Command: "true"}, {Command: "true"}},
		CallCompleted:  []config.HookEntry{{Command: "true"}},
	})

	assert.Equal(t, 2, m.Count(EventAgentCompleted))
	assert.Equal(t, 0, m.Count(EventAgentFailed))
	assert.Equal(t, 1, m.Count(EventCallCompleted))
}
