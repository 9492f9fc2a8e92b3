package irc

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

type sent struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (s *sent) send(target, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[target] = append(s.lines[target], line)
}

func (s *sent) get(target string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines[target]...)
}

func fakeNotifier(channels ...string) (*Notifier, *sent) {
	n := New(config.IRCConfig{Server: "irc.example.net", Nick: "outreach", Channels: channels}, testLogger())
	s := &sent{lines: map[string][]string{}}
	n.send = s.send
	return n, s
}

func TestFormatEvent_Completed(t *testing.T) {
	msg, ok := formatEvent(hooks.Payload{
		Event: hooks.EventAgentCompleted,
		Data: map[string]any{
			"agentId":        "0123456789abcdef",
			"agentName":      "Q3 Push",
			"stats":          domain.Stats{TotalCalls: 4, Booked: 2, NoAnswer: 2},
			"remainingLeads": 3,
		},
	})
	require.True(t, ok)
	assert.Contains(t, msg, "Q3 Push (01234567) completed")
	assert.Contains(t, msg, "4 calls, 2 booked")
	assert.Contains(t, msg, "(3 leads not called)")
}

func TestFormatEvent_Failed(t *testing.T) {
	msg, ok := formatEvent(hooks.Payload{
		Event: hooks.EventAgentFailed,
		Data:  map[string]any{"agentId": "a1", "error": "auth failure: bad key"},
	})
	require.True(t, ok)
	assert.Equal(t, "[outreach] a1 FAILED: auth failure: bad key", msg)
}

func TestFormatEvent_OnlyBookedCalls(t *testing.T) {
	msg, ok := formatEvent(hooks.Payload{
		Event: hooks.EventCallCompleted,
		Data:  map[string]any{"agentName": "Q3", "leadId": "l7", "outcome": "booked"},
	})
	require.True(t, ok)
	assert.Equal(t, "[outreach] Q3 booked a meeting with lead l7", msg)

	_, ok = formatEvent(hooks.Payload{
		Event: hooks.EventCallCompleted,
		Data:  map[string]any{"outcome": "no-answer"},
	})
	assert.False(t, ok)
}

func TestFormatEvent_Unrelated(t *testing.T) {
	_, ok := formatEvent(hooks.Payload{Event: hooks.EventAgentStarted})
	assert.False(t, ok)
}

func TestRegister_SendsToAllChannels(t *testing.T) {
	n, s := fakeNotifier("#ops", "#sales")
	m := hooks.NewManager(testLogger())
	n.Register(m)

	assert.Equal(t, 1, m.Count(hooks.EventAgentCompleted))
	assert.Equal(t, 1, m.Count(hooks.EventAgentFailed))

	m.Emit(context.Background(), hooks.EventAgentFailed, map[string]any{"agentName": "X", "error": "boom"})

	for _, ch := range []string{"#ops", "#sales"} {
		lines := s.get(ch)
		require.Len(t, lines, 1, ch)
		assert.Contains(t, lines[0], "X FAILED: boom")
	}
}

func TestRegister_AsyncDelivery(t *testing.T) {
	n, s := fakeNotifier("#ops")
	m := hooks.NewManager(testLogger())
	n.Register(m)

	m.EmitAsync(context.Background(), hooks.EventCallCompleted, map[string]any{"agentName": "X", "leadId": "l1", "outcome": "booked"})
	assert.Eventually(t, func() bool { return len(s.get("#ops")) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBroadcast_NotConnected(t *testing.T) {
	n := New(config.IRCConfig{Channels: []string{"#ops"}}, testLogger())
	err := n.broadcast("hello")
	assert.Error(t, err)
	assert.False(t, n.Connected())
	assert.Empty(t, n.LastError())
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"a", "b"}, splitMessage("a\n\nb", 10))

	long := strings.Repeat("x", 25)
	chunks := splitMessage(long, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, strings.Repeat("x", 5), chunks[2])
}
