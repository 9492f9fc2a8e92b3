package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/logging"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

// testRunner books every lead. Lead "boom" fails with an auth error and
// lead "hold" blocks until the call is cancelled.
func testRunner() dialer.Runner {
	return dialer.RunnerFunc(func(ctx context.Context, leadID, scriptID string, cfg domain.AgentConfig) (dialer.Result, error) {
		switch leadID {
		case "boom":
			return dialer.Result{}, dialer.Fatal(dialer.KindAuth, "test", errors.New("bad key"))
		case "hold":
			<-ctx.Done()
			return dialer.Result{}, ctx.Err()
		}
		return dialer.Result{
			Outcome:         domain.OutcomeBooked,
			StartedAt:       time.Now(),
			DurationSeconds: 12,
			Transcript:      "AI: Hello " + leadID + "\nUser: Tuesday works",
		}, nil
	})
}

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	store store.Store
}

func newFixture(t *testing.T, withStore bool) fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken

	log := logging.New(nil, "silent")
	hub := broadcast.NewHub(cfg.Campaign.SubscriberBuffer, log)

	opts := []campaign.Option{
		campaign.WithPublisher(hub),
		campaign.WithDelayUnit(0),
	}
	var serverOpts []ServerOption
	var st store.Store
	if withStore {
		st = store.NewMemory()
		opts = append(opts, campaign.WithRecorder(st), campaign.WithLeadDirectory(st))
		serverOpts = append(serverOpts, WithStore(st))
	}
	agents := campaign.NewRegistry(testRunner(), log, opts...)
	t.Cleanup(agents.Close)

	srv := New(cfg, agents, hub, log, serverOpts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return fixture{srv: srv, ts: ts, store: st}
}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	f := newFixture(t, true)
	return f.srv, f.ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// wsClient is a handshaken test connection. Events that arrive while
// waiting for a response are queued for nextEvent.
type wsClient struct {
	t      *testing.T
	conn   *websocket.Conn
	seq    int
	events []Frame
}

func connect(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, err := NewRequest("auth-req", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux", Mode: "app"},
		Auth:        &ConnectAuth{Token: testToken},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "handshake should succeed")

	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) read() Frame {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

// call sends a request and returns its response frame.
func (c *wsClient) call(method string, params any) Frame {
	c.t.Helper()
	c.seq++
	id := fmt.Sprintf("req-%d", c.seq)
	req, err := NewRequest(id, method, params)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(req))

	for {
		f := c.read()
		if f.Type == FrameTypeEvent {
			c.events = append(c.events, f)
			continue
		}
		if f.ID == id {
			return f
		}
	}
}

// ok calls method, requires success and decodes the payload into out.
func (c *wsClient) ok(method string, params, out any) {
	c.t.Helper()
	resp := c.call(method, params)
	require.NotNil(c.t, resp.OK)
	require.True(c.t, *resp.OK, "%s failed: %+v", method, resp.Error)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(resp.Payload, out))
	}
}

// fail calls method and returns its error shape.
func (c *wsClient) fail(method string, params any) ErrorShape {
	c.t.Helper()
	resp := c.call(method, params)
	require.NotNil(c.t, resp.OK)
	require.False(c.t, *resp.OK, "%s should fail", method)
	require.NotNil(c.t, resp.Error)
	return *resp.Error
}

func (c *wsClient) nextEvent() Frame {
	c.t.Helper()
	if len(c.events) > 0 {
		f := c.events[0]
		c.events = c.events[1:]
		return f
	}
	for {
		f := c.read()
		if f.Type == FrameTypeEvent {
			return f
		}
	}
}

func (c *wsClient) spawn(leads ...string) domain.Agent {
	c.t.Helper()
	var a domain.Agent
	c.ok("agent.spawn", map[string]any{"leadIds": leads}, &a)
	return a
}

func byID(id string) map[string]string { return map[string]string{"agentId": id} }

// --- HTTP surface ---

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- Handshake ---

func TestWebSocketHandshakeSuccess(t *testing.T) {
	_, ts := testServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, "connect.challenge", challenge.Event)

	connectReq, err := NewRequest("req-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux", Mode: "app"},
		Auth:        &ConnectAuth{Token: testToken},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(connectReq))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	assert.Equal(t, FrameTypeResponse, helloResp.Type)
	assert.Equal(t, "req-1", helloResp.ID)
	require.NotNil(t, helloResp.OK)
	assert.True(t, *helloResp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(helloResp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "agent.spawn")
	assert.Contains(t, hello.Features.Methods, "agent.subscribe")
	assert.Contains(t, hello.Features.Events, EventAgentSnapshot)
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)
	assert.Equal(t, config.DefaultSubscriberBuffer, hello.Policy.SubscriberBuffer)
	assert.Equal(t, domain.MinDelaySeconds, hello.Policy.MinDelaySeconds)
	assert.Equal(t, domain.MaxDelaySeconds, hello.Policy.MaxDelaySeconds)
	assert.Equal(t, config.DefaultDelaySeconds, hello.Policy.DefaultDelaySeconds)
	assert.Len(t, hello.Features.Outcomes, len(domain.Outcomes))
	assert.Contains(t, hello.Features.Outcomes, "not-interested")
	assert.True(t, hello.Features.Store)
	assert.Empty(t, hello.Subscribed)
}

func TestWebSocketHandshakeProtocolMismatch(t *testing.T) {
	_, ts := testServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", MethodConnect, ConnectParams{
		MinProtocol: 2,
		MaxProtocol: 3,
		Client:      ClientInfo{ID: "future-client"},
		Auth:        &ConnectAuth{Token: testToken},
	})
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.Succeeded())
	require.NotNil(t, resp.Error)
	assert.Equal(t, "protocol_error", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "protocol 1")
}

func TestWebSocketHandshakeSubscribes(t *testing.T) {
	f := newFixture(t, true)
	a, err := f.srv.agents.Spawn(campaign.SpawnRequest{LeadIDs: []string{"x"}})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", MethodConnect, ConnectParams{
		Client:    ClientInfo{ID: "dashboard", Mode: "dashboard"},
		Auth:      &ConnectAuth{Token: testToken},
		Subscribe: []string{a.ID, "missing"},
	})
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.True(t, resp.Succeeded())
	var hello HelloOK
	require.NoError(t, resp.Decode(&hello))
	assert.Equal(t, []string{a.ID}, hello.Subscribed)

	// The replayed idle snapshot follows the hello.
	var ev Frame
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventAgentSnapshot, ev.Event)
	var snap domain.Snapshot
	require.NoError(t, ev.Decode(&snap))
	assert.Equal(t, a.ID, snap.AgentID)
	assert.Equal(t, domain.StatusIdle, snap.Status)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	_, ts := testServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	connectReq, _ := NewRequest("req-1", "connect", ConnectParams{
		Client: ClientInfo{ID: "test-client"},
		Auth:   &ConnectAuth{Token: "wrong"},
	})
	require.NoError(t, conn.WriteJSON(connectReq))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)
}

func TestWebSocketHandshakeRequiresConnect(t *testing.T) {
	_, ts := testServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "protocol_error", resp.Error.Code)
}

// --- RPC ---

func TestRPCHealth(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	c.spawn("a")

	var health HealthResponse
	c.ok("health", nil, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
	assert.Equal(t, 1, health.Clients)
	assert.Equal(t, 1, health.Agents)
	assert.True(t, health.Store)
}

func TestRPCUnknownMethod(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	e := c.fail("nonexistent.method", nil)
	assert.Equal(t, CodeMethodNotFound, e.Code)
}

func TestRPCMalformedFrameKeepsConnection(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := c.read()
	require.NotNil(t, f.OK)
	assert.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, CodeInvalidParams, f.Error.Code)

	var health HealthResponse
	c.ok("health", nil, &health)
	assert.Equal(t, "ok", health.Status)
}

func TestRPCClientList(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	other := connect(t, ts)
	a := other.spawn("l-1")
	other.ok("agent.subscribe", byID(a.ID), nil)

	var out struct {
		Clients []ClientSummary `json:"clients"`
	}
	c.ok("client.list", nil, &out)
	require.Len(t, out.Clients, 2)
	for _, cl := range out.Clients {
		assert.Equal(t, "test-client", cl.Client.ID)
		assert.Equal(t, "token", cl.AuthMethod)
	}
	subs := [][]string{out.Clients[0].Subscriptions, out.Clients[1].Subscriptions}
	assert.ElementsMatch(t, [][]string{{}, {a.ID}}, subs)
}

func TestRPCSpawnGetList(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	var a domain.Agent
	c.ok("agent.spawn", map[string]any{
		"name":     "Q3 push",
		"scriptId": "s1",
		"leadIds":  []string{"a", "b", "a"},
		"config":   map[string]any{"delayBetweenCalls": 90},
	}, &a)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "Q3 push", a.Name)
	assert.Equal(t, domain.StatusIdle, a.Status)
	assert.Equal(t, []string{"a", "b"}, a.LeadQueue)
	assert.Equal(t, domain.MaxDelaySeconds, a.Config.DelayBetweenCalls)

	var got domain.Agent
	c.ok("agent.get", byID(a.ID), &got)
	assert.Equal(t, a.ID, got.ID)

	c.spawn("c")
	var list struct {
		Agents []domain.Agent `json:"agents"`
	}
	c.ok("agent.list", nil, &list)
	require.Len(t, list.Agents, 2)
	assert.Equal(t, a.ID, list.Agents[0].ID)
}

func TestRPCSpawnErrors(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	assert.Equal(t, CodeInvalidParams, c.fail("agent.spawn", map[string]any{"leadIds": []string{}}).Code)
	assert.Equal(t, CodeInvalidParams, c.fail("agent.spawn", map[string]any{"leadIds": "a"}).Code)
	assert.Equal(t, CodeInvalidParams, c.fail("agent.get", nil).Code)
	assert.Equal(t, CodeNotFound, c.fail("agent.get", byID("missing")).Code)
	assert.Equal(t, CodeNotFound, c.fail("agent.start", byID("missing")).Code)
}

func TestRPCInvalidTransition(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	a := c.spawn("a")

	e := c.fail("agent.pause", byID(a.ID))
	assert.Equal(t, CodeInvalidTransition, e.Code)
	details, ok := e.Details.(map[string]any)
	require.True(t, ok, "details carry the current state")
	agent, ok := details["agent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, a.ID, agent["agentId"])
	assert.Equal(t, "idle", agent["status"])

	e = c.fail("agent.stop", byID(a.ID))
	assert.Equal(t, CodeInvalidTransition, e.Code)

	var got domain.Agent
	c.ok("agent.get", byID(a.ID), &got)
	assert.Equal(t, domain.StatusIdle, got.Status)
}

func TestRPCStartAndWait(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	a := c.spawn("a", "b", "c")

	var snap domain.Snapshot
	c.ok("agent.start", byID(a.ID), &snap)
	assert.Equal(t, a.ID, snap.AgentID)
	assert.Equal(t, domain.StatusRunning, snap.Status)

	var done domain.Agent
	c.ok("agent.wait", map[string]any{"agentId": a.ID, "timeoutMs": 5000}, &done)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 3, done.Stats.TotalCalls)
	assert.Equal(t, 3, done.Stats.Booked)
	assert.Empty(t, done.LeadQueue)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, done.CompletedLeads)

	assert.Equal(t, CodeInvalidTransition, c.fail("agent.start", byID(a.ID)).Code)
}

func TestRPCWaitFailed(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	a := c.spawn("a", "boom", "c")
	c.ok("agent.start", byID(a.ID), nil)

	e := c.fail("agent.wait", map[string]any{"agentId": a.ID, "timeoutMs": 5000})
	assert.Equal(t, CodeAgentFailed, e.Code)
	assert.Contains(t, e.Message, "bad key")

	details, ok := e.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "auth", details["kind"])

	var got domain.Agent
	c.ok("agent.get", byID(a.ID), &got)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, []string{"boom", "c"}, got.LeadQueue)
	assert.Equal(t, []string{"a"}, got.CompletedLeads)
}

func TestRPCWaitTimeout(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	a := c.spawn("a")

	e := c.fail("agent.wait", map[string]any{"agentId": a.ID, "timeoutMs": 50})
	assert.Equal(t, CodeTimeout, e.Code)
	assert.True(t, e.Retryable)
}

func TestRPCWaitDoesNotBlockConnection(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	a := c.spawn("a")

	req, err := NewRequest("wait-1", "agent.wait", map[string]any{"agentId": a.ID, "timeoutMs": 5000})
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteJSON(req))

	// The connection still serves requests while the wait is pending.
	var snap domain.Snapshot
	c.ok("agent.start", byID(a.ID), &snap)

	for {
		f := c.read()
		if f.ID == "wait-1" {
			require.NotNil(t, f.OK)
			assert.True(t, *f.OK)
			return
		}
	}
}

func TestRPCDelete(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	busy := c.spawn("hold")
	c.ok("agent.start", byID(busy.ID), nil)
	assert.Equal(t, CodeAgentActive, c.fail("agent.delete", byID(busy.ID)).Code)

	idle := c.spawn("a")
	var res struct {
		Deleted bool `json:"deleted"`
	}
	c.ok("agent.delete", byID(idle.ID), &res)
	assert.True(t, res.Deleted)
	assert.Equal(t, CodeNotFound, c.fail("agent.get", byID(idle.ID)).Code)
	assert.Equal(t, CodeNotFound, c.fail("agent.delete", byID(idle.ID)).Code)
}

func TestRPCSubscribeStreamsSnapshots(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)
	a := c.spawn("a", "b")

	var sub struct {
		Subscribed bool `json:"subscribed"`
	}
	c.ok("agent.subscribe", byID(a.ID), &sub)
	assert.True(t, sub.Subscribed)

	first := c.nextEvent()
	assert.Equal(t, EventAgentSnapshot, first.Event)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Equal(t, a.ID, snap.AgentID)
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.Equal(t, 2, snap.LeadQueueLength)

	c.ok("agent.start", byID(a.ID), nil)

	lastSeq := first.Seq
	for snap.Status != domain.StatusCompleted {
		ev := c.nextEvent()
		require.Equal(t, EventAgentSnapshot, ev.Event)
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
		require.NoError(t, json.Unmarshal(ev.Payload, &snap))
		assert.Equal(t, a.ID, snap.AgentID)
	}
	assert.Equal(t, 2, snap.Stats.Booked)
	assert.Equal(t, 0, snap.LeadQueueLength)
}

func TestRPCSubscribeErrors(t *testing.T) {
	f := newFixture(t, true)
	c := connect(t, f.ts)

	assert.Equal(t, CodeNotFound, c.fail("agent.subscribe", byID("missing")).Code)
	assert.Equal(t, CodeInvalidParams, c.fail("agent.subscribe", nil).Code)

	a := c.spawn("a")
	c.ok("agent.subscribe", byID(a.ID), nil)
	c.ok("agent.subscribe", byID(a.ID), nil)
	assert.Equal(t, 1, f.srv.hub.SubscriberCount(a.ID))

	var res struct {
		Unsubscribed bool `json:"unsubscribed"`
	}
	c.ok("agent.unsubscribe", byID(a.ID), &res)
	assert.True(t, res.Unsubscribed)
	assert.Eventually(t, func() bool { return f.srv.hub.SubscriberCount(a.ID) == 0 }, time.Second, 5*time.Millisecond)

	c.ok("agent.unsubscribe", byID(a.ID), &res)
	assert.False(t, res.Unsubscribed)
}

func TestSubscriptionsEndWithConnection(t *testing.T) {
	f := newFixture(t, true)
	c := connect(t, f.ts)
	a := c.spawn("a")
	c.ok("agent.subscribe", byID(a.ID), nil)
	require.Equal(t, 1, f.srv.hub.SubscriberCount(a.ID))

	c.conn.Close()
	assert.Eventually(t, func() bool { return f.srv.hub.SubscriberCount(a.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRPCAttempts(t *testing.T) {
	f := newFixture(t, true)
	c := connect(t, f.ts)
	a := c.spawn("a", "b")
	c.ok("agent.start", byID(a.ID), nil)
	c.ok("agent.wait", byID(a.ID), nil)

	type attemptsResp struct {
		Attempts []store.Attempt `json:"attempts"`
	}
	require.Eventually(t, func() bool {
		got, err := f.store.Attempts(context.Background(), a.ID)
		return err == nil && len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	var res attemptsResp
	c.ok("agent.attempts", byID(a.ID), &res)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, domain.OutcomeBooked, res.Attempts[0].Outcome)
	require.Len(t, res.Attempts[0].Messages, 2)
	assert.Equal(t, domain.RoleAssistant, res.Attempts[0].Messages[0].Role)

	var hits attemptsResp
	c.ok("transcript.search", map[string]any{"query": "tuesday"}, &hits)
	assert.Len(t, hits.Attempts, 2)
	assert.Equal(t, CodeInvalidParams, c.fail("transcript.search", map[string]any{}).Code)
}

func TestRPCTranscriptParse(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	var res struct {
		Messages []domain.TranscriptMessage `json:"messages"`
	}
	c.ok("transcript.parse", map[string]any{"transcript": "AI: Hi\nUser: Hello\nsecond line"}, &res)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, res.Messages[0].Role)
	assert.Equal(t, "Hi", res.Messages[0].Content)
	assert.Equal(t, domain.RoleUser, res.Messages[1].Role)
	assert.Equal(t, "Hello\nsecond line", res.Messages[1].Content)

	c.ok("transcript.parse", map[string]any{"transcript": ""}, &res)
	assert.Empty(t, res.Messages)
}

func TestRPCLeadsAndScripts(t *testing.T) {
	_, ts := testServer(t)
	c := connect(t, ts)

	c.ok("lead.put", domain.Lead{ID: "l1", Name: "Ada", Phone: "+15550100"}, nil)
	assert.Equal(t, CodeInvalidParams, c.fail("lead.put", domain.Lead{Name: "no id"}).Code)

	var leads struct {
		Leads []domain.Lead `json:"leads"`
	}
	c.ok("lead.list", nil, &leads)
	require.Len(t, leads.Leads, 1)
	assert.Equal(t, "Ada", leads.Leads[0].Name)

	c.ok("script.put", domain.Script{ID: "s1", Name: "Demo", TalkingPoints: []string{"one"}}, nil)
	var scripts struct {
		Scripts []domain.Script `json:"scripts"`
	}
	c.ok("script.list", nil, &scripts)
	require.Len(t, scripts.Scripts, 1)
	assert.Equal(t, []string{"one"}, scripts.Scripts[0].TalkingPoints)
}

func TestRPCWithoutStore(t *testing.T) {
	f := newFixture(t, false)
	c := connect(t, f.ts)

	for _, method := range []string{"lead.list", "script.list"} {
		assert.Equal(t, CodeUnavailable, c.fail(method, nil).Code, method)
	}
	assert.Equal(t, CodeUnavailable, c.fail("agent.attempts", byID("x")).Code)
	assert.Equal(t, CodeUnavailable, c.fail("transcript.search", map[string]any{"query": "x"}).Code)

	var health HealthResponse
	c.ok("health", nil, &health)
	assert.False(t, health.Store)
}

// --- Server lifecycle ---

func TestServerStart(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0 // let OS pick a port
	cfg.Gateway.Auth.Token = "test-token"

	log := logging.New(nil, "silent")
	hub := broadcast.NewHub(4, log)
	agents := campaign.NewRegistry(testRunner(), log, campaign.WithPublisher(hub))
	defer agents.Close()
	srv := New(cfg, agents, hub, log)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	assert.Eventually(t, func() bool { return srv.Uptime() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerMethods(t *testing.T) {
	srv, _ := testServer(t)
	methods := srv.Methods()
	assert.IsIncreasing(t, methods)
	for _, m := range []string{
		"health", "agent.spawn", "agent.start", "agent.pause", "agent.resume", "agent.stop",
		"agent.delete", "agent.get", "agent.list", "agent.subscribe", "agent.unsubscribe",
		"agent.attempts", "agent.wait", "transcript.parse", "transcript.search", "client.list",
	} {
		assert.Contains(t, methods, m)
	}
}

func TestHandshakeFailuresAreRateLimited(t *testing.T) {
	srv, ts := testServer(t)
	srv.limiter.maxFails = 1

	handshake := func(params ConnectParams) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
		require.NoError(t, err)
		defer conn.Close()
		var challenge Frame
		require.NoError(t, conn.ReadJSON(&challenge))
		req, _ := NewRequest("req-1", "connect", params)
		require.NoError(t, conn.WriteJSON(req))
		var resp Frame
		require.NoError(t, conn.ReadJSON(&resp))
		require.NotNil(t, resp.Error)
	}

	// protocol errors do not count
	handshake(ConnectParams{MinProtocol: 99, MaxProtocol: 99, Auth: &ConnectAuth{Token: testToken}})
	connect(t, ts)

	handshake(ConnectParams{Auth: &ConnectAuth{Token: "wrong"}})
	assert.Eventually(t, func() bool {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
		if err == nil {
			conn.Close()
			return false
		}
		return resp != nil && resp.StatusCode == http.StatusTooManyRequests
	}, 2*time.Second, 10*time.Millisecond)
}
