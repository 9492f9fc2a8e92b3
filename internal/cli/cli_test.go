package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/gateway"
	"github.com/soyeahso/outreach/internal/logging"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger { return logging.New(nil, "silent") }

func TestRunSimulation_CompletesQueue(t *testing.T) {
	var out bytes.Buffer
	sim := simulation{
		Leads:   []string{"a", "b", "c"},
		Delay:   1,
		Seed:    7,
		Weights: map[string]int{"booked": 1},
	}

	final, err := runSimulation(context.Background(), &out, sim, config.Defaults().Campaign, silentLog())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 3, final.Stats.TotalCalls)
	assert.Equal(t, 3, final.Stats.Booked)
	assert.Empty(t, final.LeadQueue)
	assert.Contains(t, out.String(), "completed after 3 calls")
	assert.Contains(t, out.String(), "booked")
}

func TestRunSimulation_RecordsIntoStore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.PutLead(ctx, domain.Lead{ID: "a", Name: "Ada", Phone: "+15551230000"}))

	var out bytes.Buffer
	sim := simulation{
		Leads:   []string{"a", "ghost"},
		Delay:   1,
		Seed:    1,
		Weights: map[string]int{"follow-up": 1},
		JSON:    true,
		Store:   st,
	}

	final, err := runSimulation(ctx, &out, sim, config.Defaults().Campaign, silentLog())
	require.NoError(t, err)
	assert.Equal(t, 1, final.Stats.FollowUp)
	assert.Equal(t, 1, final.Stats.Skipped)

	require.Eventually(t, func() bool {
		attempts, err := st.Attempts(ctx, final.ID)
		return err == nil && len(attempts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Every snapshot line is a JSON object.
	for _, line := range strings.Split(out.String(), "\n") {
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var snap domain.Snapshot
		require.NoError(t, json.Unmarshal([]byte(line), &snap))
		assert.Equal(t, final.ID, snap.AgentID)
	}
}

func TestRunSimulation_RejectsUnknownOutcome(t *testing.T) {
	sim := simulation{Leads: []string{"a"}, Weights: map[string]int{"maybe": 1}}
	_, err := runSimulation(context.Background(), &bytes.Buffer{}, sim, config.Defaults().Campaign, silentLog())
	assert.Error(t, err)
}

func TestRunSimulation_RejectsEmptyLead(t *testing.T) {
	sim := simulation{Leads: []string{""}, Delay: 1}
	_, err := runSimulation(context.Background(), &bytes.Buffer{}, sim, config.Defaults().Campaign, silentLog())
	assert.ErrorIs(t, err, campaign.ErrNoLeads)
}

func TestPrintSnapshot(t *testing.T) {
	var out bytes.Buffer
	snap := domain.Snapshot{
		AgentID:         "ag",
		Status:          domain.StatusRunning,
		LeadQueueLength: 2,
		CurrentLeadID:   "l1",
		Stats:           domain.Stats{TotalCalls: 1, Booked: 1},
	}
	require.NoError(t, printSnapshot(&out, snap, false))
	line := out.String()
	assert.Contains(t, line, "running")
	assert.Contains(t, line, "queue=2")
	assert.Contains(t, line, "calling=l1")
	assert.NotContains(t, line, "error=")
}

func TestWriteMessages(t *testing.T) {
	msgs := []domain.TranscriptMessage{
		{Role: domain.RoleAssistant, Content: "Hi"},
		{Role: domain.RoleUser, Content: "Hello"},
	}

	var text bytes.Buffer
	require.NoError(t, writeMessages(&text, msgs, true))
	assert.Equal(t, "assistant: Hi\nuser: Hello\n", text.String())

	var js bytes.Buffer
	require.NoError(t, writeMessages(&js, msgs, false))
	var decoded []domain.TranscriptMessage
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, msgs, decoded)
}

func TestParseLeadFile(t *testing.T) {
	t.Run("bare list", func(t *testing.T) {
		f, err := parseLeadFile([]byte("- id: l1\n  name: Ada\n  phone: \"+15550001\"\n- id: l2\n  name: Grace\n"))
		require.NoError(t, err)
		require.Len(t, f.Leads, 2)
		assert.Equal(t, "+15550001", f.Leads[0].Phone)
		assert.Empty(t, f.Scripts)
	})

	t.Run("leads and scripts", func(t *testing.T) {
		data := `
leads:
  - id: l1
    name: Ada
    company: Analytical
scripts:
  - id: s1
    name: Intro
    openingLine: Hello there
    talkingPoints: [one, two]
`
		f, err := parseLeadFile([]byte(data))
		require.NoError(t, err)
		require.Len(t, f.Leads, 1)
		assert.Equal(t, "Analytical", f.Leads[0].Company)
		require.Len(t, f.Scripts, 1)
		assert.Equal(t, "Hello there", f.Scripts[0].OpeningLine)
		assert.Equal(t, []string{"one", "two"}, f.Scripts[0].TalkingPoints)
	})

	t.Run("json", func(t *testing.T) {
		f, err := parseLeadFile([]byte(`[{"id":"l1","name":"Ada"}]`))
		require.NoError(t, err)
		require.Len(t, f.Leads, 1)
	})

	t.Run("empty", func(t *testing.T) {
		f, err := parseLeadFile(nil)
		require.NoError(t, err)
		assert.Empty(t, f.Leads)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseLeadFile([]byte("leads: [unclosed"))
		assert.Error(t, err)
	})
}

func TestImportLeads(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	err := importLeads(ctx, st, leadFile{
		Leads:   []domain.Lead{{ID: "l1", Name: "Ada"}},
		Scripts: []domain.Script{{ID: "s1", Name: "Intro"}},
	})
	require.NoError(t, err)

	leads, err := st.ListLeads(ctx)
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	scripts, err := st.ListScripts(ctx)
	require.NoError(t, err)
	assert.Len(t, scripts, 1)

	err = importLeads(ctx, st, leadFile{Leads: []domain.Lead{{Name: "no id"}}})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, "mock", parseValue("mock"))
}

func TestDefaultGatewayURL(t *testing.T) {
	cfg := config.Defaults().Gateway
	assert.Equal(t, "ws://127.0.0.1:18790/ws", defaultGatewayURL(cfg))

	cfg.Port = 9000
	cfg.TLS.Enabled = true
	assert.Equal(t, "wss://127.0.0.1:9000/ws", defaultGatewayURL(cfg))
}

func TestPrintStatus(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.IRC = &config.IRCConfig{Server: "irc.example.net", Nick: "outreach", Channels: []string{"#sales"}}

	var out bytes.Buffer
	printStatus(&out, cfg, "/tmp/outreach.db")
	s := out.String()
	assert.Contains(t, s, "port=18790")
	assert.Contains(t, s, "Dialer:   mock")
	assert.Contains(t, s, "/tmp/outreach.db")
	assert.Contains(t, s, "channels=#sales")
	assert.NotContains(t, s, "Validation issues")

	cfg.Dialer.Mode = "bogus"
	out.Reset()
	printStatus(&out, cfg, "")
	assert.Contains(t, out.String(), "dialer.mode")
}

func TestWatchAgent(t *testing.T) {
	log := silentLog()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Token = "watch-token"

	hub := broadcast.NewHub(cfg.Campaign.SubscriberBuffer, log)
	agents := campaign.NewRegistry(
		dialer.NewSimulator(dialer.SimulatorOptions{Seed: 3, Weights: map[domain.Outcome]int{domain.OutcomeBooked: 1}}),
		log,
		campaign.WithPublisher(hub),
		campaign.WithDelayUnit(0),
	)
	t.Cleanup(agents.Close)

	srv := gateway.New(cfg, agents, hub, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := gateway.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws",
		gateway.ConnectAuth{Token: "watch-token"},
		gateway.ClientInfo{ID: "test", Version: "test", Platform: "linux", Mode: "app"})
	require.NoError(t, err)
	defer r.Close()

	a, err := agents.Spawn(campaign.SpawnRequest{LeadIDs: []string{"a", "b"}})
	require.NoError(t, err)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- watchAgent(ctx, r, a.ID, &out, false) }()

	// Subscribing replays the latest snapshot, so a finished agent still
	// ends the watch.
	_, err = agents.Start(a.ID)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not finish")
	}
	assert.Contains(t, out.String(), "completed")
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printValue(&buf, "mock"))
	require.NoError(t, printValue(&buf, 5))
	require.NoError(t, printValue(&buf, map[string]any{"mode": "live"}))
	assert.Equal(t, "mock\n5\nmode: live\n", buf.String())
}

func TestReportIssues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reportIssues(&buf, "c.yaml", nil))
	assert.Equal(t, "c.yaml: ok\n", buf.String())

	buf.Reset()
	err := reportIssues(&buf, "c.yaml", []config.ValidationIssue{{Path: "dialer.mode", Message: "unknown mode"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 problem(s)")
	assert.Equal(t, "dialer.mode: unknown mode\n", buf.String())
}

func TestWithRawConfig(t *testing.T) {
	orig := paths
	t.Cleanup(func() { paths = orig })
	paths = config.PathsUnder(t.TempDir())

	require.NoError(t, withRawConfig("campaign.defaultDelaySeconds", true, func(raw map[string]any, k config.KeyPath) error {
		k.Set(raw, 7)
		return nil
	}))

	cfg, err := config.Load(paths.Config)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Campaign.DefaultDelaySeconds)

	assert.Error(t, withRawConfig("campaign..x", false, nil))
}

func TestRootCommand_HomeFlag(t *testing.T) {
	origPaths, origFlags := paths, flags
	t.Cleanup(func() { paths, flags = origPaths, origFlags })

	home := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--home", home, "--log-level", "silent", "config", "path"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, config.PathsUnder(home).Config+"\n", out.String())
}

func TestRootCommand_Groups(t *testing.T) {
	groups := map[string]string{}
	for _, sub := range newRootCmd().Commands() {
		groups[sub.Name()] = sub.GroupID
	}
	assert.Equal(t, groupRun, groups["serve"])
	assert.Equal(t, groupRun, groups["agent"])
	assert.Equal(t, groupData, groups["leads"])
	assert.Equal(t, groupData, groups["parse"])
	assert.Empty(t, groups["version"])
}

func TestStartupLevel(t *testing.T) {
	orig := flags
	t.Cleanup(func() { flags = orig })

	t.Setenv(LogLevelEnv, "debug")
	flags.logLevel = ""
	assert.Equal(t, "debug", startupLevel())

	flags.logLevel = "warn"
	assert.Equal(t, "warn", startupLevel())
}
