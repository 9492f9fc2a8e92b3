// Package irc posts campaign lifecycle notices to IRC channels using the
// girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/logging"
)

const hookName = "irc-notify"

// maxLineLen keeps PRIVMSG lines well under the 512 byte protocol limit.
const maxLineLen = 400

// Notifier relays agent_completed, agent_failed and booked calls to the
// configured channels.
type Notifier struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	send    func(target, line string)
	lastErr string
}

// New creates a notifier from configuration. It does not connect until Run.
func New(cfg config.IRCConfig, log *logging.Logger) *Notifier {
	return &Notifier{cfg: cfg, log: log.Sub("irc")}
}

// Register subscribes the notifier to the hook events it reports.
func (n *Notifier) Register(m *hooks.Manager) {
	for _, ev := range []string{hooks.EventAgentCompleted, hooks.EventAgentFailed, hooks.EventCallCompleted} {
		m.On(ev, hookName, n.handle)
	}
}

// Connected reports whether the client is connected.
func (n *Notifier) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.client != nil && n.client.IsConnected()
}

// LastError returns the last connection error, if any.
func (n *Notifier) LastError() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastErr
}

// Run connects to the server and blocks until ctx is done or the
// connection fails.
func (n *Notifier) Run(ctx context.Context) error {
	port := n.cfg.Port
	if port == 0 {
		if n.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  n.cfg.Server,
		Port:    port,
		Nick:    n.cfg.Nick,
		User:    n.cfg.Nick,
		Name:    "outreach campaign notifier",
		SSL:     n.cfg.UseTLS,
		Version: "outreach",
	}
	if n.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: n.cfg.Server}
	}
	if n.cfg.SASL && n.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: n.cfg.Nick, Pass: n.cfg.Password}
	} else if n.cfg.Password != "" {
		gircCfg.ServerPass = n.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, n.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, func(_ *girc.Client, _ girc.Event) {
		n.log.Warn().Msg("disconnected from IRC")
	})

	n.mu.Lock()
	n.client = client
	n.send = func(target, line string) { client.Cmd.Message(target, line) }
	n.lastErr = ""
	n.mu.Unlock()

	n.log.Info().
		Str("server", n.cfg.Server).
		Int("port", port).
		Str("nick", n.cfg.Nick).
		Strs("channels", n.cfg.Channels).
		Bool("tls", n.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			n.mu.Lock()
			n.lastErr = err.Error()
			n.mu.Unlock()
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		if client.IsConnected() {
			client.Quit("outreach shutting down")
		}
		client.Close()
		return nil
	}
}

func (n *Notifier) onConnected(c *girc.Client, _ girc.Event) {
	n.log.Info().Str("nick", c.GetNick()).Msg("connected to IRC")
	for _, ch := range n.cfg.Channels {
		c.Cmd.Join(ch)
		n.log.Debug().Str("channel", ch).Msg("joining channel")
	}
}

func (n *Notifier) handle(_ context.Context, p hooks.Payload) error {
	text, ok := formatEvent(p)
	if !ok {
		return nil
	}
	return n.broadcast(text)
}

// broadcast sends text to every configured channel.
func (n *Notifier) broadcast(text string) error {
	n.mu.RLock()
	send := n.send
	connected := n.client == nil || n.client.IsConnected()
	n.mu.RUnlock()

	if send == nil || !connected {
		return fmt.Errorf("irc: not connected")
	}
	lines := splitMessage(text, maxLineLen)
	for _, ch := range n.cfg.Channels {
		for _, line := range lines {
			send(ch, line)
		}
	}
	n.log.Debug().Int("channels", len(n.cfg.Channels)).Int("lines", len(lines)).Msg("sent notice")
	return nil
}

// formatEvent renders a hook payload as a one-line notice. Calls that did
// not book a meeting are not reported.
func formatEvent(p hooks.Payload) (string, bool) {
	name := label(p.Data)
	switch p.Event {
	case hooks.EventAgentCompleted:
		msg := fmt.Sprintf("[outreach] %s completed", name)
		if s, ok := p.Data["stats"].(domain.Stats); ok {
			msg += fmt.Sprintf(": %d calls, %d booked, %d follow-up, %d no answer, %d voicemail, %d not interested, %d skipped, %d failed",
				s.TotalCalls, s.Booked, s.FollowUp, s.NoAnswer, s.Voicemail, s.NotInterested, s.Skipped, s.Failed)
		}
		if rem, ok := p.Data["remainingLeads"].(int); ok && rem > 0 {
			msg += fmt.Sprintf(" (%d leads not called)", rem)
		}
		return msg, true
	case hooks.EventAgentFailed:
		msg := fmt.Sprintf("[outreach] %s FAILED", name)
		if e, ok := p.Data["error"].(string); ok && e != "" {
			msg += ": " + e
		}
		return msg, true
	case hooks.EventCallCompleted:
		if p.Data["outcome"] != domain.OutcomeBooked.String() {
			return "", false
		}
		lead, _ := p.Data["leadId"].(string)
		return fmt.Sprintf("[outreach] %s booked a meeting with lead %s", name, lead), true
	}
	return "", false
}

func label(data map[string]any) string {
	name, _ := data["agentName"].(string)
	id, _ := data["agentId"].(string)
	switch {
	case name != "" && id != "":
		return fmt.Sprintf("%s (%s)", name, shortID(id))
	case name != "":
		return name
	case id != "":
		return id
	}
	return "campaign"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// splitMessage breaks text into IRC-sized lines. PRIVMSG cannot carry
// newlines, so each input line becomes at least one output line.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
