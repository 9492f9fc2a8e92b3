package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/outreach/internal/config"
)

// DefaultCommandTimeout bounds a hook command when the entry sets none.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs entry.Command through the shell
// with the JSON payload on stdin.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterConfig wires the configured shell hooks into m.
func RegisterConfig(m *Manager, cfg config.HooksConfig) {
	register := func(event string, entries []config.HookEntry) {
		for i, e := range entries {
			m.On(event, fmt.Sprintf("config.%s.%d", event, i), CommandHandler(e))
		}
	}
	register(EventAgentCompleted, cfg.AgentCompleted)
	register(EventAgentFailed, cfg.AgentFailed)
	register(EventCallCompleted, cfg.CallCompleted)
}
