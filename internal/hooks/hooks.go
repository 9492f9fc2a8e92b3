// Package hooks dispatches campaign lifecycle events to registered handlers.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/outreach/internal/logging"
)

// Campaign lifecycle events.
const (
	EventAgentSpawned   = "agent_spawned"
	EventAgentStarted   = "agent_started"
	EventAgentPaused    = "agent_paused"
	EventAgentResumed   = "agent_resumed"
	EventAgentCompleted = "agent_completed"
	EventAgentFailed    = "agent_failed"
	EventCallCompleted  = "call_completed"
	EventGatewayStart   = "gateway_start"
	EventGatewayStop    = "gateway_stop"
)

// AllEvents lists every event the campaign and gateway emit.
var AllEvents = []string{
	EventAgentSpawned,
	EventAgentStarted,
	EventAgentPaused,
	EventAgentResumed,
	EventAgentCompleted,
	EventAgentFailed,
	EventCallCompleted,
	EventGatewayStart,
	EventGatewayStop,
}

// Known reports whether event is one of AllEvents.
func Known(event string) bool {
	return slices.Contains(AllEvents, event)
}

// Payload is what a handler receives. Command hooks get it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. A returned error is logged and otherwise
// ignored.
type Handler func(ctx context.Context, p Payload) error

type registration struct {
	name string
	fn   Handler
}

// Manager keeps per-event handler lists.
type Manager struct {
	log *logging.Logger
	now func() time.Time

	mu   sync.RWMutex
	regs map[string][]registration

	inflight sync.WaitGroup
}

// NewManager returns an empty Manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		log:  log.Sub("hooks"),
		now:  time.Now,
		regs: make(map[string][]registration),
	}
}

// On appends handler to event under name. Names need not be unique; Off
// removes all registrations sharing one.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	m.regs[event] = append(m.regs[event], registration{name: name, fn: handler})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off drops every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := slices.DeleteFunc(slices.Clone(m.regs[event]), func(r registration) bool {
		return r.name == name
	})
	if len(kept) == 0 {
		delete(m.regs, event)
		return
	}
	m.regs[event] = kept
}

// handlers returns a copy of the current list so dispatch runs unlocked.
func (m *Manager) handlers(event string) []registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.regs[event])
}

// Emit runs the handlers for event one after another, in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	regs := m.handlers(event)
	if len(regs) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now(), Data: data}
	for _, r := range regs {
		m.call(ctx, r, p)
	}
}

// EmitAsync starts each handler in its own goroutine and returns. Drain
// waits for them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	regs := m.handlers(event)
	if len(regs) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now(), Data: data}
	m.inflight.Add(len(regs))
	for _, r := range regs {
		go func() {
			defer m.inflight.Done()
			m.call(ctx, r, p)
		}()
	}
}

// Drain blocks until async handlers started so far have returned, or ctx
// ends first.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs one handler. A panicking handler is logged like a failing one.
func (m *Manager) call(ctx context.Context, r registration, p Payload) {
	defer func() {
		if v := recover(); v != nil {
			m.logFailure(r, p, fmt.Errorf("panic: %v", v))
		}
	}()
	if err := r.fn(ctx, p); err != nil {
		m.logFailure(r, p, err)
	}
}

func (m *Manager) logFailure(r registration, p Payload, err error) {
	m.log.Warn().Err(err).Str("event", p.Event).Str("handler", r.name).Msg("hook handler failed")
}

// Count is the number of handlers on event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regs[event])
}

// Events returns the events that have handlers, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.regs))
	for ev := range m.regs {
		out = append(out, ev)
	}
	slices.Sort(out)
	return out
}
