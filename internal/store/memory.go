package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/transcript"
)

// Memory is an in-process Store. Nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	leads    map[string]domain.Lead
	scripts  map[string]domain.Script
	attempts []Attempt
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		leads:   make(map[string]domain.Lead),
		scripts: make(map[string]domain.Script),
	}
}

func (m *Memory) PutLead(_ context.Context, lead domain.Lead) error {
	if lead.ID == "" {
		return ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[lead.ID] = lead
	return nil
}

func (m *Memory) Lead(_ context.Context, id string) (domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return domain.Lead{}, fmt.Errorf("%w: %s", domain.ErrLeadNotFound, id)
	}
	return l, nil
}

func (m *Memory) ListLeads(context.Context) ([]domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	leads := make([]domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		leads = append(leads, l)
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].ID < leads[j].ID })
	return leads, nil
}

func (m *Memory) PutScript(_ context.Context, s domain.Script) error {
	if s.ID == "" {
		return ErrInvalidRecord
	}
	s.TalkingPoints = append([]string(nil), s.TalkingPoints...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[s.ID] = s
	return nil
}

func (m *Memory) Script(_ context.Context, id string) (domain.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return domain.Script{}, fmt.Errorf("%w: %s", domain.ErrScriptNotFound, id)
	}
	s.TalkingPoints = append([]string(nil), s.TalkingPoints...)
	return s, nil
}

func (m *Memory) ListScripts(context.Context) ([]domain.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scripts := make([]domain.Script, 0, len(m.scripts))
	for _, s := range m.scripts {
		scripts = append(scripts, s)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].ID < scripts[j].ID })
	return scripts, nil
}

func (m *Memory) RecordAttempt(_ context.Context, a domain.CallAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	rec := Attempt{CallAttempt: a, Messages: transcript.Parse(a.Transcript)}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, rec)
	return nil
}

func (m *Memory) Attempts(_ context.Context, agentID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// SearchTranscripts returns attempts whose transcript contains every term
// of query, case-insensitively, most recent first.
func (m *Memory) SearchTranscripts(_ context.Context, query string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.attempts[i]
		if len(terms) > 0 && containsAll(strings.ToLower(a.Transcript), terms) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
