package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/soyeahso/outreach/internal/transcript"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 10 * time.Minute
)

func (s *Server) registerRPCHandlers() {
	s.Handle(MethodHealth, func(*RequestContext) (any, error) { return s.health(), nil })
	s.Handle(MethodClientList, func(*RequestContext) (any, error) {
		return map[string]any{"clients": s.clients.List()}, nil
	})

	s.Handle(MethodAgentSpawn, s.rpcAgentSpawn)
	s.Handle(MethodAgentGet, withAgentID(s.agents.Get))
	s.Handle(MethodAgentList, func(*RequestContext) (any, error) {
		return map[string]any{"agents": s.agents.List()}, nil
	})
	s.Handle(MethodAgentStart, withControl(s.agents.Start))
	s.Handle(MethodAgentPause, withControl(s.agents.Pause))
	s.Handle(MethodAgentResume, withControl(s.agents.Resume))
	s.Handle(MethodAgentStop, withControl(s.agents.Stop))
	s.Handle(MethodAgentDelete, s.rpcAgentDelete)
	s.HandleAsync(MethodAgentWait, s.rpcAgentWait)
	s.Handle(MethodAgentSubscribe, s.rpcAgentSubscribe)
	s.Handle(MethodAgentUnsubscribe, s.rpcAgentUnsubscribe)
	s.Handle(MethodAgentAttempts, s.rpcAgentAttempts)

	s.Handle(MethodTranscriptParse, rpcTranscriptParse)
	s.Handle(MethodTranscriptSearch, s.rpcTranscriptSearch)

	s.Handle(MethodLeadPut, s.rpcLeadPut)
	s.Handle(MethodLeadList, s.rpcLeadList)
	s.Handle(MethodScriptPut, s.rpcScriptPut)
	s.Handle(MethodScriptList, s.rpcScriptList)
}

func (s *Server) health() HealthResponse {
	return HealthResponse{
		Status:   "ok",
		Version:  s.build.Version,
		Clients:  s.clients.Count(),
		Agents:   s.agents.Len(),
		UptimeMs: s.Uptime().Milliseconds(),
		Store:    s.store != nil,
	}
}

// agentID decodes {"agentId": ...}, which every agent.* method but spawn
// and list takes.
func (rc *RequestContext) agentID() (string, error) {
	var p struct {
		AgentID string `json:"agentId"`
	}
	if err := rc.Bind(&p); err != nil {
		return "", err
	}
	if p.AgentID == "" {
		return "", invalidParams("agentId is required")
	}
	return p.AgentID, nil
}

// withAgentID adapts a registry lookup or command to a handler.
func withAgentID[T any](op func(id string) (T, error)) RequestHandler {
	return func(rc *RequestContext) (any, error) {
		id, err := rc.agentID()
		if err != nil {
			return nil, err
		}
		return op(id)
	}
}

// withControl adapts a lifecycle command. A rejected command reports the
// agent's current snapshot in the error details.
func withControl(op func(id string) (domain.Snapshot, error)) RequestHandler {
	return func(rc *RequestContext) (any, error) {
		id, err := rc.agentID()
		if err != nil {
			return nil, err
		}
		snap, err := op(id)
		if err != nil {
			return nil, controlError(err, snap)
		}
		return snap, nil
	}
}

func controlError(err error, snap domain.Snapshot) error {
	if !errors.Is(err, campaign.ErrInvalidTransition) {
		return err
	}
	shape := errorShape(err)
	shape.Details = map[string]any{"agent": snap}
	return &rpcError{shape}
}

func (s *Server) rpcAgentSpawn(rc *RequestContext) (any, error) {
	var req campaign.SpawnRequest
	if err := rc.Bind(&req); err != nil {
		return nil, err
	}
	return s.agents.Spawn(req)
}

func (s *Server) rpcAgentDelete(rc *RequestContext) (any, error) {
	id, err := rc.agentID()
	if err != nil {
		return nil, err
	}
	deleted, err := s.agents.Delete(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agentId": id, "deleted": deleted}, nil
}

// rpcAgentWait blocks until the agent is terminal, the timeout passes, or
// the connection closes.
func (s *Server) rpcAgentWait(rc *RequestContext) (any, error) {
	var p struct {
		AgentID   string `json:"agentId"`
		TimeoutMs int    `json:"timeoutMs,omitempty"`
	}
	if err := rc.Bind(&p); err != nil {
		return nil, err
	}
	if p.AgentID == "" {
		return nil, invalidParams("agentId is required")
	}

	ctx, cancel := context.WithTimeout(rc.Context(), waitTimeout(p.TimeoutMs))
	defer cancel()
	view, err := s.waitAgent(ctx, p.AgentID)
	if err != nil {
		return nil, &rpcError{waitErrorShape(err, view)}
	}
	return view, nil
}

func waitTimeout(ms int) time.Duration {
	if ms <= 0 {
		return defaultWaitTimeout
	}
	return min(time.Duration(ms)*time.Millisecond, maxWaitTimeout)
}

// errAgentFailed wraps the fatal error of a failed agent.
type errAgentFailed struct{ err error }

func (e errAgentFailed) Error() string { return e.err.Error() }
func (e errAgentFailed) Unwrap() error { return e.err }

// waitAgent blocks until the agent finishes and returns its final state.
func (s *Server) waitAgent(ctx context.Context, id string) (domain.Agent, error) {
	a, err := s.agents.Agent(id)
	if err != nil {
		return domain.Agent{}, err
	}
	if err := a.Wait(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return a.View(), fmt.Errorf("agent %s still %s: %w", id, a.Status(), err)
		}
		return a.View(), errAgentFailed{err}
	}
	return a.View(), nil
}

func waitErrorShape(err error, view domain.Agent) ErrorShape {
	var failed errAgentFailed
	switch {
	case errors.As(err, &failed):
		details := map[string]any{"agent": view}
		if fe := dialer.AsFatal(failed.err); fe != nil {
			details["kind"] = fe.Kind
		}
		return ErrorShape{Code: CodeAgentFailed, Message: err.Error(), Details: details}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorShape{Code: CodeTimeout, Message: err.Error(), Details: map[string]any{"agent": view}, Retryable: true}
	}
	return errorShape(err)
}

// rpcAgentSubscribe starts streaming agent.snapshot events once the reply
// is out; the hub replays the latest snapshot first.
func (s *Server) rpcAgentSubscribe(rc *RequestContext) (any, error) {
	id, err := rc.agentID()
	if err != nil {
		return nil, err
	}
	if _, err := s.agents.Get(id); err != nil {
		return nil, err
	}
	if sub := s.hub.Subscribe(id); rc.Client.track(sub) {
		rc.AfterReply(func() { go rc.Client.forward(sub, EventAgentSnapshot, s.nextSeq) })
	}
	return map[string]any{"agentId": id, "subscribed": true}, nil
}

func (s *Server) rpcAgentUnsubscribe(rc *RequestContext) (any, error) {
	id, err := rc.agentID()
	if err != nil {
		return nil, err
	}
	return map[string]any{"agentId": id, "unsubscribed": rc.Client.Unsubscribe(id)}, nil
}

func (s *Server) rpcAgentAttempts(rc *RequestContext) (any, error) {
	id, err := rc.agentID()
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts(rc.Context(), id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agentId": id, "attempts": attempts}, nil
}

// requireStore returns the configured store or errStoreUnavailable.
func (s *Server) requireStore() (store.Store, error) {
	if s.store == nil {
		return nil, errStoreUnavailable
	}
	return s.store, nil
}

func (s *Server) attempts(ctx context.Context, agentID string) ([]store.Attempt, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	return st.Attempts(ctx, agentID)
}

func rpcTranscriptParse(rc *RequestContext) (any, error) {
	var p struct {
		Transcript string `json:"transcript"`
	}
	if err := rc.Bind(&p); err != nil {
		return nil, err
	}
	return map[string]any{"messages": transcript.Parse(p.Transcript)}, nil
}

func (s *Server) rpcTranscriptSearch(rc *RequestContext) (any, error) {
	var p struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	if err := rc.Bind(&p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, invalidParams("query is required")
	}
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	hits, err := st.SearchTranscripts(rc.Context(), p.Query, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"attempts": hits}, nil
}

func (s *Server) rpcLeadPut(rc *RequestContext) (any, error) {
	var lead domain.Lead
	if err := rc.Bind(&lead); err != nil {
		return nil, err
	}
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	if err := st.PutLead(rc.Context(), lead); err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *Server) rpcLeadList(rc *RequestContext) (any, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	leads, err := st.ListLeads(rc.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"leads": leads}, nil
}

func (s *Server) rpcScriptPut(rc *RequestContext) (any, error) {
	var script domain.Script
	if err := rc.Bind(&script); err != nil {
		return nil, err
	}
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	if err := st.PutScript(rc.Context(), script); err != nil {
		return nil, err
	}
	return script, nil
}

func (s *Server) rpcScriptList(rc *RequestContext) (any, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	scripts, err := st.ListScripts(rc.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"scripts": scripts}, nil
}
