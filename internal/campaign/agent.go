package campaign

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/logging"
)

// Publisher receives every snapshot an agent produces.
type Publisher interface {
	Publish(domain.Snapshot)
}

// AttemptRecorder persists settled call attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a domain.CallAttempt) error
}

// deps are the collaborators an agent shares with its registry.
type deps struct {
	runner      dialer.Runner
	leads       domain.LeadDirectory
	publisher   Publisher
	hooks       *hooks.Manager
	recorder    AttemptRecorder
	logger      *logging.Logger
	callTimeout time.Duration
	delayUnit   time.Duration
	now         func() time.Time
	loops       *sync.WaitGroup
}

// Agent is one outbound campaign: a lead queue worked through sequentially by
// a single processing loop, controlled by start, pause, resume and stop.
type Agent struct {
	id        string
	name      string
	scriptID  string
	cfg       domain.AgentConfig
	createdAt time.Time

	deps
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	status        domain.AgentStatus
	queue         *leadQueue
	currentName   string
	stats         domain.Stats
	lastErr       error
	stopRequested bool
	inFlight      bool
	looping       bool
	updatedAt     time.Time

	wake chan struct{}
	done chan struct{}
}

func newAgent(parent context.Context, id, name, scriptID string, leadIDs []string, cfg domain.AgentConfig, d deps) *Agent {
	ctx, cancel := context.WithCancel(parent)
	now := d.now()
	a := &Agent{
		id:        id,
		name:      name,
		scriptID:  scriptID,
		cfg:       cfg,
		createdAt: now,
		deps:      d,
		log:       d.logger.Sub("campaign").With("agentId", id),
		ctx:       ctx,
		cancel:    cancel,
		status:    domain.StatusIdle,
		queue:     newLeadQueue(leadIDs),
		updatedAt: now,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	return a
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// View returns a copy of the agent's full public state.
func (a *Agent) View() domain.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

// Snapshot returns the live-channel view of the agent.
func (a *Agent) Snapshot() domain.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked().Snapshot()
}

// Status returns the current lifecycle state.
func (a *Agent) Status() domain.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Done is closed once the agent reaches a terminal state.
func (a *Agent) Done() <-chan struct{} { return a.done }

// Wait blocks until the agent is terminal or ctx is done. It returns the
// fatal error that failed the agent, if any.
func (a *Agent) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.lastErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins processing. Legal only from idle.
func (a *Agent) Start() (domain.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != domain.StatusIdle {
		return a.rejectLocked("start")
	}
	a.status = domain.StatusRunning
	a.touchLocked()
	a.log.Info().Int("leads", a.queue.total()).Msg("agent started")
	a.emit(hooks.EventAgentStarted, nil)
	a.launchLocked()
	return a.publishLocked(), nil
}

// Pause halts the loop once any in-flight call settles. Legal only from running.
func (a *Agent) Pause() (domain.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != domain.StatusRunning || a.stopRequested {
		return a.rejectLocked("pause")
	}
	a.status = domain.StatusPaused
	a.touchLocked()
	a.signalLocked()
	a.log.Info().Bool("inFlight", a.inFlight).Msg("agent paused")
	a.emit(hooks.EventAgentPaused, nil)
	return a.publishLocked(), nil
}

// Resume re-enters the loop at the next queue head. Legal only from paused.
func (a *Agent) Resume() (domain.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != domain.StatusPaused || a.stopRequested {
		return a.rejectLocked("resume")
	}
	a.status = domain.StatusRunning
	a.touchLocked()
	a.log.Info().Msg("agent resumed")
	a.emit(hooks.EventAgentResumed, nil)
	a.launchLocked()
	return a.publishLocked(), nil
}

// Stop completes the agent early, keeping the remaining queue. With a call
// in flight the transition happens when that call settles.
func (a *Agent) Stop() (domain.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.status.Active() {
		return a.rejectLocked("stop")
	}
	if a.stopRequested {
		return a.viewLocked().Snapshot(), nil
	}
	if a.inFlight {
		a.stopRequested = true
		a.touchLocked()
		a.signalLocked()
		a.log.Info().Str("lead", a.queue.current).Msg("stop requested, waiting for call to settle")
		return a.publishLocked(), nil
	}
	a.finishLocked(domain.StatusCompleted, nil)
	a.signalLocked()
	return a.publishLocked(), nil
}

func (a *Agent) rejectLocked(op string) (domain.Snapshot, error) {
	return a.viewLocked().Snapshot(), &TransitionError{Op: op, From: a.status, StopRequested: a.stopRequested}
}

// launchLocked starts the processing loop unless one is already running.
func (a *Agent) launchLocked() {
	if a.looping {
		return
	}
	a.looping = true
	a.loops.Add(1)
	go func() {
		defer a.loops.Done()
		a.run()
	}()
}

func (a *Agent) run() {
	for {
		leadID, ok := a.next()
		if !ok {
			return
		}
		a.resolveName(leadID)

		cfg := a.config()
		callCtx, cancel := a.callContext()
		res, err := a.runner.Attempt(callCtx, leadID, a.scriptID, cfg)
		cancel()

		if !a.settle(leadID, res, err) {
			return
		}
		a.pause(cfg)
	}
}

// next pops the queue head, or ends the loop when it should not continue.
func (a *Agent) next() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != domain.StatusRunning || a.stopRequested {
		a.looping = false
		return "", false
	}
	leadID, ok := a.queue.pop()
	if !ok {
		a.finishLocked(domain.StatusCompleted, nil)
		a.looping = false
		a.publishLocked()
		return "", false
	}
	a.inFlight = true
	a.drainLocked()
	a.touchLocked()
	a.publishLocked()
	return leadID, true
}

// settle applies the result of one attempt and reports whether the loop
// should keep going.
func (a *Agent) settle(leadID string, res dialer.Result, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inFlight = false
	a.currentName = ""

	if err != nil {
		fatal := dialer.AsFatal(err)
		a.queue.requeue()
		a.log.Error().Err(fatal).Str("lead", leadID).Str("kind", string(fatal.Kind)).Msg("fatal call error")
		a.finishLocked(domain.StatusFailed, fatal)
		a.looping = false
		a.publishLocked()
		return false
	}

	outcome := res.Outcome
	if !outcome.Valid() {
		a.log.Warn().Str("lead", leadID).Msg("runner returned no outcome, recording failed")
		outcome = domain.OutcomeFailed
	}
	a.queue.settle()
	a.stats.Record(outcome)
	a.touchLocked()
	a.log.Info().Str("lead", leadID).Str("outcome", outcome.String()).Msg("call settled")

	attempt := domain.CallAttempt{
		ID:              uuid.NewString(),
		AgentID:         a.id,
		LeadID:          leadID,
		ScriptID:        a.scriptID,
		StartedAt:       res.StartedAt,
		Outcome:         outcome,
		DurationSeconds: res.DurationSeconds,
		Transcript:      res.Transcript,
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = a.updatedAt
	}
	a.emit(hooks.EventCallCompleted, map[string]any{
		"leadId":          leadID,
		"outcome":         outcome.String(),
		"durationSeconds": res.DurationSeconds,
	})
	if a.recorder != nil {
		go a.record(attempt)
	}

	keepGoing := true
	switch {
	case a.stopRequested:
		a.finishLocked(domain.StatusCompleted, nil)
		keepGoing = false
	case a.status == domain.StatusPaused:
		keepGoing = false
	case a.queue.empty():
		a.finishLocked(domain.StatusCompleted, nil)
		keepGoing = false
	}
	if keepGoing {
		// a pause and resume during the call leaves a token that would cut
		// the coming delay short
		a.drainLocked()
	} else {
		a.looping = false
	}
	a.publishLocked()
	return keepGoing
}

// pause waits out the inter-call delay unless a control command arrives.
func (a *Agent) pause(cfg domain.AgentConfig) {
	delay := time.Duration(cfg.DelayBetweenCalls) * a.delayUnit
	if delay <= 0 {
		return
	}

	a.mu.Lock()
	proceed := a.status == domain.StatusRunning && !a.stopRequested
	a.mu.Unlock()
	if !proceed {
		return
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-a.wake:
	case <-a.ctx.Done():
	}
}

func (a *Agent) callContext() (context.Context, context.CancelFunc) {
	if a.callTimeout > 0 {
		return context.WithTimeout(a.ctx, a.callTimeout)
	}
	return context.WithCancel(a.ctx)
}

func (a *Agent) config() domain.AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// resolveName looks up the display name of the in-flight lead.
func (a *Agent) resolveName(leadID string) {
	if a.leads == nil {
		return
	}
	lead, err := a.leads.Lead(a.ctx, leadID)
	if err != nil {
		if !errors.Is(err, domain.ErrLeadNotFound) {
			a.log.Debug().Err(err).Str("lead", leadID).Msg("lead lookup failed")
		}
		return
	}
	a.mu.Lock()
	if a.queue.current == leadID {
		a.currentName = lead.Name
	}
	a.mu.Unlock()
}

func (a *Agent) record(attempt domain.CallAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.recorder.RecordAttempt(ctx, attempt); err != nil {
		a.log.Warn().Err(err).Str("lead", attempt.LeadID).Msg("failed to record call attempt")
	}
}

// finishLocked moves the agent into a terminal state.
func (a *Agent) finishLocked(status domain.AgentStatus, err error) {
	if a.status.Terminal() {
		return
	}
	a.status = status
	a.lastErr = err
	a.touchLocked()
	close(a.done)

	data := map[string]any{
		"completedLeads": len(a.queue.completed),
		"remainingLeads": len(a.queue.pending),
		"stats":          a.stats,
	}
	if status == domain.StatusFailed {
		data["error"] = err.Error()
		a.emit(hooks.EventAgentFailed, data)
		return
	}
	a.log.Info().
		Int("totalCalls", a.stats.TotalCalls).
		Int("booked", a.stats.Booked).
		Int("remaining", len(a.queue.pending)).
		Msg("agent completed")
	a.emit(hooks.EventAgentCompleted, data)
}

func (a *Agent) signalLocked() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// drainLocked discards wake signals already observed by the caller.
func (a *Agent) drainLocked() {
	select {
	case <-a.wake:
	default:
	}
}

func (a *Agent) touchLocked() {
	a.updatedAt = a.now()
}

func (a *Agent) publishLocked() domain.Snapshot {
	snap := a.viewLocked().Snapshot()
	if a.publisher != nil {
		a.publisher.Publish(snap)
	}
	return snap
}

func (a *Agent) emit(event string, data map[string]any) {
	if a.hooks == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["agentId"] = a.id
	data["agentName"] = a.name
	a.hooks.EmitAsync(context.Background(), event, data)
}

func (a *Agent) viewLocked() domain.Agent {
	v := domain.Agent{
		ID:              a.id,
		Name:            a.name,
		ScriptID:        a.scriptID,
		Status:          a.status,
		LeadQueue:       a.queue.pendingCopy(),
		CompletedLeads:  a.queue.completedCopy(),
		CurrentLeadID:   a.queue.current,
		CurrentLeadName: a.currentName,
		Stats:           a.stats,
		Config:          a.cfg,
		StopRequested:   a.stopRequested,
		CreatedAt:       a.createdAt,
		UpdatedAt:       a.updatedAt,
	}
	if a.lastErr != nil {
		v.LastError = a.lastErr.Error()
	}
	return v
}
