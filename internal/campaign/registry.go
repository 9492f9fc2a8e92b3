// Package campaign runs outbound call campaigns: agents that work through a
// lead queue one call at a time, and the registry that owns them.
package campaign

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/logging"
)

// SpawnRequest describes a new agent.
type SpawnRequest struct {
	Name     string      `json:"name,omitempty"`
	ScriptID string      `json:"scriptId,omitempty"`
	LeadIDs  []string    `json:"leadIds"`
	Config   SpawnConfig `json:"config,omitempty"`
}

// SpawnConfig holds optional per-agent settings; nil fields take defaults.
type SpawnConfig struct {
	DelayBetweenCalls *int `json:"delayBetweenCalls,omitempty"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLeadDirectory resolves display names for in-flight leads.
func WithLeadDirectory(d domain.LeadDirectory) Option {
	return func(r *Registry) { r.deps.leads = d }
}

// WithPublisher sends every agent snapshot to p.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) { r.deps.publisher = p }
}

// WithHooks emits lifecycle events through m.
func WithHooks(m *hooks.Manager) Option {
	return func(r *Registry) { r.deps.hooks = m }
}

// WithRecorder persists every settled call attempt.
func WithRecorder(rec AttemptRecorder) Option {
	return func(r *Registry) { r.deps.recorder = rec }
}

// WithCallTimeout bounds a single call attempt. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Registry) { r.deps.callTimeout = d }
}

// WithDelayUnit sets the duration of one delayBetweenCalls step. Zero
// disables the inter-call wait.
func WithDelayUnit(d time.Duration) Option {
	return func(r *Registry) { r.deps.delayUnit = d }
}

// WithDefaultDelay sets the delay used when a spawn request gives none.
func WithDefaultDelay(seconds int) Option {
	return func(r *Registry) { r.defaultDelay = seconds }
}

// WithRetention sets how long terminal agents are kept before Sweep removes them.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// WithSweepInterval sets how often Run sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) { r.sweepInterval = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.deps.now = now }
}

type forgetter interface {
	Forget(agentID string)
}

// Registry owns every agent in the process, keyed by id.
type Registry struct {
	deps          deps
	defaultDelay  int
	retention     time.Duration
	sweepInterval time.Duration
	log           *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	agents map[string]*Agent
}

// NewRegistry creates a registry whose agents place calls through runner.
func NewRegistry(runner dialer.Runner, log *logging.Logger, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		deps: deps{
			runner:    runner,
			logger:    log,
			delayUnit: time.Second,
			now:       time.Now,
			loops:     &sync.WaitGroup{},
		},
		defaultDelay:  domain.DefaultDelaySeconds,
		retention:     time.Hour,
		sweepInterval: time.Minute,
		log:           log.Sub("campaign"),
		ctx:           ctx,
		cancel:        cancel,
		agents:        make(map[string]*Agent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Spawn creates an idle agent with a deduplicated lead queue.
func (r *Registry) Spawn(req SpawnRequest) (domain.Agent, error) {
	leads := dedupe(req.LeadIDs)
	if len(leads) == 0 {
		return domain.Agent{}, ErrNoLeads
	}

	delay := r.defaultDelay
	if req.Config.DelayBetweenCalls != nil {
		delay = *req.Config.DelayBetweenCalls
	}
	cfg := domain.AgentConfig{DelayBetweenCalls: delay}.Normalize()

	id := uuid.NewString()
	name := req.Name
	if name == "" {
		name = generateName(id)
	}

	a := newAgent(r.ctx, id, name, req.ScriptID, leads, cfg, r.deps)

	r.mu.Lock()
	r.agents[id] = a
	count := len(r.agents)
	r.mu.Unlock()

	r.log.Info().
		Str("agent", id).
		Str("name", name).
		Int("leads", len(leads)).
		Int("dropped", len(req.LeadIDs)-len(leads)).
		Int("agents", count).
		Msg("agent spawned")

	a.mu.Lock()
	view := a.viewLocked()
	a.publishLocked()
	a.emit(hooks.EventAgentSpawned, map[string]any{"leads": len(leads), "scriptId": req.ScriptID})
	a.mu.Unlock()
	return view, nil
}

// Agent returns the live handle for an agent.
func (r *Registry) Agent(id string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Get returns a copy of an agent's state.
func (r *Registry) Get(id string) (domain.Agent, error) {
	a, err := r.Agent(id)
	if err != nil {
		return domain.Agent{}, err
	}
	return a.View(), nil
}

// List returns every agent, oldest first.
func (r *Registry) List() []domain.Agent {
	r.mu.Lock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.Unlock()

	views := make([]domain.Agent, len(agents))
	for i, a := range agents {
		views[i] = a.View()
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Start starts an agent.
func (r *Registry) Start(id string) (domain.Snapshot, error) {
	return r.control(id, (*Agent).Start)
}

// Pause pauses an agent.
func (r *Registry) Pause(id string) (domain.Snapshot, error) {
	return r.control(id, (*Agent).Pause)
}

// Resume resumes an agent.
func (r *Registry) Resume(id string) (domain.Snapshot, error) {
	return r.control(id, (*Agent).Resume)
}

// Stop stops an agent.
func (r *Registry) Stop(id string) (domain.Snapshot, error) {
	return r.control(id, (*Agent).Stop)
}

func (r *Registry) control(id string, op func(*Agent) (domain.Snapshot, error)) (domain.Snapshot, error) {
	a, err := r.Agent(id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return op(a)
}

// Delete removes an agent that is not running or paused.
func (r *Registry) Delete(id string) (bool, error) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if st := a.Status(); st.Active() {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s is %s", ErrAgentActive, id, st)
	}
	delete(r.agents, id)
	r.mu.Unlock()

	r.release(a)
	r.log.Info().Str("agent", id).Msg("agent deleted")
	return true, nil
}

// Sweep removes terminal agents idle for longer than the retention window
// and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	var expired []*Agent
	for id, a := range r.agents {
		v := a.View()
		if v.Status.Terminal() && v.UpdatedAt.Before(cutoff) {
			expired = append(expired, a)
			delete(r.agents, id)
		}
	}
	r.mu.Unlock()

	for _, a := range expired {
		r.release(a)
	}
	if len(expired) > 0 {
		r.log.Info().Int("removed", len(expired)).Msg("swept finished agents")
	}
	return len(expired)
}

// Run sweeps on an interval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.sweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(r.deps.now())
		}
	}
}

// Close cancels every agent's context. In-flight calls observe the
// cancellation and their agents fail with a canceled error.
func (r *Registry) Close() {
	r.cancel()
}

// Shutdown closes the registry and waits for every processing loop to
// return, so the hooks fired by the final transitions have been emitted.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.Close()
	done := make(chan struct{})
	go func() {
		r.deps.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

func (r *Registry) release(a *Agent) {
	a.cancel()
	if f, ok := r.deps.publisher.(forgetter); ok {
		f.Forget(a.id)
	}
}
