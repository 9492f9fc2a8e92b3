package domain

import "time"

// AgentStatus is the lifecycle state of a campaign agent.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusRunning   AgentStatus = "running"
	StatusPaused    AgentStatus = "paused"
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s AgentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether the agent owns a live processing loop (or may resume one).
func (s AgentStatus) Active() bool {
	return s == StatusRunning || s == StatusPaused
}

// Delay bounds for AgentConfig.DelayBetweenCalls, in seconds.
const (
	DefaultDelaySeconds = 5
	MinDelaySeconds     = 1
	MaxDelaySeconds     = 60
)

// AgentConfig holds per-agent tunables.
type AgentConfig struct {
	DelayBetweenCalls int `json:"delayBetweenCalls"` // seconds
}

// Normalize clamps the delay into [MinDelaySeconds, MaxDelaySeconds].
func (c AgentConfig) Normalize() AgentConfig {
	switch {
	case c.DelayBetweenCalls < MinDelaySeconds:
		c.DelayBetweenCalls = MinDelaySeconds
	case c.DelayBetweenCalls > MaxDelaySeconds:
		c.DelayBetweenCalls = MaxDelaySeconds
	}
	return c
}

// Stats aggregates per-outcome counters for an agent.
type Stats struct {
	TotalCalls    int `json:"totalCalls"`
	Booked        int `json:"booked"`
	Skipped       int `json:"skipped"`
	FollowUp      int `json:"followUp"`
	NotInterested int `json:"notInterested"`
	NoAnswer      int `json:"noAnswer"`
	Voicemail     int `json:"voicemail"`
	Failed        int `json:"failed"`
}

// Record counts one settled call attempt.
func (s *Stats) Record(o Outcome) {
	s.TotalCalls++
	switch o {
	case OutcomeBooked:
		s.Booked++
	case OutcomeFollowUp:
		s.FollowUp++
	case OutcomeNotInterested:
		s.NotInterested++
	case OutcomeNoAnswer:
		s.NoAnswer++
	case OutcomeVoicemail:
		s.Voicemail++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

// Count returns the counter for o.
func (s Stats) Count(o Outcome) int {
	switch o {
	case OutcomeBooked:
		return s.Booked
	case OutcomeFollowUp:
		return s.FollowUp
	case OutcomeNotInterested:
		return s.NotInterested
	case OutcomeNoAnswer:
		return s.NoAnswer
	case OutcomeVoicemail:
		return s.Voicemail
	case OutcomeSkipped:
		return s.Skipped
	case OutcomeFailed:
		return s.Failed
	}
	return 0
}

// Agent is a point-in-time copy of a campaign agent's full public state.
// The slices are owned by the copy.
type Agent struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	ScriptID        string      `json:"scriptId,omitempty"`
	Status          AgentStatus `json:"status"`
	LeadQueue       []string    `json:"leadQueue"`
	CompletedLeads  []string    `json:"completedLeads"`
	CurrentLeadID   string      `json:"currentLeadId,omitempty"`
	CurrentLeadName string      `json:"currentLeadName,omitempty"`
	Stats           Stats       `json:"stats"`
	Config          AgentConfig `json:"config"`
	LastError       string      `json:"lastError,omitempty"`
	StopRequested   bool        `json:"stopRequested,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Snapshot is the immutable event pushed to live subscribers.
type Snapshot struct {
	AgentID         string      `json:"agentId"`
	Status          AgentStatus `json:"status"`
	Stats           Stats       `json:"stats"`
	LeadQueueLength int         `json:"leadQueueLength"`
	CurrentLeadID   string      `json:"currentLeadId,omitempty"`
	Error           string      `json:"error,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Snapshot derives the live-channel view of the agent.
func (a Agent) Snapshot() Snapshot {
	return Snapshot{
		AgentID:         a.ID,
		Status:          a.Status,
		Stats:           a.Stats,
		LeadQueueLength: len(a.LeadQueue),
		CurrentLeadID:   a.CurrentLeadID,
		Error:           a.LastError,
		Timestamp:       a.UpdatedAt,
	}
}
