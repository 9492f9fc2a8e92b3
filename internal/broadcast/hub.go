// Package broadcast fans agent snapshots out to live subscribers.
package broadcast

import (
	"sync"

	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/logging"
)

// DefaultBuffer is the per-subscriber channel capacity when none is given.
const DefaultBuffer = 16

// Subscription receives snapshots for one agent. C is closed when the
// subscription ends, whether by Close, by the hub dropping a slow reader, or
// by the topic being forgotten.
type Subscription struct {
	C     <-chan domain.Snapshot
	topic string
	ch    chan domain.Snapshot
	hub   *Hub
}

// Topic returns the agent id this subscription follows.
func (s *Subscription) Topic() string { return s.topic }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.hub.Unsubscribe(s) }

// Hub is a topic-keyed publish/subscribe channel where the topic is an agent
// id. Publishing never blocks: a subscriber whose buffer is full is dropped.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
	last   map[string]domain.Snapshot
	buffer int
	log    *logging.Logger
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int, log *logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		last:   make(map[string]domain.Snapshot),
		buffer: buffer,
		log:    log.Sub("broadcast"),
	}
}

// Subscribe registers interest in an agent. The most recent snapshot, if
// any, is delivered immediately.
func (h *Hub) Subscribe(agentID string) *Subscription {
	ch := make(chan domain.Snapshot, h.buffer)
	sub := &Subscription{C: ch, topic: agentID, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[agentID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[agentID] = subs
	}
	subs[sub] = struct{}{}
	if snap, ok := h.last[agentID]; ok {
		ch <- snap
	}

	h.log.Debug().
		Str("agent", agentID).
		Int("subscribers", len(subs)).
		Msg("subscriber added")
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Publish records snap as the latest for its agent and offers it to every
// subscriber without blocking.
func (h *Hub) Publish(snap domain.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last[snap.AgentID] = snap
	for sub := range h.topics[snap.AgentID] {
		select {
		case sub.ch <- snap:
		default:
			h.removeLocked(sub)
			h.log.Warn().
				Str("agent", snap.AgentID).
				Msg("subscriber buffer full, dropping subscriber")
		}
	}
}

// Last returns the most recent snapshot published for an agent.
func (h *Hub) Last(agentID string) (domain.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.last[agentID]
	return snap, ok
}

// Forget drops the retained snapshot for an agent and ends its subscriptions.
func (h *Hub) Forget(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.topics[agentID] {
		h.removeLocked(sub)
	}
	delete(h.last, agentID)
}

// SubscriberCount returns the number of live subscriptions for an agent.
func (h *Hub) SubscriberCount(agentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[agentID])
}

func (h *Hub) removeLocked(sub *Subscription) {
	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
}
