// Package broadcast fans tally changes out to live viewers of a poll.
package broadcast

import (
	"encoding/json"
	"sync"

	"livepoll/internal/domain/poll"
)

// Subscriber is one live connection. Deliver must not block; it reports
// false when the message was dropped.
type Subscriber interface {
	ID() string
	Deliver(msg []byte) bool
	Close()
}

// Hub owns the poll -> subscribers registry. Empty sets are removed as
// soon as their last subscriber leaves.
type Hub struct {
	mu      sync.RWMutex
	polls   map[string]map[string]Subscriber
	members map[string]map[string]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		polls:   make(map[string]map[string]Subscriber),
		members: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds s to pollID's set. It reports false once the hub is closed.
func (h *Hub) Subscribe(pollID string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	subs, ok := h.polls[pollID]
	if !ok {
		subs = make(map[string]Subscriber)
		h.polls[pollID] = subs
	}
	subs[s.ID()] = s

	joined, ok := h.members[s.ID()]
	if !ok {
		joined = make(map[string]struct{})
		h.members[s.ID()] = joined
	}
	joined[pollID] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(pollID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(pollID, s.ID())
}

// Remove drops s from every poll it joined.
func (h *Hub) Remove(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for pollID := range h.members[s.ID()] {
		h.unsubscribeLocked(pollID, s.ID())
	}
}

func (h *Hub) unsubscribeLocked(pollID, subID string) {
	if subs, ok := h.polls[pollID]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.polls, pollID)
		}
	}
	if joined, ok := h.members[subID]; ok {
		delete(joined, pollID)
		if len(joined) == 0 {
			delete(h.members, subID)
		}
	}
}

// Broadcast hands msg to every subscriber of pollID. Delivery happens
// outside the lock so a slow subscriber cannot stall the registry.
func (h *Hub) Broadcast(pollID string, msg []byte) (delivered, dropped int) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.polls[pollID]))
	for _, s := range h.polls[pollID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if s.Deliver(msg) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (h *Hub) Subscribers(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.polls[pollID])
}

// Polls returns how many polls have at least one subscriber.
func (h *Hub) Polls() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.polls)
}

// Connections returns how many distinct subscribers joined any poll.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	seen := make(map[string]Subscriber)
	for _, subs := range h.polls {
		for id, s := range subs {
			seen[id] = s
		}
	}
	h.polls = make(map[string]map[string]Subscriber)
	h.members = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, s := range seen {
		s.Close()
	}
}

const (
	TypeJoinPoll       = "joinPoll"
	TypeLeavePoll      = "leavePoll"
	TypeVoteSubmitted  = "voteSubmitted"
	TypeResultsUpdated = "resultsUpdated"
	TypeError          = "error"
)

// Message is the envelope for both directions of the websocket.
type Message struct {
	Type    string      `json:"type"`
	PollID  string      `json:"pollId,omitempty"`
	Tally   *poll.Tally `json:"tally,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ResultsUpdated encodes the notification sent after a tally change.
func ResultsUpdated(t poll.Tally) ([]byte, error) {
	return json.Marshal(Message{Type: TypeResultsUpdated, PollID: t.PollID, Tally: &t})
}
