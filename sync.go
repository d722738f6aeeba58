package main

import (
	"sync"
	"time"
)

// pendingSlot is a sync-request slot: a mapping from MessageId to
// (issue-time, response-or-empty) (spec.md §3).
type pendingSlot struct {
	issuedAt time.Time
	ready    chan Message
	delivered bool
}

// SyncCorrelator lets a single logical caller send a request and block up to
// a configured deadline for the matching response (spec.md §4.3). The broker
// keeps a single server-wide instance on the Processor, used for
// server-initiated sync requests (Processor.RequestSync).
type SyncCorrelator struct {
	mu      sync.Mutex
	pending map[string]*pendingSlot
}

// NewSyncCorrelator returns an empty correlator.
func NewSyncCorrelator() *SyncCorrelator {
	return &SyncCorrelator{pending: make(map[string]*pendingSlot)}
}

// Register records an outstanding request with the current time. Fails if
// the id is already registered.
func (s *SyncCorrelator) Register(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[messageID]; exists {
		return false
	}
	s.pending[messageID] = &pendingSlot{
		issuedAt: time.Now(),
		ready:    make(chan Message, 1),
	}
	return true
}

// Deliver stores msg under its MessageId. Returns false if no request was
// registered for that id — the caller should then route msg as async
// (spec.md §4.3: "not an error", the unsolicited-sync-response path).
func (s *SyncCorrelator) Deliver(msg Message) bool {
	s.mu.Lock()
	slot, ok := s.pending[msg.MessageID]
	if !ok || slot.delivered {
		s.mu.Unlock()
		return false
	}
	slot.delivered = true
	s.mu.Unlock()

	slot.ready <- msg
	return true
}

// Await blocks until Deliver fires for messageID or deadline elapses.
// Returns ok=false on timeout. The slot is removed either way.
func (s *SyncCorrelator) Await(messageID string, deadline time.Duration) (Message, bool) {
	s.mu.Lock()
	slot, ok := s.pending[messageID]
	s.mu.Unlock()
	if !ok {
		return Message{}, false
	}

	defer func() {
		s.mu.Lock()
		delete(s.pending, messageID)
		s.mu.Unlock()
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case msg := <-slot.ready:
		return msg, true
	case <-timer.C:
		return Message{}, false
	}
}

// Sweep removes any registration whose issue-time+timeout is in the past,
// along with any response that was delivered but never consumed. Intended
// to be called periodically (spec.md §4.3).
func (s *SyncCorrelator) Sweep(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, slot := range s.pending {
		if slot.issuedAt.Before(cutoff) {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of currently outstanding registrations, used by
// tests and metrics.
func (s *SyncCorrelator) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
