package web

import (
	"sync"
	"time"
)

// Event is the envelope sent over the document watch stream.
type Event struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"id"`
	ModifiedAt time.Time `json:"modifiedAt,omitempty"`
}

// Hub fans document events out to watch subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a listener for all document events. The returned
// cancel func must be called when the listener goes away.
func (h *Hub) Subscribe() (chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Broadcast delivers an event to every subscriber. Slow subscribers drop
// events rather than blocking the writer.
func (h *Hub) Broadcast(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	h.mu.RUnlock()
}
