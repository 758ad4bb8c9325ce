// Package stream fans incident change notifications out to websocket
// subscribers so open SPA tabs can refresh their incident list without
// polling. Events carry the incident ID only, never incident bodies; the
// browser re-fetches through the guarded routes, keeping the session cookie
// the single authorization path.
package stream

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published after successful incident mutations.
const (
	EventIncidentCreated   = "incident.created"
	EventIncidentUpdated   = "incident.updated"
	EventIncidentDeleted   = "incident.deleted"
	EventIncidentEscalated = "incident.escalated"
)

// Event is one change notification delivered to subscribers.
type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(eventType string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// IncidentEvent builds a notification for one incident.
func IncidentEvent(eventType, incidentID string) Event {
	return NewEvent(eventType, map[string]string{"incident_id": incidentID})
}

// Hub is an in-process publish/subscribe fan-out. Publishing never blocks:
// a subscriber whose buffer is full misses the event, which is acceptable
// because the SPA treats every event as "refresh now" rather than state.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

// Subscribe registers a new subscriber and returns its event channel.
func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// twice for the same channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

// Publish delivers an event to every subscriber with buffer room.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
