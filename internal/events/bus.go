// Package events is a small in-process pub/sub bus. The orchestrator
// and the session machine publish what happened; notification and UI
// layers subscribe and react. Publish never blocks a state transition:
// slow subscribers lose events rather than stall the publisher.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	SessionAssigned  EventType = "session_assigned"
	SessionCompleted EventType = "session_completed"
	SessionCancelled EventType = "session_cancelled"
	RestCountdown    EventType = "rest_countdown"
	RestEnded        EventType = "rest_ended"
)

// Event is published on the bus.
type Event struct {
	Type      EventType      `json:"type"`
	TraineeID uuid.UUID      `json:"traineeId"`
	SessionID uuid.UUID      `json:"sessionId"`
	At        time.Time      `json:"at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Bus fans events out to subscribers over buffered channels.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
	log  *slog.Logger
}

// NewBus creates a Bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a new subscriber and returns its channel. The
// buffer absorbs bursts; a full channel drops events for that
// subscriber only.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers e to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.Warn("event dropped, subscriber backed up", "type", e.Type, "session", e.SessionID)
		}
	}
}

// Close closes all subscriber channels. Publish must not be called
// after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
