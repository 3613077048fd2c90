// Package eventbus fans habitDataChanged events out to the user's open
// clients, across server instances when Redis or NATS is configured.
package eventbus

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

const TypeHabitDataChanged = "habitDataChanged"

// Event tells a client that its habit data changed and should be refetched.
type Event struct {
	Type   string         `json:"type"`
	UserID string         `json:"user_id"`
	TurnID string         `json:"turn_id,omitempty"`
	Action string         `json:"action"`
	Habit  map[string]any `json:"habit,omitempty"`
	At     time.Time      `json:"at"`
}

// Bus publishes events and delivers them to the subscribers of their user.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns the user's event stream and a cancel func that
	// closes it.
	Subscribe(userID string) (<-chan Event, func())
	Close() error
}

const subscriberBuffer = 16

// Hub is the in-process Bus. Slow subscribers lose events rather than
// block publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{}), logger: logger}
}

func (h *Hub) Publish(ctx context.Context, ev Event) error {
	h.deliver(ev)
	return nil
}

func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[userID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
		})
	}
}

// Subscribers returns the number of open subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for user, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, user)
	}
	return nil
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			h.logger.Printf("eventbus: dropped %s for user %s, subscriber full", ev.Type, ev.UserID)
		}
	}
}

// deliverPayload decodes an event received from a broker and fans it out.
func (h *Hub) deliverPayload(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Printf("eventbus: bad payload: %v", err)
		return
	}
	h.deliver(ev)
}
