package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HubMetrics receives hub counters. A nil HubMetrics is allowed.
type HubMetrics interface {
	EventDropped()
	SubscribersChanged(delta int)
}

// Hub is the in-process registry of realtime subscribers, keyed by tenant.
type Hub struct {
	buffer  int
	metrics HubMetrics

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// Subscription receives the events of one tenant on C until it is closed.
type Subscription struct {
	C <-chan Event

	ch       chan Event
	tenantID uuid.UUID
	hub      *Hub
	once     sync.Once
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, metrics HubMetrics) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		buffer:  buffer,
		metrics: metrics,
		subs:    make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for tenantID's events.
func (h *Hub) Subscribe(tenantID uuid.UUID) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, tenantID: tenantID, hub: h}

	h.mu.Lock()
	set, ok := h.subs[tenantID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[tenantID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SubscribersChanged(1)
	}
	return sub
}

// Close unregisters the subscription and closes C. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.tenantID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.tenantID)
			}
		}
		close(s.ch)
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.SubscribersChanged(-1)
		}
	})
}

// Subscribers returns the number of live subscriptions of tenantID.
func (h *Hub) Subscribers(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Publish hands e to every subscriber of its tenant without waiting. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[e.TenantID] {
		select {
		case sub.ch <- e:
		default:
			if h.metrics != nil {
				h.metrics.EventDropped()
			}
			log.Debug().
				Str("tenant_id", e.TenantID.String()).
				Str("type", string(e.Type)).
				Msg("Subscriber buffer full, event dropped")
		}
	}
	return nil
}
