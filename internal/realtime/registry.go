package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/metrics"
)

const defaultListenerBuffer = 16

// Listener receives classified events over a buffered channel. Events is
// closed on unsubscribe; a full buffer drops rather than blocks.
type Listener struct {
	ID     uuid.UUID
	userID *uuid.UUID
	events chan Event
	closed bool
}

// Events exposes the listener's receive channel.
func (l *Listener) Events() <-chan Event {
	return l.events
}

// Registry fans classified events out to subscribed listeners. Global
// listeners see everything, broadcasts included; per-user listeners see only
// their own user's events.
type Registry struct {
	mu      sync.RWMutex
	global  map[uuid.UUID]*Listener
	perUser map[uuid.UUID]map[uuid.UUID]*Listener
	buffer  int
	metrics *metrics.RankingMetrics
}

// NewRegistry builds an empty listener registry.
func NewRegistry(buffer int, m *metrics.RankingMetrics) *Registry {
	if buffer <= 0 {
		buffer = defaultListenerBuffer
	}
	return &Registry{
		global:  map[uuid.UUID]*Listener{},
		perUser: map[uuid.UUID]map[uuid.UUID]*Listener{},
		buffer:  buffer,
		metrics: m,
	}
}

// Subscribe registers a listener. A nil userID subscribes to the global set.
func (r *Registry) Subscribe(userID *uuid.UUID) *Listener {
	listener := &Listener{
		ID:     uuid.New(),
		userID: userID,
		events: make(chan Event, r.buffer),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID == nil {
		r.global[listener.ID] = listener
		return listener
	}
	set, ok := r.perUser[*userID]
	if !ok {
		set = map[uuid.UUID]*Listener{}
		r.perUser[*userID] = set
	}
	set[listener.ID] = listener
	return listener
}

// Unsubscribe removes one listener and closes its channel. Other listeners
// are unaffected.
func (r *Registry) Unsubscribe(listener *Listener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if listener.closed {
		return
	}
	listener.closed = true
	if listener.userID == nil {
		delete(r.global, listener.ID)
	} else if set, ok := r.perUser[*listener.userID]; ok {
		delete(set, listener.ID)
		if len(set) == 0 {
			delete(r.perUser, *listener.userID)
		}
	}
	close(listener.events)
}

// Dispatch delivers the event without blocking. A listener whose buffer is
// full misses the event; the receive loop never waits on a slow consumer.
func (r *Registry) Dispatch(event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dispatched := false
	deliver := func(l *Listener) {
		select {
		case l.events <- event:
			dispatched = true
		default:
			r.metrics.IncDropped(string(event.Type))
		}
	}

	for _, l := range r.global {
		deliver(l)
	}
	// Broadcasts (nil UserID) stop at the global set.
	if event.UserID != nil {
		if set, ok := r.perUser[*event.UserID]; ok {
			for _, l := range set {
				deliver(l)
			}
		}
	}

	if dispatched {
		r.metrics.IncDispatched(string(event.Type))
	}
}

// ListenerCount reports registered listeners, for readiness reporting.
func (r *Registry) ListenerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := len(r.global)
	for _, set := range r.perUser {
		count += len(set)
	}
	return count
}
