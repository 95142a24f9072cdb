package hub

import (
	"sync"

	"github.com/Moonlightintherain/q/pkg/logger"
)

// Event is one message on a game stream.
type Event map[string]interface{}

const subscriberBuffer = 64

// Subscriber is one open stream consumer. Events arrive on C in emission
// order; the channel is closed when the subscriber is dropped.
type Subscriber struct {
	C      chan Event
	closed bool
}

// Hub fans engine events out to every open subscriber. A subscriber that
// stops draining (dead peer, full buffer) is pruned instead of ever blocking
// publication to the others.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func New() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new consumer. The snapshot is queued before the
// subscriber joins the broadcast set, so the first event on C is always the
// full current state and everything after it is the live stream.
func (h *Hub) Subscribe(snapshot Event) *Subscriber {
	s := &Subscriber{C: make(chan Event, subscriberBuffer)}
	s.C <- snapshot

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// Unsubscribe removes the consumer and closes its channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(s)
}

// Publish delivers ev to every subscriber. Engines publish from a single
// goroutine, so delivery order matches emission order for everyone.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.C <- ev:
		default:
			logger.Warn("Dropping slow stream subscriber")
			h.drop(s)
		}
	}
}

func (h *Hub) drop(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	if !s.closed {
		s.closed = true
		close(s.C)
	}
}

// SubscriberCount is used by tests.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
