package progress

import (
	"log/slog"
	"sync"
	"time"
)

// per-subscriber buffer; a subscriber that falls this far behind is dropped
const subscriberBuffer = 64

// Hub fans out download events to connected subscribers. Delivery is
// best-effort: a send that would block drops the subscriber rather than
// backpressure publishers. Within one subscriber, delivery order matches
// publication order.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

// Subscriber is one connected progress consumer.
type Subscriber struct {
	hub  *Hub
	send chan Event

	mu     sync.Mutex
	filter string // non-empty: only events for this download id
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber and immediately queues the
// connection-established event, which bypasses any filter.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{hub: h, send: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()

	s.send <- Event{Type: TypeConnected, Timestamp: time.Now().UTC()}
	return s
}

// Unsubscribe drops the subscriber and closes its event channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s)
}

func (h *Hub) dropLocked(s *Subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}

// Publish delivers the event to every matching subscriber.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subscribers {
		if !s.wants(event) {
			continue
		}
		select {
		case s.send <- event:
		default:
			slog.Warn("progress subscriber too slow, dropping")
			h.dropLocked(s)
		}
	}
}

// SubscriberCount reports connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Events is the subscriber's receive channel; it is closed when the
// subscriber is dropped.
func (s *Subscriber) Events() <-chan Event {
	return s.send
}

// SetFilter limits delivery to events of one download id. The connection
// event and events without a download id still pass.
func (s *Subscriber) SetFilter(downloadID string) {
	s.mu.Lock()
	s.filter = downloadID
	s.mu.Unlock()
}

// Reply queues a direct event (e.g. pong) to just this subscriber. The send
// goes through the hub lock so it cannot race a concurrent drop.
func (s *Subscriber) Reply(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subscribers[s]; !ok {
		return
	}
	select {
	case s.send <- event:
	default:
	}
}

func (s *Subscriber) wants(event Event) bool {
	if event.Type == TypeConnected {
		return true
	}
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()
	return filter == "" || event.DownloadID == "" || event.DownloadID == filter
}
