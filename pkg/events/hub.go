package events

import (
	"sync"
)

// subscriber buffer size. Slow clients drop events rather than block the
// emitting goroutine.
const subscriberBuffer = 16

type subscriber struct {
	userID  int
	isAdmin bool
	ch      chan Event
}

// Hub is the in-process Broadcaster implementation backing the websocket endpoint.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a client connection. The returned cancel func must be
// called when the connection goes away.
func (h *Hub) Subscribe(userID int, isAdmin bool) (<-chan Event, func()) {
	sub := &subscriber{
		userID:  userID,
		isAdmin: isAdmin,
		ch:      make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

func (h *Hub) EmitToUser(userID int, name string, payload interface{}) {
	h.emit(Event{Name: name, Payload: payload}, func(sub *subscriber) bool {
		return sub.userID == userID
	})
}

func (h *Hub) EmitToAdmins(name string, payload interface{}) {
	h.emit(Event{Name: name, Payload: payload}, func(sub *subscriber) bool {
		return sub.isAdmin
	})
}

func (h *Hub) emit(event Event, match func(*subscriber) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if !match(sub) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Buffer full; the client is too slow to keep up.
		}
	}
}
