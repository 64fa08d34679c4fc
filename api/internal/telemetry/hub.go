package telemetry

import (
	"sync"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

const subscriberBuffer = 100

// Hub fans proxy pipeline events out to live dashboard streams.
// It implements domain.EventPublisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan domain.ProxyEvent // topic -> list of client channels
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan domain.ProxyEvent),
	}
}

// Subscribe adds a new UI client to a topic
func (h *Hub) Subscribe(topic string) chan domain.ProxyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.ProxyEvent, subscriberBuffer) // Buffer so a slow client never blocks the pipeline
	h.subscribers[topic] = append(h.subscribers[topic], ch)
	return ch
}

// Unsubscribe removes a client channel and closes it
func (h *Hub) Unsubscribe(topic string, ch chan domain.ProxyEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish sends an event to all listeners of a topic
func (h *Hub) Publish(topic string, event domain.ProxyEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default: // Drop the event if the buffer is full
		}
	}
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
