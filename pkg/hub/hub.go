package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-petpal/internal/log"
)

// DefaultBuffer is the per-client queue length.
const DefaultBuffer = 64

// Hub broadcasts pre-encoded messages to every subscriber. A subscriber
// whose queue is full misses the message; publishers never block.
type Hub struct {
	name   string
	buffer int
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]chan []byte

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Stats counts hub traffic.
type Stats struct {
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// New creates a hub. name tags its log lines.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.Component("hub")
	}
	return &Hub{
		name:   name,
		buffer: DefaultBuffer,
		logger: logger.With("hub", name),
		subs:   make(map[string]chan []byte),
	}
}

// Subscribe registers a client. The returned channel is closed by
// unsubscribe, which is safe to call more than once.
func (h *Hub) Subscribe() (string, <-chan []byte, func()) {
	id := uuid.NewString()
	ch := make(chan []byte, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	count := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("client connected", "client", id, "clients", count)

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			count := len(h.subs)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "client", id, "clients", count)
		})
	}
}

// Publish queues data for every client.
func (h *Hub) Publish(data []byte) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- data:
		default:
			h.dropped.Add(1)
			h.logger.Debug("slow client, message dropped", "client", id)
		}
	}
}

// PublishEvent encodes and publishes one event.
func (h *Hub) PublishEvent(eventType string, v any) error {
	data, err := Encode(eventType, v)
	if err != nil {
		return err
	}
	h.Publish(data)
	return nil
}

// ClientCount returns the number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns traffic counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   h.ClientCount(),
		Published: h.published.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
