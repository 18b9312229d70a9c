package eventbus

import (
	"sync"

	"github.com/cskr/pubsub/v2"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the per-observer buffer used when none is configured.
const DefaultCapacity = 64

// Hub multicasts events to external observers. Delivery never blocks the
// publisher: an observer whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	ps     *pubsub.PubSub[string, any]
	closed bool
	done   chan struct{}
	logger *logrus.Logger
}

func NewHub(capacity int, logger *logrus.Logger) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		ps:     pubsub.New[string, any](capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish relays msg to the observers of topic.
func (h *Hub) Publish(topic string, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.ps.TryPub(msg, topic)
}

// Subscribe attaches a new observer to topics. Events published before the
// call are not replayed. The returned channel is closed by the unsubscribe
// func or by Shutdown. On a shut down hub the channel is already closed.
func (h *Hub) Subscribe(topics ...string) (<-chan any, func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		ch := make(chan any)
		close(ch)
		return ch, func() {}
	}

	ch := h.ps.Sub(topics...)
	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(ch, topics) })
	}
}

func (h *Hub) unsubscribe(ch chan any, topics []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.ps.Unsub(ch, topics...)
}

// Shutdown closes every observer channel. Later publishes are ignored.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	h.ps.Shutdown()
	h.logger.Debug("Event hub shut down")
}

// Done is closed by Shutdown.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
