package notify

import (
	"context"
	"sync"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
)

// subscriberBuffer is the per-subscriber queue length. Events published to
// a full queue are dropped for that subscriber.
const subscriberBuffer = 100

// Hub delivers dirty events to in-process subscribers and forwards them to
// any attached publishers.
type Hub struct {
	subscribers map[*Subscription]bool
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool

	publishers []Publisher
	logger     logging.Logger
	metrics    *metrics.Registry
}

// Subscription represents one subscriber's event queue
type Subscription struct {
	channel   chan DirtyEvent
	hub       *Hub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewHub creates a hub. logger and m may be nil.
func NewHub(logger logging.Logger, m *metrics.Registry) *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]bool),
		shutdown:    make(chan struct{}),
		logger:      logging.OrDefault(logger).With(logging.Component("notify")),
		metrics:     m,
	}
}

// Attach forwards every subsequently published event to p. The hub owns p
// and closes it on Shutdown.
func (h *Hub) Attach(p Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishers = append(h.publishers, p)
}

// Subscribe registers a subscriber. The subscription ends when ctx is
// cancelled, on Unsubscribe, or when the hub shuts down.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	h.shutdownMu.Lock()
	if h.isShutdown {
		h.shutdownMu.Unlock()
		return nil, ErrHubClosed
	}
	h.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		channel: make(chan DirtyEvent, subscriberBuffer),
		hub:     h,
		cancel:  cancel,
	}

	h.mu.Lock()
	select {
	case <-h.shutdown:
		h.mu.Unlock()
		cancel()
		return nil, ErrHubClosed
	default:
	}
	h.subscribers[sub] = true
	h.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-h.shutdown:
			cancel()
		}
	}()

	return sub, nil
}

// Publish delivers ev to every subscriber without blocking and forwards it
// to the attached publishers.
func (h *Hub) Publish(ev DirtyEvent) {
	h.shutdownMu.Lock()
	if h.isShutdown {
		h.shutdownMu.Unlock()
		return
	}
	h.shutdownMu.Unlock()

	// Sends never block, and channels are only closed under the write
	// lock, so delivering while holding the read lock is safe.
	h.mu.RLock()
	for sub := range h.subscribers {
		select {
		case sub.channel <- ev:
			h.record("published")
		default:
			h.record("dropped")
		}
	}
	pubs := append([]Publisher(nil), h.publishers...)
	h.mu.RUnlock()

	for _, p := range pubs {
		if err := p.Publish(ev); err != nil {
			h.record("error")
			h.logger.Warn("forwarding dirty event failed",
				logging.Element(ev.Category, ev.Name),
				logging.Error(err))
		}
	}
}

func (h *Hub) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordNotification(result)
	}
}

// SubscriberCount returns the number of live subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown closes every subscription and attached publisher.
func (h *Hub) Shutdown() {
	h.shutdownMu.Lock()
	if h.isShutdown {
		h.shutdownMu.Unlock()
		return
	}
	h.isShutdown = true
	h.shutdownMu.Unlock()

	close(h.shutdown)

	h.mu.Lock()
	for sub := range h.subscribers {
		sub.close()
		delete(h.subscribers, sub)
	}
	pubs := h.publishers
	h.publishers = nil
	h.mu.Unlock()

	for _, p := range pubs {
		if err := p.Close(); err != nil {
			h.logger.Warn("closing publisher", logging.Error(err))
		}
	}
}

// Channel returns the subscription's event channel. It is closed when the
// subscription ends.
func (s *Subscription) Channel() <-chan DirtyEvent {
	return s.channel
}

// Unsubscribe removes the subscription
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subscribers, s)
	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
