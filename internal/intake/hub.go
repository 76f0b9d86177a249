package intake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/onegate/internal/observability"
	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 32

// Delivery is one RawLink as handed over by the platform.
type Delivery struct {
	ID         string
	URL        string
	Initial    bool
	ReceivedAt time.Time
}

// Source is the platform link-delivery mechanism.
type Source interface {
	// Subscribe opens a stream of live links. The stream ends when the
	// subscription is closed or the source shuts down.
	Subscribe(ctx context.Context) (*Subscription, error)
	// InitialLink returns the link pending from launch, at most once.
	InitialLink(ctx context.Context) (Delivery, bool)
}

// Subscription is a cancellable stream of live deliveries.
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   chan Delivery
	once sync.Once
}

func (s *Subscription) Links() <-chan Delivery {
	return s.ch
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}

// Hub is the in-process link dispatcher. Links dispatched while nobody is
// subscribed are parked as the pending launch link.
type Hub struct {
	mu      sync.Mutex
	buffer  int
	pending *Delivery
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
}

type HubOption func(*Hub)

// WithSubscriberBuffer sets how many live links may queue per subscriber.
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer: defaultSubscriberBuffer,
		subs:   make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Launch records the link the process was started with.
func (h *Hub) Launch(url string) (Delivery, error) {
	if strings.TrimSpace(url) == "" {
		return Delivery{}, ErrEmptyLink
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Delivery{}, ErrHubClosed
	}
	d := newDelivery(url, true)
	h.pending = &d
	observability.RecordDispatch("launch")
	return d, nil
}

// Dispatch delivers a live link to every subscriber. With no subscriber the
// link becomes the pending launch link instead.
func (h *Hub) Dispatch(url string) (Delivery, error) {
	if strings.TrimSpace(url) == "" {
		return Delivery{}, ErrEmptyLink
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Delivery{}, ErrHubClosed
	}
	if len(h.subs) == 0 {
		d := newDelivery(url, true)
		h.pending = &d
		observability.RecordDispatch("parked")
		return d, nil
	}

	d := newDelivery(url, false)
	var backlog bool
	for _, sub := range h.subs {
		select {
		case sub.ch <- d:
		default:
			backlog = true
		}
	}
	observability.RecordDispatch("live")
	if backlog {
		return d, ErrSubscriberBacklog
	}
	return d, nil
}

func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.nextID++
	sub := &Subscription{
		id:  h.nextID,
		hub: h,
		ch:  make(chan Delivery, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub, nil
}

func (h *Hub) InitialLink(ctx context.Context) (Delivery, bool) {
	if ctx.Err() != nil {
		return Delivery{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return Delivery{}, false
	}
	d := *h.pending
	h.pending = nil
	return d, true
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription; later dispatches fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.pending = nil
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}

func newDelivery(url string, initial bool) Delivery {
	return Delivery{
		ID:         uuid.NewString(),
		URL:        url,
		Initial:    initial,
		ReceivedAt: time.Now(),
	}
}
