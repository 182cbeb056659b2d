// Package notify fans registration changes out to the identities they
// concern, replacing per-event status polling.
//
// Delivery is best effort: a change is published after the store commits and
// a slow or absent subscriber never blocks or fails the mutating call.
// Clients that miss a change recover by querying status.
package notify

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// Publisher broadcasts a committed registration change.
type Publisher interface {
	Publish(ctx context.Context, c model.Change) error
}

// Subscriber streams the changes that concern one user. The returned channel
// is closed once ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan model.Change, error)
}

// Bus is both ends of a notification transport.
type Bus interface {
	Publisher
	Subscriber
}

// subscriberBuffer is the number of undelivered changes kept per subscriber
// before newer ones are dropped.
const subscriberBuffer = 16

// Option configures a Hub or Redis bus.
type Option func(*options)

type options struct {
	dropped prometheus.Counter
}

// WithDropCounter counts changes discarded because a subscriber was not
// reading.
func WithDropCounter(c prometheus.Counter) Option {
	return func(o *options) { o.dropped = c }
}

func buildOptions(opts []Option) options {
	o := options{
		dropped: prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered_dropped_changes"}),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// offer hands c to ch without blocking and reports whether it was taken.
func offer(ch chan<- model.Change, c model.Change, dropped prometheus.Counter) bool {
	select {
	case ch <- c:
		return true
	default:
		dropped.Inc()
		return false
	}
}

// Hub is the in-process Bus used when no Redis is configured.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[chan model.Change]struct{}
	dropped prometheus.Counter
}

// NewHub constructs an empty Hub.
func NewHub(opts ...Option) *Hub {
	o := buildOptions(opts)
	return &Hub{
		subs:    make(map[string]map[chan model.Change]struct{}),
		dropped: o.dropped,
	}
}

// Publish delivers c to every current subscriber for c.UserID.
func (h *Hub) Publish(_ context.Context, c model.Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(c)
	return nil
}

func (h *Hub) deliverLocked(c model.Change) {
	for ch := range h.subs[c.UserID] {
		offer(ch, c, h.dropped)
	}
}

// Subscribe registers a listener for userID until ctx is done.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan model.Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan model.Change, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan model.Change]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[userID], ch)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
		h.mu.Unlock()
	}()
	return ch, nil
}

func (h *Hub) subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

var _ Bus = (*Hub)(nil)
