package broadcast

import (
	"context"
	"sync"

	"seatlock/internal/leases"
	"seatlock/pkg/logger"
)

const DefaultBuffer = 64

// Subscription receives a show's events in publish order. The channel is
// closed on Unsubscribe, or when the subscriber fell behind and was dropped.
type Subscription struct {
	showID  string
	ch      chan leases.Event
	dropped bool
}

func (s *Subscription) ShowID() string {
	return s.showID
}

func (s *Subscription) Events() <-chan leases.Event {
	return s.ch
}

// Hub is the in-process per-show fan-out.
type Hub struct {
	mu     sync.Mutex
	shows  map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		shows:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Subscribe(showID string) *Subscription {
	sub := &Subscription{showID: showID, ch: make(chan leases.Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.shows[showID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.shows[showID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe is idempotent and safe for already dropped subscriptions
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Publish delivers ev to every current subscriber of showID. A subscriber
// whose buffer is full is closed instead of losing the event silently; its
// owner reconnects and rebuilds state from a fresh snapshot.
func (h *Hub) Publish(ctx context.Context, showID string, ev leases.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.shows[showID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped = true
			h.removeLocked(sub)
			logger.GetDefault().WarnContext(ctx, "dropping slow subscriber", "show_id", showID)
		}
	}
}

// SubscriberCount reports how many subscribers a show currently has
func (h *Hub) SubscriberCount(showID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.shows[showID])
}

// Dropped reports whether the hub closed the subscription for falling behind
func (h *Hub) Dropped(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return sub.dropped
}

func (h *Hub) removeLocked(sub *Subscription) {
	subs, ok := h.shows[sub.showID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.shows, sub.showID)
	}
}
