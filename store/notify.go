package store

import (
	"log/slog"
	"sync"
)

// ChangeType discriminates store change notifications.
type ChangeType string

const (
	// ChangeMarks means a domain's mark buckets changed.
	ChangeMarks ChangeType = "marks"
	// ChangeFlags means the extension-wide flags changed.
	ChangeFlags ChangeType = "flags"
)

// Change is a store change notification. Carries no payload beyond the
// affected domain: subscribers re-read the store rather than trusting a
// possibly stale snapshot, and their reactions are idempotent, so redundant
// or coalesced notifications are harmless.
type Change struct {
	Type   ChangeType `json:"type"`
	Domain string     `json:"domain,omitempty"`
}

// Hub fans store change notifications out to subscribers. This is the
// storage-change event channel between contexts: page sessions re-apply,
// popup clients rebuild their listing.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
	closed bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Change)}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called on teardown; it closes the channel.
func (h *Hub) Subscribe() (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Change, 16)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// broadcast delivers c to every subscriber without blocking. A saturated
// subscriber loses the notification; that is tolerable because every
// reaction re-reads the full store state, so the next notification (or the
// pending one already in the buffer) reconverges it.
func (h *Hub) broadcast(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- c:
		default:
			slog.Warn("store: dropping change notification", "subscriber", id, "type", c.Type)
		}
	}
}

// Close drops every subscriber, closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
