package bus

import (
	"time"

	"github.com/arcfront/shellbus/internal/domain/event"
)

// HistoryEntry records one emission.
type HistoryEntry struct {
	Event event.Event `json:"event"`
	// HandlerCount is the number of subscriptions matched before filters ran.
	HandlerCount int `json:"handler_count"`
	// ProcessingTime is the wall time spent across all handler invocations.
	ProcessingTime time.Duration `json:"processing_time"`
}

// HistoryOption narrows a History query.
type HistoryOption func(*historyQuery)

type historyQuery struct {
	eventType string
	limit     int
}

// HistoryType keeps only entries of one event type.
func HistoryType(eventType string) HistoryOption {
	return func(q *historyQuery) {
		q.eventType = eventType
	}
}

// HistoryLimit truncates the result to the newest n entries.
func HistoryLimit(n int) HistoryOption {
	return func(q *historyQuery) {
		q.limit = n
	}
}

// History returns recorded emissions newest-first. The result is a copy and
// safe to retain.
func (b *Bus) History(opts ...HistoryOption) []HistoryEntry {
	var q historyQuery
	for _, opt := range opts {
		opt(&q)
	}

	b.mu.Lock()
	entries := b.history.newestFirst()
	b.mu.Unlock()

	if q.eventType != "" {
		kept := entries[:0]
		for _, e := range entries {
			if e.Event.Type == q.eventType {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if q.limit > 0 && len(entries) > q.limit {
		entries = entries[:q.limit]
	}
	return entries
}

// ClearHistory empties the history buffer without touching subscriptions.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.clear()
}

// ring is a fixed-capacity FIFO over history entries. Oldest entries are
// overwritten once the capacity is exceeded.
type ring struct {
	buf   []HistoryEntry
	next  int
	count int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &ring{buf: make([]HistoryEntry, capacity)}
}

func (r *ring) push(e HistoryEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// newestFirst copies the retained entries out, newest first.
func (r *ring) newestFirst() []HistoryEntry {
	out := make([]HistoryEntry, 0, r.count)
	for i := 1; i <= r.count; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}

func (r *ring) len() int { return r.count }

func (r *ring) clear() {
	for i := range r.buf {
		r.buf[i] = HistoryEntry{}
	}
	r.next = 0
	r.count = 0
}
