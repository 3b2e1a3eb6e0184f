package bus

import (
	"sync/atomic"

	"github.com/arcfront/shellbus/internal/domain/event"
)

// Subscription is the handle returned by Subscribe. It belongs to the
// subscriber and stays valid until Unsubscribe or a bus-wide Clear.
type Subscription struct {
	id        string
	eventType string
	handler   Handler
	filter    FilterFunc
	priority  int
	once      bool

	// seq orders equal-priority subscriptions by registration.
	seq uint64

	// fired claims a one-shot so concurrent emissions cannot double-fire it.
	fired atomic.Bool

	bus *Bus
}

// ID returns the process-unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Type returns the event type the subscription matches.
func (s *Subscription) Type() string { return s.eventType }

// Unsubscribe removes the subscription from its bus. Calling it more than
// once is harmless.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// allow evaluates the filter with the same containment as handler calls:
// a panicking filter counts as a mismatch for this subscription only.
func (s *Subscription) allow(ev event.Event) (ok bool) {
	if s.filter == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return s.filter(ev)
}
