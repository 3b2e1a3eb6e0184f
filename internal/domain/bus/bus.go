/*
Package bus implements the in-process event bus connecting the shell and its
remote modules.

Key Architectural Concepts:
  - Synchronous Fan-out: Emit runs every matched handler on the calling
    goroutine before returning, so producers observe a fully settled bus.
    Handlers may emit again; nested emissions complete depth-first.
  - Priority Ordering: handlers fire sorted ascending by priority, with ties
    broken by subscription order. The order is stable and observable.
  - Isolation: a failing or panicking handler is logged and skipped. It never
    aborts the fan-out and never reaches the emitter.
  - Bounded History: every emission is recorded in a fixed-capacity ring
    consumed by the devtools layer.
  - Concurrency Management: one mutex guards the registry, history and
    counters. Handlers are invoked outside the lock, which keeps Subscribe,
    Unsubscribe and nested Emit legal from inside a handler.
*/
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcfront/shellbus/internal/domain/event"
)

// Handler consumes one event. A returned error is logged and contained.
type Handler func(ctx context.Context, ev event.Event) error

// FilterFunc decides per event whether a subscription's handler runs.
type FilterFunc func(ev event.Event) bool

// Emitter is the write side of the bus exposed to producers.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload any, opts ...EmitOption) event.Event
}

// Subscriber is the read side of the bus exposed to consumers.
type Subscriber interface {
	Subscribe(eventType string, h Handler, opts ...SubscribeOption) (*Subscription, error)
	SubscribeOnce(eventType string, h Handler, opts ...SubscribeOption) (*Subscription, error)
	WaitFor(ctx context.Context, eventType string, timeout time.Duration, filter FilterFunc) (event.Event, error)
}

// Interface guards
var (
	_ Emitter    = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

// Bus is the concrete pub/sub hub. The zero value is not usable; construct
// with New.
type Bus struct {
	name  string
	debug bool
	log   *slog.Logger

	// [CONCURRENCY_CONTROL]
	// Guards subs, byID, seq, counters and the history ring. Never held
	// while a handler runs.
	mu sync.Mutex

	// subs keeps per-type subscription lists in insertion order.
	subs map[string][]*Subscription
	byID map[string]*Subscription

	// seq is the global subscription tiebreaker for equal priorities.
	seq uint64

	historySize  int
	history      *ring
	totalEmitted uint64
	eventCounts  map[string]uint64
}

// Stats is an aggregate snapshot of bus activity.
type Stats struct {
	TotalEmitted        uint64            `json:"total_emitted"`
	ActiveSubscriptions int               `json:"active_subscriptions"`
	EventCounts         map[string]uint64 `json:"event_counts"`
	HistorySize         int               `json:"history_size"`
}

func New(opts ...Option) *Bus {
	b := &Bus{
		name:        DefaultName,
		log:         slog.Default(),
		subs:        make(map[string][]*Subscription),
		byID:        make(map[string]*Subscription),
		eventCounts: make(map[string]uint64),
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.history = newRing(b.historySize)
	return b
}

// Name returns the label the bus reports in logs.
func (b *Bus) Name() string { return b.name }

// Subscribe registers a handler for one event type, or for every type via
// the wildcard. It fails only on programmer misuse.
func (b *Bus) Subscribe(eventType string, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	if eventType == "" {
		return nil, ErrEmptyType
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	s := &Subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   h,
		bus:       b,
	}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	b.seq++
	s.seq = b.seq
	b.subs[eventType] = append(b.subs[eventType], s)
	b.byID[s.id] = s
	b.mu.Unlock()

	if b.debug {
		b.log.Debug("SUBSCRIPTION_REGISTERED",
			"bus", b.name,
			"type", eventType,
			"subscription", s.id,
			"priority", s.priority,
			"once", s.once,
		)
	}
	return s, nil
}

// SubscribeOnce registers a handler that fires for the first matching event
// and is removed right after its first clean invocation.
func (b *Bus) SubscribeOnce(eventType string, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	return b.Subscribe(eventType, h, append(opts, WithOnce())...)
}

// Emit constructs the event envelope, fans it out synchronously to every
// matched subscription and records the emission. It never fails because of
// handler misbehavior and always returns the constructed event.
func (b *Bus) Emit(ctx context.Context, eventType string, payload any, opts ...EmitOption) event.Event {
	ev := event.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Version:   1,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, opt := range opts {
		opt(&ev)
	}

	b.mu.Lock()
	matched := b.matchLocked(eventType)
	b.mu.Unlock()

	if b.debug {
		b.log.Debug("EVENT_EMITTED",
			"bus", b.name,
			"type", ev.Type,
			"event", ev.ID,
			"version", ev.Version,
			"source", ev.Source,
			"matched", len(matched),
		)
	}

	started := time.Now()
	for _, s := range matched {
		b.invoke(ctx, s, ev)
	}

	b.mu.Lock()
	b.totalEmitted++
	b.eventCounts[eventType]++
	b.history.push(HistoryEntry{
		Event:          ev,
		HandlerCount:   len(matched),
		ProcessingTime: time.Since(started),
	})
	b.mu.Unlock()

	return ev
}

// matchLocked snapshots the fan-out set for one emission: exact-type plus
// wildcard subscriptions, ordered by priority with insertion order on ties.
func (b *Bus) matchLocked(eventType string) []*Subscription {
	exact := b.subs[eventType]
	var wild []*Subscription
	if eventType != event.Wildcard {
		wild = b.subs[event.Wildcard]
	}
	if len(exact)+len(wild) == 0 {
		return nil
	}

	matched := make([]*Subscription, 0, len(exact)+len(wild))
	matched = append(matched, exact...)
	matched = append(matched, wild...)
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].priority != matched[j].priority {
			return matched[i].priority < matched[j].priority
		}
		return matched[i].seq < matched[j].seq
	})
	return matched
}

// invoke runs one subscription against one event with full containment.
func (b *Bus) invoke(ctx context.Context, s *Subscription, ev event.Event) {
	if !s.allow(ev) {
		return
	}
	if s.once && !s.fired.CompareAndSwap(false, true) {
		// [ONE_SHOT] another emission already claimed this subscription.
		return
	}

	if err := b.call(ctx, s, ev); err != nil {
		b.log.Error("HANDLER_FAILED",
			"bus", b.name,
			"type", ev.Type,
			"subscription", s.id,
			"error", err,
		)
		if s.once {
			// A failed invocation does not consume the one-shot.
			s.fired.Store(false)
		}
		return
	}

	if s.once {
		b.remove(s)
	}
}

// call shields the fan-out from a misbehaving handler.
func (b *Bus) call(ctx context.Context, s *Subscription, ev event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, ev)
}

// HasSubscribers reports whether an event of this type would reach anyone.
func (b *Bus) HasSubscribers(eventType string) bool {
	return b.SubscriberCount(eventType) > 0
}

// SubscriberCount counts exact-type plus wildcard registrations.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.subs[eventType])
	if eventType != event.Wildcard {
		n += len(b.subs[event.Wildcard])
	}
	return n
}

// Clear drops subscriptions for the given types, or every subscription when
// called with no arguments. History is left untouched.
func (b *Bus) Clear(types ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(types) == 0 {
		b.subs = make(map[string][]*Subscription)
		b.byID = make(map[string]*Subscription)
		return
	}
	for _, t := range types {
		for _, s := range b.subs[t] {
			delete(b.byID, s.id)
		}
		delete(b.subs, t)
	}
}

// Stats returns an aggregate snapshot of bus activity.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]uint64, len(b.eventCounts))
	for t, n := range b.eventCounts {
		counts[t] = n
	}
	return Stats{
		TotalEmitted:        b.totalEmitted,
		ActiveSubscriptions: len(b.byID),
		EventCounts:         counts,
		HistorySize:         b.history.len(),
	}
}

// WaitFor blocks until the next event of the given type passes the filter,
// the timeout elapses, or ctx is cancelled. A nil filter matches everything;
// a non-positive timeout falls back to the default. This is the only
// suspending operation on the bus.
func (b *Bus) WaitFor(ctx context.Context, eventType string, timeout time.Duration, filter FilterFunc) (event.Event, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	got := make(chan event.Event, 1)
	sub, err := b.Subscribe(eventType, func(_ context.Context, ev event.Event) error {
		select {
		case got <- ev:
		default:
		}
		return nil
	}, WithOnce(), WithFilter(filter))
	if err != nil {
		return event.Event{}, err
	}
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-got:
		return ev, nil
	case <-timer.C:
		return event.Event{}, fmt.Errorf("%w: no %q within %s", ErrWaitTimeout, eventType, timeout)
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

// remove deletes a subscription from the registry. Safe to call repeatedly.
func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[s.id]; !ok {
		return
	}
	delete(b.byID, s.id)

	list := b.subs[s.eventType]
	for i, cur := range list {
		if cur.id == s.id {
			b.subs[s.eventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[s.eventType]) == 0 {
		delete(b.subs, s.eventType)
	}
}
