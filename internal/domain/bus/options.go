package bus

import (
	"log/slog"
	"time"

	"github.com/arcfront/shellbus/internal/domain/event"
)

const (
	DefaultName        = "EventBus"
	DefaultHistorySize = 100
	DefaultWaitTimeout = 30 * time.Second
)

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithName labels the bus in logs and handler failure reports.
func WithName(name string) Option {
	return func(b *Bus) {
		if name != "" {
			b.name = name
		}
	}
}

// WithHistorySize caps the emission history ring. Non-positive values keep
// the default.
func WithHistorySize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.historySize = size
		}
	}
}

// WithDebug enables per-emission debug logging.
func WithDebug(debug bool) Option {
	return func(b *Bus) {
		b.debug = debug
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*Subscription)

// WithPriority orders handler invocation. Lower values run earlier; equal
// values run in subscription order.
func WithPriority(priority int) SubscribeOption {
	return func(s *Subscription) {
		s.priority = priority
	}
}

// WithFilter gates the handler behind a per-event predicate. The handler
// runs only for events the filter accepts.
func WithFilter(filter FilterFunc) SubscribeOption {
	return func(s *Subscription) {
		s.filter = filter
	}
}

// WithOnce removes the subscription after its first clean invocation.
func WithOnce() SubscribeOption {
	return func(s *Subscription) {
		s.once = true
	}
}

// EmitOption decorates the outgoing event envelope.
type EmitOption func(*event.Event)

// WithVersion overrides the payload schema version, which defaults to 1.
func WithVersion(version int) EmitOption {
	return func(ev *event.Event) {
		if version > 0 {
			ev.Version = version
		}
	}
}

// WithSource labels the event with the component that produced it.
func WithSource(source string) EmitOption {
	return func(ev *event.Event) {
		ev.Source = source
	}
}

// WithCorrelationID groups causally related events.
func WithCorrelationID(id string) EmitOption {
	return func(ev *event.Event) {
		ev.CorrelationID = id
	}
}
