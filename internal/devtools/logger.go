package devtools

import (
	"context"
	"log/slog"
	"math"

	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
)

// LoggerOption tunes an attached event logger.
type LoggerOption func(*busLogger)

// WithInclude limits logging to the given event types.
func WithInclude(types ...string) LoggerOption {
	return func(l *busLogger) {
		l.include = make(map[string]struct{}, len(types))
		for _, t := range types {
			l.include[t] = struct{}{}
		}
	}
}

// WithExclude suppresses the given event types.
func WithExclude(types ...string) LoggerOption {
	return func(l *busLogger) {
		l.exclude = make(map[string]struct{}, len(types))
		for _, t := range types {
			l.exclude[t] = struct{}{}
		}
	}
}

// WithMinLevel sets the advisory level gate. Events are reported at debug
// level only, so any gate above slog.LevelDebug silences the logger.
func WithMinLevel(level slog.Level) LoggerOption {
	return func(l *busLogger) {
		l.level = level
	}
}

// WithFormatter replaces the default structured rendering with a custom
// single-line message per event.
func WithFormatter(format func(event.Event) string) LoggerOption {
	return func(l *busLogger) {
		l.format = format
	}
}

// AttachLogger subscribes a wildcard event printer to the bus and returns
// its detach function. It registers at the lowest possible priority so every
// application handler observes the event first.
func AttachLogger(b *bus.Bus, log *slog.Logger, opts ...LoggerOption) (func(), error) {
	l := &busLogger{log: log, level: slog.LevelDebug}
	for _, opt := range opts {
		opt(l)
	}

	sub, err := b.Subscribe(event.Wildcard, l.handle, bus.WithPriority(math.MaxInt))
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

type busLogger struct {
	log     *slog.Logger
	include map[string]struct{}
	exclude map[string]struct{}
	level   slog.Level
	format  func(event.Event) string
}

func (l *busLogger) handle(ctx context.Context, ev event.Event) error {
	if l.level > slog.LevelDebug {
		return nil
	}
	if len(l.include) > 0 {
		if _, ok := l.include[ev.Type]; !ok {
			return nil
		}
	}
	if _, ok := l.exclude[ev.Type]; ok {
		return nil
	}

	if l.format != nil {
		l.log.DebugContext(ctx, l.format(ev))
		return nil
	}
	l.log.DebugContext(ctx, "EVENT_OBSERVED",
		"type", ev.Type,
		"event", ev.ID,
		"version", ev.Version,
		"source", ev.Source,
		"correlation_id", ev.CorrelationID,
		"payload", ev.Payload,
	)
	return nil
}
