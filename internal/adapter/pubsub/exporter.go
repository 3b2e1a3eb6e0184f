// Package pubsub bridges the local event bus onto a watermill publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
)

// Metadata keys stamped on every exported message.
const (
	MetaOrigin    = "origin"
	MetaEventType = "event_type"
)

// exportPriority places the exporter after every application handler but
// ahead of the devtools tap.
const exportPriority = math.MaxInt - 1

// Exporter re-publishes bus events whose payload is event.Exportable onto
// the bridge. Everything else, and anything that already travelled the
// bridge, stays local.
type Exporter struct {
	publisher message.Publisher
	log       *slog.Logger
	origin    string
	sub       *bus.Subscription
}

type Option func(*Exporter)

func WithLogger(log *slog.Logger) Option {
	return func(e *Exporter) {
		if log != nil {
			e.log = log
		}
	}
}

// WithOrigin stamps exported messages with this instance's identity so the
// relay can drop our own broadcasts when they come back.
func WithOrigin(origin string) Option {
	return func(e *Exporter) {
		e.origin = origin
	}
}

func NewExporter(publisher message.Publisher, opts ...Option) *Exporter {
	e := &Exporter{
		publisher: publisher,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach subscribes the exporter to the whole bus.
func (e *Exporter) Attach(sub bus.Subscriber) error {
	s, err := sub.Subscribe(event.Wildcard, e.handle, bus.WithPriority(exportPriority))
	if err != nil {
		return fmt.Errorf("exporter: attach: %w", err)
	}
	e.sub = s
	return nil
}

// Detach removes the bus subscription. [IDEMPOTENT]
func (e *Exporter) Detach() {
	if e.sub != nil {
		e.sub.Unsubscribe()
		e.sub = nil
	}
}

func (e *Exporter) handle(ctx context.Context, ev event.Event) error {
	// [LOOP_GUARD] events that arrived over the bridge never go back out.
	if ev.Source == event.SourceRelay {
		return nil
	}
	exp, ok := ev.Payload.(event.Exportable)
	if !ok {
		return nil
	}
	key := exp.RoutingKey()
	if key == "" {
		return nil
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("exporter: marshal %s: %w", ev.Type, err)
	}

	msg := message.NewMessage(ev.ID, raw)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetaEventType, ev.Type)
	if e.origin != "" {
		msg.Metadata.Set(MetaOrigin, e.origin)
	}

	if err := e.publisher.Publish(key, msg); err != nil {
		return fmt.Errorf("exporter: publish to %s: %w", key, err)
	}
	e.log.Debug("EVENT_EXPORTED", "type", ev.Type, "topic", key, "msg_id", ev.ID)
	return nil
}
