package bus

import (
	"context"

	"github.com/arcfront/shellbus/internal/domain/event"
)

// Typed adapts a payload-typed handler onto the erased Handler contract.
// Events whose payload does not carry a T are skipped silently, so a typed
// handler can sit behind a wildcard subscription.
func Typed[T any](h func(ctx context.Context, ev event.Event, payload T) error) Handler {
	return func(ctx context.Context, ev event.Event) error {
		payload, ok := event.As[T](ev)
		if !ok {
			return nil
		}
		return h(ctx, ev, payload)
	}
}
