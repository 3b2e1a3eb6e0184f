package relay

import (
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/arcfront/shellbus/internal/adapter/pubsub"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
)

// relayEnvelope decodes the exported wire form. The typed Payload field
// shadows the envelope's untyped one, so the payload lands as T while the
// rest of the envelope fills in around it.
type relayEnvelope[T any] struct {
	event.Event
	Payload T `json:"payload"`
}

// [INFRASTRUCTURE_BRIDGE]
// Bind connects a watermill consumer to the local bus, handling Panic
// Recovery, origin filtering and envelope decoding.
func Bind[T any](h *RelayHandler, eventType string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		// [ORIGIN_FILTER]
		// Our own broadcasts come back around on the bridge; drop them.
		if h.origin != "" && msg.Metadata.Get(pubsub.MetaOrigin) == h.origin {
			return nil // ACK: already seen locally.
		}

		// [DECODING]
		var env relayEnvelope[T]
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID, "topic", eventType)
			return nil // ACK: Poison Pill protection.
		}
		if env.Type == "" {
			env.Type = eventType
		}

		// [RE_EMISSION]
		// Replay on the local bus under the relay source so the exporter's
		// loop guard recognizes it.
		opts := []bus.EmitOption{bus.WithSource(event.SourceRelay)}
		if env.Version > 0 {
			opts = append(opts, bus.WithVersion(env.Version))
		}
		if env.CorrelationID != "" {
			opts = append(opts, bus.WithCorrelationID(env.CorrelationID))
		}
		h.emitter.Emit(msg.Context(), env.Type, env.Payload, opts...)

		return nil
	}
}
