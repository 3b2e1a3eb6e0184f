/*
Package event defines the shared vocabulary for everything that travels over the
shell bus.

Key contracts:
  - Envelope: every signal is an Event carrying a type string, a payload schema
    version and an opaque payload. The bus stamps identity and time; producers
    never supply them.
  - Typed payloads: each canonical event type has a concrete payload struct, so
    consumers get compile-time shape safety while the bus itself stays
    payload-agnostic.
  - Exportable: payloads that must be re-published to the external message bus
    opt in by returning a routing key.
*/
package event

import "time"

// Event is the envelope for a single emission on the bus.
//
// Timestamp is epoch milliseconds assigned by the bus at emission time.
// Payload may be any value, including nil; its meaning is fixed per
// Type+Version pair by convention, not enforced here.
type Event struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Version       int    `json:"version"`
	Payload       any    `json:"payload,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	Source        string `json:"source,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Time converts the millisecond timestamp back into a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Exportable marks a payload that should be re-published to the message bus.
type Exportable interface {
	// We return the key only if the event is ready to be exported.
	// An empty string tells the exporter to skip publishing.
	RoutingKey() string
}

// As extracts a typed payload from an event envelope.
// The boolean reports whether the payload actually carries a T.
func As[T any](e Event) (T, bool) {
	p, ok := e.Payload.(T)
	return p, ok
}
