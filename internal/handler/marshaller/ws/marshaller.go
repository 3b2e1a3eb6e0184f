package wsmarshaller

import (
	"encoding/json"

	"github.com/arcfront/shellbus/internal/domain/event"
)

// MarshallBusEvent prepares one bus event for WebSocket transmission.
func MarshallBusEvent(kind string, ev event.Event) ([]byte, error) {
	// WS consumers speak JSON; we flatten the envelope into a friendly
	// structure instead of exposing the domain type directly.
	res := &WSEvent{
		Kind:          kind,
		Event:         ev.Type,
		ID:            ev.ID,
		SentAt:        ev.Timestamp,
		Source:        ev.Source,
		Version:       ev.Version,
		CorrelationID: ev.CorrelationID,
		Payload:       ev.Payload,
	}

	return json.Marshal(res)
}
