package wsmarshaller

// Frame kinds. Replayed history and live events share one wire shape so
// clients run a single decode path.
const (
	KindEvent  = "event"
	KindReplay = "replay"
)

// WSEvent is a generic wrapper for WebSocket messages to provide consistent structure
type WSEvent struct {
	Kind          string `json:"kind"`   // "event" for live, "replay" for history
	Event         string `json:"event"`  // e.g., "REMOTE_LOADED", "AUTH_LOGIN"
	ID            string `json:"id"`     // event ID stamped by the bus
	SentAt        int64  `json:"sent_at"`
	Source        string `json:"source,omitempty"`
	Version       int    `json:"version"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Payload       any    `json:"payload,omitempty"`
}
