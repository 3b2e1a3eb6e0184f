package dash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	wsmarshaller "github.com/arcfront/shellbus/internal/handler/marshaller/ws"
)

// dial connects to a running shell's event stream.
func dial(ctx context.Context, addr string, replay int) (*websocket.Conn, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     addr,
		Path:     "/ws/events",
		RawQuery: fmt.Sprintf("replay=%d", replay),
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dash: dial %s: %w", u.String(), err)
	}
	return conn, nil
}

// streamFrames decodes frames until the connection drops, then closes out.
// Undecodable frames are skipped; a broken peer must not kill the dashboard.
func streamFrames(conn *websocket.Conn, out chan<- wsmarshaller.WSEvent) {
	defer close(out)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f wsmarshaller.WSEvent
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		out <- f
	}
}
