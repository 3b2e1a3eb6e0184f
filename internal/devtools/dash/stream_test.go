package dash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	wsmarshaller "github.com/arcfront/shellbus/internal/handler/marshaller/ws"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDialAndStreamFrames(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotQuery string

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"kind":"replay","event":"REMOTE_LOADED","id":"1","sent_at":10}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"kind":"event","event":"AUTH_LOGIN","id":"2","sent_at":20}`))
	}))
	defer srv.Close()

	conn, err := dial(context.Background(), strings.TrimPrefix(srv.URL, "http://"), 7)
	require.NoError(t, err)
	defer conn.Close()

	mu.Lock()
	assert.Equal(t, "/ws/events", gotPath)
	assert.Equal(t, "replay=7", gotQuery)
	mu.Unlock()

	out := make(chan wsmarshaller.WSEvent, 8)
	go streamFrames(conn, out)

	read := func() wsmarshaller.WSEvent {
		select {
		case f, ok := <-out:
			require.True(t, ok, "stream ended early")
			return f
		case <-time.After(3 * time.Second):
			t.Fatal("no frame arrived")
			return wsmarshaller.WSEvent{}
		}
	}

	f1 := read()
	assert.Equal(t, wsmarshaller.KindReplay, f1.Kind)
	assert.Equal(t, "REMOTE_LOADED", f1.Event)
	assert.Equal(t, "1", f1.ID)

	f2 := read()
	assert.Equal(t, "AUTH_LOGIN", f2.Event, "undecodable frames are skipped")

	select {
	case _, ok := <-out:
		assert.False(t, ok, "out closes when the server goes away")
	case <-time.After(3 * time.Second):
		t.Fatal("stream never closed")
	}
}

func TestDialFailure(t *testing.T) {
	_, err := dial(context.Background(), "127.0.0.1:1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dash: dial")
}
