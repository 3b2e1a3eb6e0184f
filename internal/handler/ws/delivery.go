package ws

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
	wsmarshaller "github.com/arcfront/shellbus/internal/handler/marshaller/ws"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 25 * time.Second

	// sendBuffer bounds how far a slow client may fall behind before we
	// start shedding events for it.
	sendBuffer = 64

	defaultReplay = 25

	// tapPriority runs the stream after every application handler, so
	// observed events reflect fully handled emissions.
	tapPriority = math.MaxInt
)

type WSHandler struct {
	logger   *slog.Logger
	bus      *bus.Bus
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, b *bus.Bus) *WSHandler {
	return &WSHandler{
		logger: logger,
		bus:    b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. REPLAY DEPTH (?replay=N, 0 disables)
	replay := defaultReplay
	if raw := r.URL.Query().Get("replay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid replay", http.StatusBadRequest)
			return
		}
		replay = n
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// 3. SUBSCRIBE TO THE BUS
	// The handler never blocks an emitter: when the client cannot keep up
	// the event is shed and the stream stays live.
	out := make(chan event.Event, sendBuffer)
	sub, err := h.bus.Subscribe(event.Wildcard, func(_ context.Context, ev event.Event) error {
		select {
		case out <- ev:
		default:
		}
		return nil
	}, bus.WithPriority(tapPriority))
	if err != nil {
		return
	}
	defer sub.Unsubscribe()

	h.logger.Info("ws opened", "remote_addr", r.RemoteAddr, "sub_id", sub.ID(), "replay", replay)

	// A closing client surfaces as a read error.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if replay > 0 {
		if err := h.replay(ws, replay); err != nil {
			h.logger.Warn("ws replay failed", "error", err)
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// 4. MAIN WS PUMP LOOP
	for {
		select {
		case <-r.Context().Done():
			return
		case <-readerDone:
			h.logger.Info("ws closed", "sub_id", sub.ID())
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev := <-out:
			data, err := wsmarshaller.MarshallBusEvent(wsmarshaller.KindEvent, ev)
			if err != nil {
				h.logger.Error("failed to marshal ws event", "error", err)
				continue
			}

			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("ws send failed", "error", err)
				return
			}
		}
	}
}

// replay streams the retained history oldest first, so the client sees
// events in emission order before the live feed takes over.
func (h *WSHandler) replay(ws *websocket.Conn, n int) error {
	entries := h.bus.History(bus.HistoryLimit(n))
	for i := len(entries) - 1; i >= 0; i-- {
		data, err := wsmarshaller.MarshallBusEvent(wsmarshaller.KindReplay, entries[i].Event)
		if err != nil {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}
