package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arcfront/shellbus/internal/devtools"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/service"
)

// APIHandler serves the devtools REST surface: remote statuses, manual
// retries and the bus history inspector.
type APIHandler struct {
	logger    *slog.Logger
	sheller   service.Sheller
	inspector *devtools.Inspector
	bus       *bus.Bus
}

func NewAPIHandler(logger *slog.Logger, sheller service.Sheller, inspector *devtools.Inspector, b *bus.Bus) *APIHandler {
	return &APIHandler{
		logger:    logger,
		sheller:   sheller,
		inspector: inspector,
		bus:       b,
	}
}

// Routes mounts the devtools endpoints. Health is mounted separately so it
// stays up when devtools are disabled.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/api/remotes", h.ListRemotes)
	r.Post("/api/remotes/{name}/retry", h.RetryRemote)
	r.Get("/api/history", h.History)
	r.Get("/api/stats", h.Stats)
}

func (h *APIHandler) Health(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRemotes reports every registered remote and its loader state.
func (h *APIHandler) ListRemotes(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, h.sheller.Describe())
}

// RetryRemote is the user-facing "Try again". It answers before the load
// settles; a retry can take the whole backoff budget.
func (h *APIHandler) RetryRemote(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.sheller.Status()[name]; !ok {
		http.Error(w, "unknown remote", http.StatusNotFound)
		return
	}

	// Detach from the request: the client navigating away must not cancel
	// the load it asked for.
	ctx := context.WithoutCancel(r.Context())
	go func() { _ = h.sheller.Retry(ctx, name) }()

	h.respond(w, http.StatusAccepted, map[string]string{"remote": name, "status": "retrying"})
}

// History exports the retained bus history, newest first. Query parameters:
// type (repeatable), source, correlation_id, version, since/until (epoch
// milliseconds) and limit.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	c, limit, err := criteriaFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries := h.inspector.Filter(c)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []bus.HistoryEntry{}
	}
	h.respond(w, http.StatusOK, entries)
}

type statsResponse struct {
	Bus     bus.Stats      `json:"bus"`
	History devtools.Stats `json:"history"`
}

// Stats combines live bus counters with history aggregates.
func (h *APIHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, statsResponse{
		Bus:     h.bus.Stats(),
		History: h.inspector.Stats(),
	})
}

func (h *APIHandler) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}

func criteriaFromQuery(r *http.Request) (devtools.Criteria, int, error) {
	q := r.URL.Query()
	c := devtools.Criteria{
		Types:         q["type"],
		Source:        q.Get("source"),
		CorrelationID: q.Get("correlation_id"),
	}

	if raw := q.Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return c, 0, fmt.Errorf("invalid version %q", raw)
		}
		c.Version = v
	}
	if raw := q.Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, 0, fmt.Errorf("invalid since %q", raw)
		}
		c.Since = time.UnixMilli(ms)
	}
	if raw := q.Get("until"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, 0, fmt.Errorf("invalid until %q", raw)
		}
		c.Until = time.UnixMilli(ms)
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = n
	}
	return c, limit, nil
}
