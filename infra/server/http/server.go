// Package http hosts the shell's REST and WebSocket surface on a chi router.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arcfront/shellbus/config"
)

type Server struct {
	// Mux is exposed so handler modules can mount their routes before the
	// listener opens.
	Mux *chi.Mux

	log  *slog.Logger
	srv  *http.Server
	addr string
	ln   net.Listener
}

func NewServer(cfg *config.Config, log *slog.Logger) *Server {
	mux := chi.NewRouter()
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.Recoverer)
	mux.Use(requestLogger(log))

	return &Server{
		Mux:  mux,
		log:  log,
		addr: cfg.Server.Addr,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background. Binding happens
// here so a busy port fails startup instead of a goroutine.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP_SERVER_FAILED", "error", err)
		}
	}()

	s.log.Info("HTTP_SERVER_STARTED", "addr", ln.Addr().String())
	return nil
}

// Addr reports the bound address, which differs from the configured one
// when the port was 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop drains in-flight requests until ctx gives up.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestLogger emits one debug line per request, after the handler ran.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		return http.HandlerFunc(fn)
	}
}
