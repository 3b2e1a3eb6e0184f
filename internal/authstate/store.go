// Package authstate tracks the current authenticated session and announces
// every transition on the event bus.
//
// Key Architectural Concepts:
//
// Unverified Parsing: tokens arrive already verified by the gateway, so the
// store only extracts registered claims. Nothing here treats the token as
// proof of anything.
//
// Expiry Watchdog: a session with an exp claim arms a timer that emits
// AUTH_EXPIRED exactly once. Login, Logout and Close invalidate the armed
// timer through a generation counter, the same liveness discipline the
// remote loader uses for its continuations.
package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
	"github.com/arcfront/shellbus/internal/domain/model"
)

var (
	ErrClosed       = errors.New("authstate: store closed")
	ErrNoSubject    = errors.New("authstate: token has no subject")
	ErrTokenExpired = errors.New("authstate: token already expired")
)

// Store holds at most one session at a time. A second Login replaces the
// current session without an intermediate logout.
type Store struct {
	emitter bus.Emitter
	log     *slog.Logger

	mu      sync.Mutex
	session *model.AuthSession
	timer   *time.Timer
	// [LIVENESS] bumped on every transition so a stale expiry timer that
	// already fired finds itself outdated and backs off.
	gen    uint64
	closed bool
}

type Option func(*Store)

// WithBus attaches the emitter used for AUTH_* announcements.
func WithBus(e bus.Emitter) Option {
	return func(s *Store) {
		s.emitter = e
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login parses the token's registered claims, stores the session and emits
// AUTH_LOGIN. Tokens whose exp claim already passed are rejected.
func (s *Store) Login(ctx context.Context, token string) (model.AuthSession, error) {
	session, err := parseSession(token, time.Now())
	if err != nil {
		return model.AuthSession{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.AuthSession{}, ErrClosed
	}
	s.disarmLocked()
	s.gen++
	s.session = &session

	if ttl := session.TTL(time.Now()); ttl > 0 {
		gen := s.gen
		s.timer = time.AfterFunc(ttl, func() {
			s.expire(gen)
		})
	}
	s.mu.Unlock()

	// [AUTH_SESSION] the subject is fine to log, the token never is.
	s.log.InfoContext(ctx, "AUTH_SESSION_OPENED",
		"subject", session.Subject,
		"expires_at", session.ExpiresAt,
	)
	s.emit(ctx, event.TypeAuthLogin, event.AuthLogin{
		UserID:    session.Subject,
		Username:  session.DisplayName,
		ExpiresAt: session.ExpiresAt,
	})
	return session, nil
}

// Logout drops the current session and emits AUTH_LOGOUT. Without a session
// it is a no-op.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.session == nil {
		s.mu.Unlock()
		return
	}
	subject := s.session.Subject
	s.disarmLocked()
	s.gen++
	s.session = nil
	s.mu.Unlock()

	s.log.InfoContext(ctx, "AUTH_SESSION_CLOSED", "subject", subject)
	s.emit(ctx, event.TypeAuthLogout, event.AuthLogout{UserID: subject})
}

// Session returns a snapshot of the current session. The second return
// reports whether one is held.
func (s *Store) Session() (model.AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return model.AuthSession{}, false
	}
	return *s.session, true
}

// Close drops the session and disarms the watchdog without emitting.
// [IDEMPOTENT]
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.disarmLocked()
	s.session = nil
}

// expire runs on the timer goroutine when the session outlives its exp claim.
func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.session == nil {
		// A newer transition already superseded this timer.
		s.mu.Unlock()
		return
	}
	session := *s.session
	s.gen++
	s.session = nil
	s.timer = nil
	s.mu.Unlock()

	s.log.Warn("AUTH_SESSION_EXPIRED", "subject", session.Subject)
	s.emit(context.Background(), event.TypeAuthExpired, event.AuthExpired{
		UserID:    session.Subject,
		ExpiredAt: session.ExpiresAt,
	})
}

func (s *Store) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) emit(ctx context.Context, eventType string, payload any) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, eventType, payload, bus.WithSource(event.SourceAuth))
}

// parseSession extracts the registered claims we care about. The signature is
// deliberately not checked here.
func parseSession(token string, now time.Time) (model.AuthSession, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return model.AuthSession{}, fmt.Errorf("authstate: parse token: %w", err)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return model.AuthSession{}, ErrNoSubject
	}
	displayName, _ := claims["name"].(string)

	session := model.AuthSession{
		Subject:     subject,
		DisplayName: displayName,
		Token:       token,
		IssuedAt:    claimMillis(claims["iat"]),
		ExpiresAt:   claimMillis(claims["exp"]),
	}
	if session.IssuedAt == 0 {
		session.IssuedAt = now.UnixMilli()
	}
	if session.Expired(now) {
		return model.AuthSession{}, ErrTokenExpired
	}
	return session, nil
}

// claimMillis converts a NumericDate claim (seconds, possibly fractional)
// to unix milliseconds. Absent or malformed claims map to zero.
func claimMillis(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n * 1000)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return int64(f * 1000)
	default:
		return 0
	}
}
