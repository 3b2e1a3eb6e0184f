package remote

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/arcfront/shellbus/internal/domain/bus"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	// maxBackoffDelay caps the exponential growth between attempts.
	maxBackoffDelay = 30 * time.Second
)

type settings struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	autoRetry  bool
	bus        bus.Emitter
	log        *slog.Logger
	breaker    *gobreaker.Settings
}

func defaultSettings() settings {
	return settings{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		autoRetry:  true,
		log:        slog.Default(),
	}
}

// Option configures a loader at construction time.
type Option func(*settings)

// WithTimeout bounds every single load attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxRetries sets the total attempt budget, first attempt included.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base backoff delay. Attempt n waits roughly
// delay * 2^n, jittered by a factor in [0.75, 1.25] and capped at 30s.
func WithRetryDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithAutoRetry toggles automatic retries. When disabled the loader fails
// after its first unsuccessful attempt; manual Retry stays available.
func WithAutoRetry(enabled bool) Option {
	return func(s *settings) {
		s.autoRetry = enabled
	}
}

// WithBus attaches the event bus the loader emits its lifecycle events on.
// Without it the loader runs silently.
func WithBus(e bus.Emitter) Option {
	return func(s *settings) {
		s.bus = e
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithBreaker puts a circuit breaker around load attempts so a persistently
// failing remote starts fast-failing instead of burning its full timeout.
func WithBreaker(st gobreaker.Settings) Option {
	return func(s *settings) {
		s.breaker = &st
	}
}
