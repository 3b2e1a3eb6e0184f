package remote

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by operations on a loader after Close.
	ErrClosed = errors.New("remote: loader closed")
	// ErrSuperseded is returned to a joined Load whose sequence was thrown
	// away by Reset or a manual Retry before it settled.
	ErrSuperseded = errors.New("remote: load superseded")
	// ErrLoadPanic normalizes a panicking load function into a plain error.
	ErrLoadPanic = errors.New("remote: load function panicked")
)

// TimeoutError reports a single attempt exceeding its time budget.
type TimeoutError struct {
	Remote  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("remote %q: load timed out after %s", e.Remote, e.Timeout)
}

// LoadError is the terminal failure a loader holds once its attempt budget
// is exhausted. Code is stable and machine-readable.
type LoadError struct {
	Remote   string
	Code     string
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("remote %q: load failed after %d attempts: %v", e.Remote, e.Attempts, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
