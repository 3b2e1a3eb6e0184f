/*
Package remote drives the asynchronous loading of federated remote modules.

A Loader wraps one caller-supplied load function with a per-attempt timeout,
bounded retries with jittered exponential backoff, and lifecycle event
emission on the shell bus. Exactly one attempt sequence is in flight per
loader at any time; concurrent Load calls join it instead of starting a
second one.

Every pending continuation (attempt return, backoff wake) revalidates
liveness before committing state or emitting, so Reset and Close make all
in-flight work a no-op instead of mutating a torn-down loader.
*/
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
	"github.com/arcfront/shellbus/internal/domain/model"
)

// LoadFunc fetches the remote artifact. It must honor ctx cancellation.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Hooks observe loader transitions. Every callback is optional and runs on
// the goroutine driving the sequence.
type Hooks[T any] struct {
	OnLoadStart   func(attempt int)
	OnLoadSuccess func(module T, attempts int)
	OnLoadError   func(err error, attempt int)
	OnRetry       func(nextAttempt int, delay time.Duration, err error)
}

// Status is a point-in-time snapshot of a loader.
type Status[T any] struct {
	Module   T
	Loading  bool
	Retrying bool
	Loaded   bool
	Error    error
	Attempts int
}

// Loader owns the retry state machine for a single remote module.
type Loader[T any] struct {
	name    string
	loadFn  LoadFunc[T]
	opts    settings
	breaker *gobreaker.CircuitBreaker
	hooks   Hooks[T]

	// [CONCURRENCY_CONTROL]
	// Guards every mutable field below. Never held across a load attempt,
	// a backoff wait or a bus emission.
	mu sync.Mutex

	state    model.LoadState
	module   T
	err      error
	attempts int

	// [LIVENESS]
	// gen is bumped by Reset, Retry and Close. A continuation captured
	// under an older generation may no longer commit state or emit.
	gen    uint64
	closed bool

	// inflight is non-nil while a sequence runs; joiners wait on it.
	inflight *flight
	cancel   context.CancelFunc
}

// flight is one running attempt sequence. Its outcome is published to
// joiners when done closes.
type flight struct {
	done chan struct{}
	err  error
}

// NewLoader builds a loader for one named remote. Hooks, if needed, are
// installed with SetHooks before the first Load.
func NewLoader[T any](name string, loadFn LoadFunc[T], opts ...Option) *Loader[T] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	l := &Loader[T]{
		name:   name,
		loadFn: loadFn,
		opts:   s,
		state:  model.StateIdle,
	}
	if s.breaker != nil {
		st := *s.breaker
		if st.Name == "" {
			st.Name = name
		}
		l.breaker = gobreaker.NewCircuitBreaker(st)
	}
	return l
}

// SetHooks installs transition callbacks. Call it before the first Load.
func (l *Loader[T]) SetHooks(h Hooks[T]) {
	l.hooks = h
}

// Name returns the remote's configured name.
func (l *Loader[T]) Name() string { return l.name }

// Status returns a snapshot of the loader's externally visible state.
func (l *Loader[T]) Status() Status[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status[T]{
		Module:   l.module,
		Loading:  l.state == model.StateLoading,
		Retrying: l.state == model.StateRetrying,
		Loaded:   l.state == model.StateLoaded,
		Error:    l.err,
		Attempts: l.attempts,
	}
}

// State returns the loader's current state machine position.
func (l *Loader[T]) State() model.LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load drives the attempt sequence to completion on the calling goroutine.
// While an error-free module is held it is a no-op. While another sequence
// is in flight the call joins it and returns that sequence's outcome.
func (l *Loader[T]) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.state == model.StateLoaded && l.err == nil {
		// [IDEMPOTENT] a clean module is already held, nothing to fetch.
		l.mu.Unlock()
		return nil
	}
	if f := l.inflight; f != nil {
		l.mu.Unlock()
		return join(ctx, f)
	}

	gen := l.gen
	f := &flight{done: make(chan struct{})}
	seqCtx, cancel := context.WithCancel(ctx)
	l.inflight = f
	l.cancel = cancel
	l.err = nil
	l.attempts = 0
	l.state = model.StateLoading
	l.mu.Unlock()

	return l.runSequence(seqCtx, gen, f)
}

// Retry restarts the whole sequence at attempt zero regardless of prior
// state, as a user-facing "try again" action. Prior attempts and error are
// discarded; whatever was in flight is superseded.
func (l *Loader[T]) Retry(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}

	// [SUPERSEDE] invalidate the running sequence before taking over.
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = nil

	gen := l.gen
	f := &flight{done: make(chan struct{})}
	seqCtx, cancel := context.WithCancel(ctx)
	l.inflight = f
	l.cancel = cancel
	l.err = nil
	l.attempts = 0
	l.state = model.StateLoading
	l.mu.Unlock()

	return l.runSequence(seqCtx, gen, f)
}

// Reset cancels in-flight work and returns the loader to its initial state.
// Unlike Close, the loader remains usable.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = nil

	var zero T
	l.module = zero
	l.err = nil
	l.attempts = 0
	l.state = model.StateIdle
}

// Close tears the loader down for good. In-flight work is cancelled and
// every pending continuation becomes a no-op: past this point the loader
// neither mutates its state nor emits.
func (l *Loader[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = nil
	l.state = model.StateClosed
}

// join waits for another goroutine's sequence to settle.
func join(ctx context.Context, f *flight) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSequence drives the claimed sequence and releases the slot afterwards.
func (l *Loader[T]) runSequence(ctx context.Context, gen uint64, f *flight) error {
	err := l.run(ctx, gen)

	l.mu.Lock()
	if l.inflight == f {
		l.inflight = nil
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
	}
	l.mu.Unlock()

	f.err = err
	close(f.done)
	return err
}

// run executes the retry loop for one generation.
func (l *Loader[T]) run(ctx context.Context, gen uint64) error {
	// attempt is the 0-indexed attempt about to run; event payloads carry
	// it 1-indexed.
	attempt := 0

	op := func() error {
		n := attempt
		if !l.commit(gen, func() {
			l.state = model.StateLoading
			l.attempts = n + 1
		}) {
			return backoff.Permanent(ErrSuperseded)
		}
		l.emitLoading(ctx, n+1)
		if l.hooks.OnLoadStart != nil {
			l.hooks.OnLoadStart(n + 1)
		}

		module, err := l.attemptOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Teardown or caller cancellation, not a load failure.
				return backoff.Permanent(ctx.Err())
			}
			l.opts.log.Warn("REMOTE_ATTEMPT_FAILED",
				"remote", l.name,
				"attempt", n+1,
				"error", err,
			)
			if l.hooks.OnLoadError != nil {
				l.hooks.OnLoadError(err, n+1)
			}
			return err
		}

		if !l.commit(gen, func() {
			l.module = module
			l.err = nil
			l.state = model.StateLoaded
		}) {
			return backoff.Permanent(ErrSuperseded)
		}
		l.emitLoaded(ctx, n+1)
		if l.hooks.OnLoadSuccess != nil {
			l.hooks.OnLoadSuccess(module, n+1)
		}
		l.opts.log.Info("REMOTE_LOADED",
			"remote", l.name,
			"attempts", n+1,
		)
		return nil
	}

	// notify fires between a failed attempt and its backoff wait.
	notify := func(err error, delay time.Duration) {
		n := attempt
		if !l.commit(gen, func() {
			l.state = model.StateRetrying
		}) {
			return
		}
		l.emitRetrying(ctx, n+1, n+2, delay, err)
		if l.hooks.OnRetry != nil {
			l.hooks.OnRetry(n+2, delay, err)
		}
		attempt++
	}

	err := backoff.RetryNotify(op, l.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrSuperseded) {
		// The sequence was torn down or replaced; no terminal state to
		// commit and nothing to emit.
		return err
	}

	final := &LoadError{
		Remote:   l.name,
		Code:     event.CodeLoadError,
		Attempts: attempt + 1,
		Err:      err,
	}
	if !l.commit(gen, func() {
		l.err = final
		l.state = model.StateFailed
	}) {
		return ErrSuperseded
	}
	l.emitFailed(ctx, final)
	l.opts.log.Error("REMOTE_LOAD_FAILED",
		"remote", l.name,
		"attempts", final.Attempts,
		"error", err,
	)
	return final
}

// commit applies a state mutation only while the requesting sequence is
// still the live one.
func (l *Loader[T]) commit(gen uint64, apply func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || gen != l.gen {
		return false
	}
	apply()
	return true
}

// attemptOnce runs the load function a single time, through the circuit
// breaker when one is configured.
func (l *Loader[T]) attemptOnce(ctx context.Context) (T, error) {
	if l.breaker == nil {
		return l.fetch(ctx)
	}

	var zero T
	v, err := l.breaker.Execute(func() (interface{}, error) {
		module, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		return module, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("remote %q: %w", l.name, err)
		}
		return zero, err
	}
	module, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("remote %q: unexpected breaker result type %T", l.name, v)
	}
	return module, nil
}

// fetch races the load function against the per-attempt timeout. The load
// function runs on its own goroutine so a hung fetch cannot wedge the
// sequence past its deadline.
func (l *Loader[T]) fetch(ctx context.Context) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, l.opts.timeout)
	defer cancel()

	type result struct {
		module T
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- result{err: fmt.Errorf("%w: %v", ErrLoadPanic, r)}
			}
		}()
		module, err := l.loadFn(attemptCtx)
		resCh <- result{module: module, err: err}
	}()

	select {
	case res := <-resCh:
		return res.module, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &TimeoutError{Remote: l.name, Timeout: l.opts.timeout}
	}
}

func (l *Loader[T]) newBackOff(ctx context.Context) backoff.BackOff {
	if !l.opts.autoRetry || l.opts.maxRetries <= 1 {
		// A single attempt, no backoff at all.
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.opts.retryDelay
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.25
	bo.MaxInterval = maxBackoffDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	// maxRetries is the total attempt budget; the wrapper counts the
	// waits between attempts.
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(l.opts.maxRetries-1)), ctx)
}

func (l *Loader[T]) emitLoading(ctx context.Context, attempt int) {
	if l.opts.bus == nil {
		return
	}
	l.opts.bus.Emit(ctx, event.TypeRemoteLoading,
		event.RemoteLoading{RemoteName: l.name, Attempt: attempt},
		bus.WithSource(event.SourceLoader),
	)
}

func (l *Loader[T]) emitLoaded(ctx context.Context, attempts int) {
	if l.opts.bus == nil {
		return
	}
	l.opts.bus.Emit(ctx, event.TypeRemoteLoaded,
		event.RemoteLoaded{RemoteName: l.name, Attempts: attempts},
		bus.WithSource(event.SourceLoader),
	)
}

func (l *Loader[T]) emitRetrying(ctx context.Context, attempt, next int, delay time.Duration, err error) {
	if l.opts.bus == nil {
		return
	}
	l.opts.bus.Emit(ctx, event.TypeRemoteRetrying,
		event.RemoteRetrying{
			RemoteName:  l.name,
			Attempt:     attempt,
			NextAttempt: next,
			DelayMS:     delay.Milliseconds(),
			Error:       err.Error(),
		},
		bus.WithSource(event.SourceLoader),
	)
}

func (l *Loader[T]) emitFailed(ctx context.Context, ferr *LoadError) {
	if l.opts.bus == nil {
		return
	}
	l.opts.bus.Emit(ctx, event.TypeRemoteLoadFailed,
		event.RemoteLoadFailed{
			RemoteName: l.name,
			Error:      ferr.Err.Error(),
			ErrorCode:  ferr.Code,
			Attempts:   ferr.Attempts,
			Retryable:  true,
		},
		bus.WithSource(event.SourceLoader),
	)
}
