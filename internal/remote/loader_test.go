package remote_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
	"github.com/arcfront/shellbus/internal/remote"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder captures every bus emission thread-safely.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func newRecorder(t *testing.T, b *bus.Bus) *recorder {
	t.Helper()
	r := &recorder{}
	_, err := b.Subscribe(event.Wildcard, func(_ context.Context, ev event.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return r
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) byType(eventType string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestLoaderSuccess(t *testing.T) {
	b := bus.New()
	rec := newRecorder(t, b)

	l := remote.NewLoader("checkout", func(context.Context) (string, error) {
		return "module-v1", nil
	}, remote.WithBus(b))
	defer l.Close()

	require.NoError(t, l.Load(context.Background()))

	st := l.Status()
	assert.True(t, st.Loaded)
	assert.False(t, st.Loading)
	assert.False(t, st.Retrying)
	assert.NoError(t, st.Error)
	assert.Equal(t, "module-v1", st.Module)
	assert.Equal(t, 1, st.Attempts)

	require.Equal(t, []string{event.TypeRemoteLoading, event.TypeRemoteLoaded}, rec.types())

	loading, ok := event.As[event.RemoteLoading](rec.byType(event.TypeRemoteLoading)[0])
	require.True(t, ok)
	assert.Equal(t, "checkout", loading.RemoteName)
	assert.Equal(t, 1, loading.Attempt)

	loaded, ok := event.As[event.RemoteLoaded](rec.byType(event.TypeRemoteLoaded)[0])
	require.True(t, ok)
	assert.Equal(t, 1, loaded.Attempts)
	assert.Equal(t, event.SourceLoader, rec.byType(event.TypeRemoteLoaded)[0].Source)
}

func TestLoaderRetryBackoff(t *testing.T) {
	b := bus.New()
	rec := newRecorder(t, b)

	var calls atomic.Int32
	l := remote.NewLoader("catalog", func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("fetch failed")
		}
		return "module", nil
	},
		remote.WithBus(b),
		remote.WithMaxRetries(3),
		remote.WithRetryDelay(10*time.Millisecond),
	)
	defer l.Close()

	require.NoError(t, l.Load(context.Background()))

	st := l.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 3, st.Attempts)
	assert.Equal(t, "module", st.Module)

	require.Equal(t, []string{
		event.TypeRemoteLoading,
		event.TypeRemoteRetrying,
		event.TypeRemoteLoading,
		event.TypeRemoteRetrying,
		event.TypeRemoteLoading,
		event.TypeRemoteLoaded,
	}, rec.types())

	retries := rec.byType(event.TypeRemoteRetrying)
	require.Len(t, retries, 2)

	first, ok := event.As[event.RemoteRetrying](retries[0])
	require.True(t, ok)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, 2, first.NextAttempt)
	assert.Equal(t, "fetch failed", first.Error)

	second, ok := event.As[event.RemoteRetrying](retries[1])
	require.True(t, ok)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, 3, second.NextAttempt)

	// Base delay 10ms, multiplier 2, jitter factor in [0.75, 1.25]:
	// the first wait lands in [7.5, 12.5]ms, the second in [15, 25]ms.
	assert.GreaterOrEqual(t, first.DelayMS, int64(7))
	assert.LessOrEqual(t, first.DelayMS, int64(13))
	assert.GreaterOrEqual(t, second.DelayMS, int64(14))
	assert.LessOrEqual(t, second.DelayMS, int64(26))
	assert.Greater(t, second.DelayMS, first.DelayMS)
}

func TestLoaderExhaustion(t *testing.T) {
	b := bus.New()
	rec := newRecorder(t, b)

	var calls atomic.Int32
	l := remote.NewLoader("flaky", func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("always down")
	},
		remote.WithBus(b),
		remote.WithMaxRetries(2),
		remote.WithRetryDelay(5*time.Millisecond),
	)
	defer l.Close()

	err := l.Load(context.Background())
	require.Error(t, err)

	var loadErr *remote.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "flaky", loadErr.Remote)
	assert.Equal(t, event.CodeLoadError, loadErr.Code)
	assert.Equal(t, 2, loadErr.Attempts)

	st := l.Status()
	assert.False(t, st.Loading)
	assert.False(t, st.Retrying)
	assert.False(t, st.Loaded)
	assert.Error(t, st.Error)
	assert.Equal(t, 2, st.Attempts)
	assert.Equal(t, int32(2), calls.Load())

	failed := rec.byType(event.TypeRemoteLoadFailed)
	require.Len(t, failed, 1, "exactly one terminal failure event")
	payload, ok := event.As[event.RemoteLoadFailed](failed[0])
	require.True(t, ok)
	assert.Equal(t, "always down", payload.Error)
	assert.Equal(t, event.CodeLoadError, payload.ErrorCode)
	assert.Equal(t, 2, payload.Attempts)
	assert.True(t, payload.Retryable)
}

func TestLoaderIdempotentLoad(t *testing.T) {
	var calls atomic.Int32
	l := remote.NewLoader("stable", func(context.Context) (string, error) {
		calls.Add(1)
		return "module", nil
	})
	defer l.Close()

	require.NoError(t, l.Load(context.Background()))
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, l.Status().Attempts)
}

func TestLoaderConcurrentLoadJoins(t *testing.T) {
	var calls atomic.Int32
	l := remote.NewLoader("slow", func(ctx context.Context) (string, error) {
		calls.Add(1)
		select {
		case <-time.After(30 * time.Millisecond):
			return "module", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	defer l.Close()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Load(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load(), "joined loads must not start their own sequences")
	assert.Equal(t, "module", l.Status().Module)
}

func TestLoaderManualRetry(t *testing.T) {
	b := bus.New()

	var healthy atomic.Bool
	l := remote.NewLoader("recovering", func(context.Context) (string, error) {
		if !healthy.Load() {
			return "", errors.New("still down")
		}
		return "module", nil
	},
		remote.WithBus(b),
		remote.WithMaxRetries(2),
		remote.WithRetryDelay(5*time.Millisecond),
	)
	defer l.Close()

	require.Error(t, l.Load(context.Background()))
	require.Equal(t, 2, l.Status().Attempts)

	healthy.Store(true)
	require.NoError(t, l.Retry(context.Background()))

	st := l.Status()
	assert.True(t, st.Loaded)
	assert.NoError(t, st.Error)
	assert.Equal(t, 1, st.Attempts, "manual retry restarts the attempt count")
}

func TestLoaderTimeout(t *testing.T) {
	l := remote.NewLoader("hung", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	},
		remote.WithTimeout(20*time.Millisecond),
		remote.WithAutoRetry(false),
	)
	defer l.Close()

	err := l.Load(context.Background())
	require.Error(t, err)

	var loadErr *remote.LoadError
	require.ErrorAs(t, err, &loadErr)
	var timeoutErr *remote.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "hung", timeoutErr.Remote)
	assert.Contains(t, err.Error(), "20ms")
	assert.Contains(t, err.Error(), "hung")
}

func TestLoaderAutoRetryDisabled(t *testing.T) {
	b := bus.New()
	rec := newRecorder(t, b)

	var calls atomic.Int32
	l := remote.NewLoader("oneshot", func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("nope")
	},
		remote.WithBus(b),
		remote.WithAutoRetry(false),
	)
	defer l.Close()

	require.Error(t, l.Load(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{event.TypeRemoteLoading, event.TypeRemoteLoadFailed}, rec.types())
}

func TestLoaderPanicNormalization(t *testing.T) {
	l := remote.NewLoader("panicky", func(context.Context) (string, error) {
		panic(42)
	}, remote.WithAutoRetry(false))
	defer l.Close()

	err := l.Load(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, remote.ErrLoadPanic)
	assert.Contains(t, err.Error(), "42")
}

func TestLoaderTeardownCancellation(t *testing.T) {
	b := bus.New()
	rec := newRecorder(t, b)

	retrying := make(chan struct{}, 1)
	_, err := b.Subscribe(event.TypeRemoteRetrying, func(context.Context, event.Event) error {
		select {
		case retrying <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	l := remote.NewLoader("doomed", func(context.Context) (string, error) {
		return "", errors.New("down")
	},
		remote.WithBus(b),
		remote.WithMaxRetries(3),
		remote.WithRetryDelay(10*time.Second),
	)

	loadDone := make(chan error, 1)
	go func() {
		loadDone <- l.Load(context.Background())
	}()

	select {
	case <-retrying:
	case <-time.After(5 * time.Second):
		t.Fatal("loader never reached its backoff wait")
	}

	// Tear down in the middle of the backoff wait.
	l.Close()

	select {
	case err := <-loadDone:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not unwind after close")
	}

	seen := rec.count()
	stats := b.Stats()

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, seen, rec.count(), "no emissions after close")
	assert.Equal(t, stats.TotalEmitted, b.Stats().TotalEmitted)
	assert.NotContains(t, rec.types(), event.TypeRemoteLoadFailed,
		"a torn-down sequence must not reach the failed state")

	st := l.Status()
	assert.False(t, st.Loaded)
	assert.NoError(t, st.Error, "no state mutation after close")
}

func TestLoaderReset(t *testing.T) {
	var healthy atomic.Bool
	l := remote.NewLoader("resettable", func(context.Context) (string, error) {
		if !healthy.Load() {
			return "", errors.New("down")
		}
		return "module", nil
	}, remote.WithAutoRetry(false))
	defer l.Close()

	require.Error(t, l.Load(context.Background()))
	require.Error(t, l.Status().Error)

	l.Reset()
	st := l.Status()
	assert.False(t, st.Loaded)
	assert.False(t, st.Loading)
	assert.NoError(t, st.Error)
	assert.Zero(t, st.Attempts)
	assert.Empty(t, st.Module)

	healthy.Store(true)
	require.NoError(t, l.Load(context.Background()))
	assert.True(t, l.Status().Loaded)
}

func TestLoaderClosedOperations(t *testing.T) {
	l := remote.NewLoader("done", func(context.Context) (string, error) {
		return "module", nil
	})
	l.Close()
	l.Close() // idempotent

	require.ErrorIs(t, l.Load(context.Background()), remote.ErrClosed)
	require.ErrorIs(t, l.Retry(context.Background()), remote.ErrClosed)
}

func TestLoaderBreaker(t *testing.T) {
	var calls atomic.Int32
	l := remote.NewLoader("tripped", func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("down")
	},
		remote.WithMaxRetries(4),
		remote.WithRetryDelay(time.Millisecond),
		remote.WithBreaker(gobreaker.Settings{
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2
			},
		}),
	)
	defer l.Close()

	err := l.Load(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must fast-fail later attempts")
	assert.Equal(t, 4, l.Status().Attempts)
}

func TestLoaderHooks(t *testing.T) {
	var mu sync.Mutex
	var trace []string

	var calls atomic.Int32
	l := remote.NewLoader("observed", func(context.Context) (string, error) {
		if calls.Add(1) < 2 {
			return "", errors.New("first try fails")
		}
		return "module", nil
	},
		remote.WithMaxRetries(2),
		remote.WithRetryDelay(5*time.Millisecond),
	)
	defer l.Close()

	l.SetHooks(remote.Hooks[string]{
		OnLoadStart: func(attempt int) {
			mu.Lock()
			trace = append(trace, "start")
			mu.Unlock()
			assert.Positive(t, attempt)
		},
		OnLoadError: func(err error, attempt int) {
			mu.Lock()
			trace = append(trace, "error")
			mu.Unlock()
			assert.Error(t, err)
		},
		OnRetry: func(nextAttempt int, delay time.Duration, err error) {
			mu.Lock()
			trace = append(trace, "retry")
			mu.Unlock()
			assert.Equal(t, 2, nextAttempt)
			assert.Positive(t, delay)
		},
		OnLoadSuccess: func(module string, attempts int) {
			mu.Lock()
			trace = append(trace, "success")
			mu.Unlock()
			assert.Equal(t, "module", module)
			assert.Equal(t, 2, attempts)
		},
	})

	require.NoError(t, l.Load(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start", "error", "retry", "start", "success"}, trace)
}
