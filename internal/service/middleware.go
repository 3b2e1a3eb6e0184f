package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcfront/shellbus/config"
	"github.com/arcfront/shellbus/internal/domain/model"
	"github.com/arcfront/shellbus/internal/remote"
)

// ShellMiddleware implements [DECORATOR_PATTERN] to add observability
// to shell orchestration without touching business logic.
type ShellMiddleware struct {
	Next   Sheller
	Logger *slog.Logger
}

// NewShellMiddleware creates a new logging decorator for the Sheller.
func NewShellMiddleware(next Sheller, logger *slog.Logger) Sheller {
	return &ShellMiddleware{
		Next:   next,
		Logger: logger,
	}
}

// LoadAll wraps the boot fan-out with execution timing and outcome logging.
func (m *ShellMiddleware) LoadAll(ctx context.Context) error {
	start := time.Now()

	err := m.Next.LoadAll(ctx)

	// [OBSERVABILITY] Scoped logging for boot auditing
	duration := time.Since(start)

	if err != nil {
		m.Logger.Error("SHELL_BOOT_DEGRADED",
			"err", err,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.Logger.Debug("SHELL_BOOT_COMPLETED",
			"duration_ms", duration.Milliseconds(),
		)
	}

	return err
}

// Load wraps a single on-demand load request.
func (m *ShellMiddleware) Load(ctx context.Context, name string) error {
	start := time.Now()

	err := m.Next.Load(ctx, name)
	if err != nil {
		m.Logger.Warn("REMOTE_LOAD_REQUEST_FAILED",
			"remote", name,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return err
}

// Retry wraps the user-facing retry action.
func (m *ShellMiddleware) Retry(ctx context.Context, name string) error {
	start := time.Now()

	err := m.Next.Retry(ctx, name)
	if err != nil {
		m.Logger.Warn("REMOTE_RETRY_REQUEST_FAILED",
			"remote", name,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return err
}

func (m *ShellMiddleware) Status() map[string]remote.Status[*model.RemoteModule] {
	return m.Next.Status()
}

func (m *ShellMiddleware) Describe() []model.RemoteStatus {
	return m.Next.Describe()
}

// Reload wraps registry swaps with outcome logging.
func (m *ShellMiddleware) Reload(ctx context.Context, remotes []config.Remote) error {
	err := m.Next.Reload(ctx, remotes)
	if err != nil {
		m.Logger.Error("REGISTRY_RELOAD_FAILED",
			"err", err,
			"remotes", len(remotes),
		)
	}
	return err
}
