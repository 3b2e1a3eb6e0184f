package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/arcfront/shellbus/config"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/remote"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// [CLEAN_INJECTION] Assemble the shell from configuration: inline
		// remotes plus the optional manifest file.
		func(cfg *config.Config, e bus.Emitter, log *slog.Logger) (*ShellService, error) {
			remotes := append([]config.Remote(nil), cfg.Remotes.List...)
			if cfg.Remotes.File != "" {
				fromFile, err := config.ReadRemotesFile(cfg.Remotes.File)
				if err != nil {
					return nil, err
				}
				remotes = append(remotes, fromFile...)
			}
			return NewShellService(remotes,
				WithBus(e),
				WithLogger(log),
				WithLoaderOptions(
					remote.WithTimeout(cfg.Loader.Timeout),
					remote.WithMaxRetries(cfg.Loader.MaxRetries),
					remote.WithRetryDelay(cfg.Loader.RetryDelay),
					remote.WithAutoRetry(cfg.Loader.AutoRetry),
				),
			), nil
		},
		fx.Annotate(
			func(s *ShellService) *ShellService { return s },
			fx.As(new(Sheller)),
		),
	),

	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, s *ShellService, sh Sheller, log *slog.Logger) error {
		var w *Watcher
		if cfg.Remotes.File != "" {
			var err error
			w, err = NewWatcher(cfg.Remotes.File, s, WithWatchLogger(log))
			if err != nil {
				return err
			}
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				if w != nil {
					w.Start()
				}
				// Boot off the hook's deadline; retry budgets can outlive it.
				go func() {
					_ = sh.LoadAll(context.Background())
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				// [GRACEFUL_SHUTDOWN] stop watching first, then tear down
				// loaders so in-flight sequences unwind.
				if w != nil {
					_ = w.Close()
				}
				s.Close()
				return nil
			},
		})
		return nil
	}),
)
