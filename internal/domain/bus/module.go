package bus

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/arcfront/shellbus/config"
)

var Module = fx.Module("bus",
	fx.Provide(
		// [CLEAN_INJECTION] Build the shared scope using Functional Options
		func(cfg *config.Config, log *slog.Logger) *Scope {
			return NewScope(
				WithName(cfg.Bus.Name),
				WithHistorySize(cfg.Bus.HistorySize),
				WithDebug(cfg.Bus.Debug),
				WithLogger(log),
			)
		},
		func(sc *Scope) *Bus { return sc.Bus() },
		fx.Annotate(
			func(b *Bus) *Bus { return b },
			fx.As(new(Emitter)),
		),
		fx.Annotate(
			func(b *Bus) *Bus { return b },
			fx.As(new(Subscriber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, sc *Scope) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sc.Close() // [GRACEFUL_SHUTDOWN] sever every subscription
				return nil
			},
		})
	}),
)
