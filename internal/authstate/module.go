package authstate

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/arcfront/shellbus/internal/domain/bus"
)

var Module = fx.Module("authstate",
	fx.Provide(
		// [CLEAN_INJECTION] Build the session store using Functional Options
		func(e bus.Emitter, log *slog.Logger) *Store {
			return New(
				WithBus(e),
				WithLogger(log),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Store) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.Close() // [GRACEFUL_SHUTDOWN] disarm the expiry watchdog
				return nil
			},
		})
	}),
)
