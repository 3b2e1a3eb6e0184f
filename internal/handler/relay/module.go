package relay

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	infrapubsub "github.com/arcfront/shellbus/infra/pubsub"
)

var Module = fx.Module("relay",
	fx.Provide(
		NewRelayHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(lc fx.Lifecycle, router *message.Router, h *RelayHandler, ps *infrapubsub.PubSub) error {
		if err := h.RegisterHandlers(router, ps); err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					_ = router.Run(runCtx)
				}()
				select {
				case <-router.Running():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(context.Context) error {
				cancel() // [GRACEFUL_SHUTDOWN] drain consumers before the transport closes
				return router.Close()
			},
		})
		return nil
	}),
)
