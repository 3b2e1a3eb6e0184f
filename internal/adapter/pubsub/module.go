package pubsub

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	infrapubsub "github.com/arcfront/shellbus/infra/pubsub"
	"github.com/arcfront/shellbus/internal/domain/bus"
)

var Module = fx.Module("exporter",
	fx.Provide(
		func(ps *infrapubsub.PubSub, id infrapubsub.InstanceID, log *slog.Logger) *Exporter {
			return NewExporter(ps.Publisher,
				WithOrigin(string(id)),
				WithLogger(log),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, e *Exporter, sub bus.Subscriber) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return e.Attach(sub)
			},
			OnStop: func(context.Context) error {
				e.Detach() // [GRACEFUL_SHUTDOWN] stop exporting before the transport closes
				return nil
			},
		})
	}),
)
