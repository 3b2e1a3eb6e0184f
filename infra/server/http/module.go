package http

import (
	"go.uber.org/fx"
)

var Module = fx.Module("http-server",
	fx.Provide(
		NewServer,
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: s.Start,
			// [GRACEFUL_SHUTDOWN]
			OnStop: s.Stop,
		})
	}),
)
