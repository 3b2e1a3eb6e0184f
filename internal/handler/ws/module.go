package ws

import (
	"go.uber.org/fx"

	"github.com/arcfront/shellbus/config"
	httpsrv "github.com/arcfront/shellbus/infra/server/http"
)

var Module = fx.Module("shell-ws",
	fx.Provide(
		NewWSHandler,
	),
	fx.Invoke(RegisterWSRoutes),
)

func RegisterWSRoutes(
	server *httpsrv.Server,
	handler *WSHandler,
	cfg *config.Config,
) {
	if !cfg.Server.Devtools {
		return
	}
	server.Mux.Get("/ws/events", handler.ServeHTTP)
}
