package http

import (
	"go.uber.org/fx"

	"github.com/arcfront/shellbus/config"
	httpsrv "github.com/arcfront/shellbus/infra/server/http"
)

var Module = fx.Module("shell-http",
	fx.Provide(
		NewAPIHandler,
	),
	fx.Invoke(RegisterAPIRoutes),
)

func RegisterAPIRoutes(
	server *httpsrv.Server,
	handler *APIHandler,
	cfg *config.Config,
) {
	server.Mux.Get("/healthz", handler.Health)
	if !cfg.Server.Devtools {
		return
	}
	handler.Routes(server.Mux)
}
