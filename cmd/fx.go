package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"

	"github.com/arcfront/shellbus/config"
	infrapubsub "github.com/arcfront/shellbus/infra/pubsub"
	httpsrv "github.com/arcfront/shellbus/infra/server/http"
	adapterpubsub "github.com/arcfront/shellbus/internal/adapter/pubsub"
	"github.com/arcfront/shellbus/internal/authstate"
	"github.com/arcfront/shellbus/internal/devtools"
	"github.com/arcfront/shellbus/internal/domain/bus"
	httphandler "github.com/arcfront/shellbus/internal/handler/http"
	"github.com/arcfront/shellbus/internal/handler/relay"
	"github.com/arcfront/shellbus/internal/handler/ws"
	"github.com/arcfront/shellbus/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	opts := []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		// Root-level so every consumer of Sheller sees the logged boundary.
		fx.Decorate(service.NewShellMiddleware),
		bus.Module,
		devtools.Module,
		service.Module,
		authstate.Module,
		httphandler.Module,
		ws.Module,
		httpsrv.Module,
	}

	if cfg.PubSub.Driver != "off" {
		opts = append(opts,
			fx.Provide(ProvidePubSub, infrapubsub.NewInstanceID),
			adapterpubsub.Module,
			relay.Module,
		)
	}

	if cfg.Auth.Token != "" {
		opts = append(opts, fx.Invoke(demoLogin))
	}

	return fx.New(opts...)
}

// ProvideLogger builds the process-wide slog root from config and installs
// it as the default.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}

	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(h).With("service", cfg.Service.Name)
	slog.SetDefault(log)
	return log
}

func ProvideWatermillLogger(log *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(log)
}

func ProvidePubSub(lc fx.Lifecycle, cfg *config.Config, wlog watermill.LoggerAdapter) (*infrapubsub.PubSub, error) {
	ps, err := infrapubsub.NewPubSub(cfg, wlog)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return ps.Close() // [GRACEFUL_SHUTDOWN]
		},
	})
	return ps, nil
}

// demoLogin opens a session from the configured token once the app is up,
// mostly for local demos and smoke tests.
func demoLogin(lc fx.Lifecycle, cfg *config.Config, store *authstate.Store, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := store.Login(ctx, cfg.Auth.Token); err != nil {
				log.Warn("demo login rejected", "error", err)
			}
			return nil
		},
	})
}
