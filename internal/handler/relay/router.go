// Package relay consumes exported shell events from the bridge and replays
// them on the local bus, so every shell instance sees what the others did.
package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	infrapubsub "github.com/arcfront/shellbus/infra/pubsub"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
)

const (
	// ------------------- TOPICS (ROUTING KEYS) -----------------
	TopicRemoteLoaded     = "shell.v1.remote.loaded"
	TopicRemoteLoadFailed = "shell.v1.remote.load_failed"
	TopicAuthLogin        = "shell.v1.auth.login"
	TopicAuthLogout       = "shell.v1.auth.logout"
	TopicRegistryUpdated  = "shell.v1.registry.updated"
	TopicShellReady       = "shell.v1.shell.ready"

	// ------------------- QUEUES (CONSUMERS) --------------------
	RelayPoisonTopic = "shellbus.relay.v1.poison"
)

type RelayHandler struct {
	emitter bus.Emitter
	logger  *slog.Logger
	origin  string
}

// NewRelayHandler builds the consumer side of the bridge. origin is this
// instance's identity; messages we exported ourselves are dropped.
func NewRelayHandler(emitter bus.Emitter, logger *slog.Logger, origin infrapubsub.InstanceID) *RelayHandler {
	return &RelayHandler{
		emitter: emitter,
		logger:  logger,
		origin:  string(origin),
	}
}

func NewWatermillRouter(wlog watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{
		CloseTimeout: 15 * time.Second,
	}, wlog)
}

// [REGISTRATION_PIPELINE]
func (h *RelayHandler) RegisterHandlers(router *message.Router, ps *infrapubsub.PubSub) error {
	poison, err := middleware.PoisonQueue(ps.Publisher, RelayPoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	// One consumer per canonical exported topic. The set as a whole covers
	// everything the exporter publishes under shell.#.
	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_REMOTE_LOADED", TopicRemoteLoaded, Bind[event.RemoteLoaded](h, event.TypeRemoteLoaded)},
		{"ON_REMOTE_LOAD_FAILED", TopicRemoteLoadFailed, Bind[event.RemoteLoadFailed](h, event.TypeRemoteLoadFailed)},
		{"ON_AUTH_LOGIN", TopicAuthLogin, Bind[event.AuthLogin](h, event.TypeAuthLogin)},
		{"ON_AUTH_LOGOUT", TopicAuthLogout, Bind[event.AuthLogout](h, event.TypeAuthLogout)},
		{"ON_REGISTRY_UPDATED", TopicRegistryUpdated, Bind[event.RegistryUpdated](h, event.TypeRegistryUpdated)},
		{"ON_SHELL_READY", TopicShellReady, Bind[event.ShellReady](h, event.TypeShellReady)},
	}

	for _, c := range configs {
		router.AddNoPublisherHandler(c.name, c.topic, ps.Subscriber, c.handler).AddMiddleware(
			CorrelationIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("RELAY_PIPELINE_READY", "topics", len(configs))
	return nil
}
