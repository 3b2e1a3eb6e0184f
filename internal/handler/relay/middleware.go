package relay

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
)

// CorrelationIDKey is the metadata slot correlation ids travel in.
const CorrelationIDKey = "correlation_id"

// [CORRELATION_MIDDLEWARE]
// Ensures correlation id persistence through the call chain.
func CorrelationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := msg.Metadata.Get(CorrelationIDKey)
		if correlationID == "" {
			correlationID = uuid.NewString()
			msg.Metadata.Set(CorrelationIDKey, correlationID)
		}

		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
// Structured logging with latency and correlation id.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("MESSAGE_HANDLED",
				"msg_id", msg.UUID,
				"correlation_id", msg.Metadata.Get(CorrelationIDKey),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}

// [RETRY_MIDDLEWARE]
func NewRetryMiddleware() middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Second * 2,
		MaxInterval:     time.Second * 15,
		Multiplier:      2.0,
	}
}
