// Package pubsub builds the watermill transport pair the cross-host bridge
// runs on. Driver "channel" keeps everything in-process, driver "amqp"
// binds a durable topic exchange so several shell instances stay in sync.
package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/arcfront/shellbus/config"
)

// InstanceID identifies this process on the bridge so it can recognize and
// drop its own broadcasts when they come back around.
type InstanceID string

func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// PubSub bundles both directions of the bridge transport.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewPubSub builds the transport for the configured driver. Driver "off"
// yields nil and the bridge stays unwired.
func NewPubSub(cfg *config.Config, wlog watermill.LoggerAdapter) (*PubSub, error) {
	switch cfg.PubSub.Driver {
	case "channel":
		goch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, wlog)
		return &PubSub{Publisher: goch, Subscriber: goch}, nil

	case "amqp":
		amqpCfg := newTopicConfig(cfg.PubSub.URL, cfg.PubSub.Exchange, cfg.Service.Name)
		pub, err := amqp.NewPublisher(amqpCfg, wlog)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, wlog)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
		}
		return &PubSub{Publisher: pub, Subscriber: sub}, nil

	case "off":
		return nil, nil

	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.PubSub.Driver)
	}
}

// Close releases both directions. Safe on a shared instance such as the
// in-process channel driver.
func (ps *PubSub) Close() error {
	if ps == nil {
		return nil
	}
	pubErr := ps.Publisher.Close()
	if any(ps.Subscriber) == any(ps.Publisher) {
		return pubErr
	}
	if subErr := ps.Subscriber.Close(); subErr != nil {
		return subErr
	}
	return pubErr
}

// newTopicConfig shapes the durable topic exchange: one exchange for the
// whole bridge, the watermill topic doubling as the routing key, one queue
// per service per topic.
func newTopicConfig(url, exchange, queueSuffix string) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix))
	cfg.Exchange = amqp.ExchangeConfig{
		GenerateName: func(string) string { return exchange },
		Type:         "topic",
		Durable:      true,
	}
	cfg.QueueBind = amqp.QueueBindConfig{
		GenerateRoutingKey: func(topic string) string { return topic },
	}
	cfg.Publish = amqp.PublishConfig{
		GenerateRoutingKey: func(topic string) string { return topic },
	}
	return cfg
}
