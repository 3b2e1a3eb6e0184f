package pubsub_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arcfront/shellbus/internal/adapter/pubsub"
	"github.com/arcfront/shellbus/internal/domain/bus"
	"github.com/arcfront/shellbus/internal/domain/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic string
	msg   *message.Message
}

// capturePublisher records everything instead of talking to a broker.
type capturePublisher struct {
	mu   sync.Mutex
	got  []published
	fail error
}

func (p *capturePublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	for _, msg := range msgs {
		p.got = append(p.got, published{topic: topic, msg: msg})
	}
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.got...)
}

// keylessPayload opts into export but never produces a key.
type keylessPayload struct{}

func (keylessPayload) RoutingKey() string { return "" }

func TestExporterPublishesExportable(t *testing.T) {
	b := bus.New()
	pub := &capturePublisher{}
	e := pubsub.NewExporter(pub, pubsub.WithOrigin("node-a"))
	require.NoError(t, e.Attach(b))
	defer e.Detach()

	ev := b.Emit(context.Background(), event.TypeRemoteLoaded, event.RemoteLoaded{
		RemoteName: "checkout",
		Attempts:   2,
	}, bus.WithSource(event.SourceLoader), bus.WithCorrelationID("boot-1"))

	got := pub.all()
	require.Len(t, got, 1)
	assert.Equal(t, "shell.v1.remote.loaded", got[0].topic)
	assert.Equal(t, ev.ID, got[0].msg.UUID)
	assert.Equal(t, "node-a", got[0].msg.Metadata.Get(pubsub.MetaOrigin))
	assert.Equal(t, event.TypeRemoteLoaded, got[0].msg.Metadata.Get(pubsub.MetaEventType))

	var wire map[string]any
	require.NoError(t, json.Unmarshal(got[0].msg.Payload, &wire))
	assert.Equal(t, event.TypeRemoteLoaded, wire["type"])
	assert.Equal(t, "boot-1", wire["correlation_id"])
	payload, ok := wire["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "checkout", payload["remoteName"])
	assert.Equal(t, float64(2), payload["attempts"])
}

func TestExporterSkips(t *testing.T) {
	b := bus.New()
	pub := &capturePublisher{}
	e := pubsub.NewExporter(pub)
	require.NoError(t, e.Attach(b))
	defer e.Detach()

	t.Run("non-exportable payload", func(t *testing.T) {
		b.Emit(context.Background(), "CUSTOM", map[string]any{"note": "local only"})
		assert.Empty(t, pub.all())
	})

	t.Run("auth expiry stays local", func(t *testing.T) {
		b.Emit(context.Background(), event.TypeAuthExpired, event.AuthExpired{UserID: "u-1"})
		assert.Empty(t, pub.all())
	})

	t.Run("empty routing key", func(t *testing.T) {
		b.Emit(context.Background(), "CUSTOM", keylessPayload{})
		assert.Empty(t, pub.all())
	})

	t.Run("relayed events stay local", func(t *testing.T) {
		b.Emit(context.Background(), event.TypeRemoteLoaded, event.RemoteLoaded{RemoteName: "checkout"},
			bus.WithSource(event.SourceRelay))
		assert.Empty(t, pub.all(), "the bridge must never echo")
	})
}

func TestExporterRunsAfterApplicationHandlers(t *testing.T) {
	b := bus.New()

	var mu sync.Mutex
	var order []string

	pub := &capturePublisher{}
	e := pubsub.NewExporter(pub)
	require.NoError(t, e.Attach(b))
	defer e.Detach()

	_, err := b.Subscribe(event.TypeRemoteLoaded, func(context.Context, event.Event) error {
		mu.Lock()
		order = append(order, "app")
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	b.Emit(context.Background(), event.TypeRemoteLoaded, event.RemoteLoaded{RemoteName: "checkout"})

	require.Len(t, pub.all(), 1)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"app"}, order, "application handlers run before the export hop")
}

func TestExporterPublishFailureIsIsolated(t *testing.T) {
	b := bus.New()
	pub := &capturePublisher{fail: errors.New("broker down")}
	e := pubsub.NewExporter(pub)
	require.NoError(t, e.Attach(b))
	defer e.Detach()

	var delivered bool
	_, err := b.Subscribe(event.TypeRemoteLoaded, func(context.Context, event.Event) error {
		delivered = true
		return nil
	})
	require.NoError(t, err)

	b.Emit(context.Background(), event.TypeRemoteLoaded, event.RemoteLoaded{RemoteName: "checkout"})
	assert.True(t, delivered, "a broken bridge never blocks local delivery")
}

func TestExporterDetach(t *testing.T) {
	b := bus.New()
	pub := &capturePublisher{}
	e := pubsub.NewExporter(pub)
	require.NoError(t, e.Attach(b))

	e.Detach()
	e.Detach() // idempotent

	b.Emit(context.Background(), event.TypeRemoteLoaded, event.RemoteLoaded{RemoteName: "checkout"})
	assert.Empty(t, pub.all())
	assert.Zero(t, b.SubscriberCount(event.TypeRemoteLoaded))
}
