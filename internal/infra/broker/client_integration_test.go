//go:build integration

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestClient_RabbitMQ(t *testing.T) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Durable = true
	client := New(cfg)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, StateConnected, client.State())

	payload := []byte(`[{"id":1,"source_code":"contract A {}"}]`)
	require.NoError(t, client.Publish(ctx, "contracts_queue", payload))

	consumeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	err = client.Consume(consumeCtx, "contracts_queue", func(ctx context.Context, d Delivery) {
		require.NoError(t, d.Ack(false))
		received <- d.Body
		cancel()
	})
	require.NoError(t, err)

	select {
	case body := <-received:
		assert.JSONEq(t, string(payload), string(body))
	default:
		t.Fatal("no delivery received")
	}
}
