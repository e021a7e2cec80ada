//go:build integration

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

func amqpURI(ctx context.Context, t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_RABBITMQ_URL"); url != "" {
		return url
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-management",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestIntegration_PublishUsage(t *testing.T) {
	ctx := context.Background()

	conn, err := Connect(amqpURI(ctx, t), 10, time.Second)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ch, err := SetupChannel(conn, "editor.usage", "usage.recorded")
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()

	p := NewPublisher(ch, "editor.usage", "usage.recorded")
	event := models.UsageEvent{EntryID: "e-1", UserID: "u-1", Endpoint: "/api/edit", InputTokens: 3, OutputTokens: 4, CreatedAt: time.Now().UTC()}
	require.NoError(t, p.PublishUsage(ctx, event))

	deliveries, err := ch.Consume(UsageQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		var got models.UsageEvent
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, "e-1", got.EntryID)
		assert.EqualValues(t, 4, got.OutputTokens)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for usage event")
	}
}
