//go:build integration

package push

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisHub_PublishReachesSubscriber(t *testing.T) {
	client := startRedis(t)
	hub := NewRedisHub(client, zap.NewNop())
	ctx := context.Background()

	delivered, err := hub.Publish(ctx, 42, models.PushEvent{ID: 1})
	require.NoError(t, err)
	assert.False(t, delivered, "nobody is listening yet")

	sub, err := hub.Subscribe(ctx, 42)
	require.NoError(t, err)
	defer sub.Close()

	ev := models.PushEvent{ID: 2, Message: models.NewArticlesMessage("NVDA"), Time: "2024-03-05 10:00:00"}
	delivered, err = hub.Publish(ctx, 42, ev)
	require.NoError(t, err)
	assert.True(t, delivered)

	select {
	case got := <-sub.Events():
		assert.Equal(t, ev, got)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
