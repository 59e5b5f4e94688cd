package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

const channelPrefix = "sentify:notifications:"

// RedisHub delivers through Redis pub/sub so that any instance can reach a
// connection held by another. A PUBLISH with zero receivers means the user
// has no live connection anywhere.
type RedisHub struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Hub = (*RedisHub)(nil)

// NewRedisHub creates a hub on top of client.
func NewRedisHub(client *redis.Client, logger *zap.Logger) *RedisHub {
	return &RedisHub{
		client: client,
		logger: logger.Named("redis-hub"),
	}
}

// Channel returns the pub/sub channel of userID.
func Channel(userID int64) string {
	return channelPrefix + strconv.FormatInt(userID, 10)
}

func (h *RedisHub) Publish(ctx context.Context, userID int64, ev models.PushEvent) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("failed to encode event: %w", err)
	}
	receivers, err := h.client.Publish(ctx, Channel(userID), payload).Result()
	if err != nil {
		return false, fmt.Errorf("failed to publish event: %w", err)
	}
	return receivers > 0, nil
}

func (h *RedisHub) Subscribe(ctx context.Context, userID int64) (Subscription, error) {
	pubsub := h.client.Subscribe(ctx, Channel(userID))
	// Wait for the subscription confirmation so no publish is missed between
	// Subscribe returning and catch-up running.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan models.PushEvent, BufferSize),
		done:   make(chan struct{}),
	}
	go sub.forward(h.logger.With(zap.Int64("user_id", userID)))
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan models.PushEvent
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward(logger *zap.Logger) {
	defer close(s.events)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var ev models.PushEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("Dropping malformed push event", zap.Error(err))
				continue
			}
			// The publisher already counted this connection as a receiver, so
			// block rather than drop.
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan models.PushEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
