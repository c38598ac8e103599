package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes in-app notifications on per-user channels.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps a redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// UserChannel is the pub/sub channel carrying a user's notifications.
func UserChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func (p *RedisPublisher) Publish(ctx context.Context, userID uint, payload []byte) error {
	if err := p.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish user notification: %w", err)
	}
	return nil
}
