package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel snapshots are published on.
const DefaultRedisChannel = "gateway.metrics"

type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes snapshots with Redis PUBLISH.
type RedisPublisher struct {
	client  redisPubSub
	channel string
}

// NewRedisPublisherFromClient publishes through an existing client.
func NewRedisPublisherFromClient(client *redis.Client, channel string) *RedisPublisher {
	return newRedisPublisher(client, channel)
}

func newRedisPublisher(client redisPubSub, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Name implements Publisher.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Channel is the pub/sub channel in use.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish implements Publisher. Having no subscribers is not an error.
func (p *RedisPublisher) Publish(ctx context.Context, body []byte) error {
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", p.channel, err)
	}
	return nil
}

// HealthCheck implements Publisher.
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close implements Publisher.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
