package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannelPrefix prefixes the per-user cart channel.
const DefaultRedisChannelPrefix = "cart_updated"

// RedisTransport receives cart payloads published on a per-user channel.
type RedisTransport struct {
	client *redis.Client
	prefix string
}

// NewRedisTransport creates a transport subscribing to "<prefix>:<userID>".
func NewRedisTransport(client *redis.Client, prefix string) *RedisTransport {
	if prefix == "" {
		prefix = DefaultRedisChannelPrefix
	}
	return &RedisTransport{client: client, prefix: prefix}
}

func (t *RedisTransport) Name() string { return "redis" }

// Channel returns the channel carrying updates for userID.
func (t *RedisTransport) Channel(userID string) string {
	return t.prefix + ":" + userID
}

func (t *RedisTransport) Subscribe(ctx context.Context, userID string, deliver DeliverFunc) error {
	pubsub := t.client.Subscribe(ctx, t.Channel(userID))
	defer pubsub.Close()

	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", t.Channel(userID), err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			deliver(ctx, []byte(msg.Payload))
		}
	}
}
