package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/storefront-identity/internal/ports"
)

const changeChannelPrefix = "identity:changes:"

// RedisIdentityChangeBus carries identity changes between API replicas over
// Redis Pub/Sub. Delivery is at-most-once; a subscriber that misses a change
// still converges on the next cache miss.
type RedisIdentityChangeBus struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisIdentityChangeBus(client *redis.Client, logger *slog.Logger) *RedisIdentityChangeBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisIdentityChangeBus{client: client, logger: logger}
}

func (b *RedisIdentityChangeBus) Publish(ctx context.Context, change ports.IdentityChange) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, changeChannel(change.SubjectID), raw).Err()
}

func (b *RedisIdentityChangeBus) Subscribe(ctx context.Context, subjectID string) (<-chan ports.IdentityChange, func(), error) {
	pubsub := b.client.Subscribe(ctx, changeChannel(subjectID))
	// Wait for the subscription confirmation so no change published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", changeChannel(subjectID), err)
	}

	out := make(chan ports.IdentityChange, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				change, err := decodeChange(msg.Payload)
				if err != nil {
					b.logger.WarnContext(ctx, "dropping malformed identity change",
						"module", "cache.change_bus",
						"layer", "adapter",
						"operation", "subscribe",
						"outcome", "failure",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, stop, nil
}

func changeChannel(subjectID string) string {
	return changeChannelPrefix + subjectID
}

func decodeChange(payload string) (ports.IdentityChange, error) {
	var change ports.IdentityChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return ports.IdentityChange{}, err
	}
	if change.SubjectID == "" || change.Kind == "" {
		return ports.IdentityChange{}, fmt.Errorf("identity change missing subject or kind")
	}
	return change, nil
}
