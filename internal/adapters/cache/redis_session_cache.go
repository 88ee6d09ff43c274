package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/storefront-identity/internal/domain"
)

const sessionKeyPrefix = "identity:session:"

// RedisSessionViewCache stores authenticated session views as JSON by subject.
type RedisSessionViewCache struct {
	client *redis.Client
}

func NewRedisSessionViewCache(client *redis.Client) *RedisSessionViewCache {
	return &RedisSessionViewCache{client: client}
}

func (c *RedisSessionViewCache) Get(ctx context.Context, subjectID string) (*domain.SessionView, error) {
	raw, err := c.client.Get(ctx, sessionKey(subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSessionView(raw)
}

func (c *RedisSessionViewCache) Set(ctx context.Context, view domain.SessionView, ttl time.Duration) error {
	if view.ID == "" {
		return fmt.Errorf("%w: session view has no subject", domain.ErrInvalidInput)
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(view.ID), raw, ttl).Err()
}

func (c *RedisSessionViewCache) Invalidate(ctx context.Context, subjectID string) error {
	return c.client.Del(ctx, sessionKey(subjectID)).Err()
}

func sessionKey(subjectID string) string {
	return sessionKeyPrefix + subjectID
}

// decodeSessionView treats a corrupt entry as a miss.
func decodeSessionView(raw []byte) (*domain.SessionView, error) {
	var view domain.SessionView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, nil
	}
	if view.ID == "" || view.Lifecycle != domain.LifecycleAuthenticated {
		return nil, nil
	}
	return &view, nil
}
