package repositories

import (
	"context"
	"fmt"
	"time"

	"team-tasks/backend/logging"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const denylistPrefix = "session:revoked:"

// RedisSessionDenylist keeps revoked token ids in Redis with a TTL equal to
// the remaining lifetime of the token.
type RedisSessionDenylist struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewRedisSessionDenylist(ctx context.Context, addr, password string) (*RedisSessionDenylist, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logging.Logger.Infof("Event ID: REDIS_CONNECTED, Description: Connected to Redis at %s", addr)
	return newRedisSessionDenylist(client), nil
}

func newRedisSessionDenylist(client *redis.Client) *RedisSessionDenylist {
	return &RedisSessionDenylist{
		client:  client,
		breaker: newBreaker("redis-denylist-cb", 2*time.Second),
		now:     time.Now,
	}
}

func (d *RedisSessionDenylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.client.Set(ctx, denylistPrefix+tokenID, "1", ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (d *RedisSessionDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	out, err := d.breaker.Execute(func() (interface{}, error) {
		return d.client.Exists(ctx, denylistPrefix+tokenID).Result()
	})
	if err != nil {
		return false, fmt.Errorf("failed to check session denylist: %w", err)
	}
	n, _ := out.(int64)
	return n > 0, nil
}

func (d *RedisSessionDenylist) Close() error {
	return d.client.Close()
}
