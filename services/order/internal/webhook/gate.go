package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultGateTTL = 24 * time.Hour

// Gate claims an event id for processing. A claim that fails must be
// released so the provider's retry can go through.
type Gate interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisGate struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisGate(client *redis.Client) *RedisGate {
	return &RedisGate{Client: client, Prefix: "webhook:event:", TTL: DefaultGateTTL}
}

func (g *RedisGate) key(eventID string) string {
	return g.Prefix + eventID
}

func (g *RedisGate) Acquire(ctx context.Context, eventID string) (bool, error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultGateTTL
	}
	return g.Client.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (g *RedisGate) Release(ctx context.Context, eventID string) error {
	return g.Client.Del(ctx, g.key(eventID)).Err()
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
