package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptoconnect/models"
)

type setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Redis keeps the most recent event of every stream under
// latest:<exchange>:<channel>:<symbol>.
type Redis struct {
	client setter
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects and pings the server before returning.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: opts.TTL}, nil
}

func (r *Redis) Name() string { return "redis" }

func LatestKey(ev models.Event) string {
	return "latest:" + Key(ev)
}

func (r *Redis) Write(ctx context.Context, ev models.Event) error {
	data, err := Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, LatestKey(ev), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest event in redis: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
