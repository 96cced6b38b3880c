package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counts in Redis. INCR is atomic, so concurrent
// requests never lose updates, unlike whole-file rewrites.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, clientID string) (int, error) {
	n, err := s.client.Get(ctx, key(clientID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota for %s: %w", clientID, err)
	}
	return n, nil
}

func (s *RedisStore) Increment(ctx context.Context, clientID string) (int, error) {
	n, err := s.client.Incr(ctx, key(clientID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment quota for %s: %w", clientID, err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(clientID string) string {
	return "quota:" + clientID
}
