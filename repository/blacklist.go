package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sessionguard/utils"
)

// RedisRevocationRegistry records explicitly invalidated tokens under
// blacklist:access:{token} until their natural expiry. Self-expiring keys
// bound the registry to the number of concurrently-valid revoked tokens.
type RedisRevocationRegistry struct {
	client *redis.Client
}

func NewRedisRevocationRegistry(redisURL string) (*RedisRevocationRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRevocationRegistry{client: client}, nil
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:access:%s", token)
}

// Revoke blacklists a token for its remaining natural lifetime. A token
// already past its expiry has nothing left to revoke.
func (r *RedisRevocationRegistry) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	timer := utils.TrackStoreOperation("set", "blacklist")
	defer timer.ObserveDuration()

	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, blacklistKey(token), "true", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsRevoked checks the blacklist for a token.
func (r *RedisRevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	timer := utils.TrackStoreOperation("exists", "blacklist")
	defer timer.ObserveDuration()

	exists, err := r.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}

// IsConnected checks if the Redis connection is alive
func (r *RedisRevocationRegistry) IsConnected() bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(context.Background()).Err() == nil
}

// Close closes the Redis connection
func (r *RedisRevocationRegistry) Close() error {
	return r.client.Close()
}
