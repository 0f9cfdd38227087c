package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sessionguard/model"
	"sessionguard/utils"
)

// RedisSessionStore keeps session records under session:{userID}:{sessionID}
// with a per-key TTL. Redis reaping expired keys is the only
// garbage-collection mechanism for sessions.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(redisURL string) (*RedisSessionStore, error) {
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

	return &RedisSessionStore{client: client}, nil
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", userID, sessionID)
}

func sessionPattern(userID string) string {
	return fmt.Sprintf("session:%s:*", userID)
}

// ListSessionIDs enumerates live session ids for a user via SCAN.
func (s *RedisSessionStore) ListSessionIDs(ctx context.Context, userID string) ([]string, error) {
	timer := utils.TrackStoreOperation("scan", "sessions")
	defer timer.ObserveDuration()

	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}

	prefix := fmt.Sprintf("session:%s:", userID)
	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionPattern(userID), 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, key[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

// Put is an idempotent wholesale upsert with TTL.
func (s *RedisSessionStore) Put(ctx context.Context, session *model.Session, ttl time.Duration) error {
	timer := utils.TrackStoreOperation("set", "sessions")
	defer timer.ObserveDuration()

	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if session.SessionID == "" || session.UserID == "" {
		return fmt.Errorf("invalid session data: missing required fields")
	}
	if ttl <= 0 {
		return fmt.Errorf("session has already expired")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionKey(session.UserID, session.SessionID)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get returns nil for an absent record. Unknown fields in the stored JSON
// are dropped on decode rather than propagated.
func (s *RedisSessionStore) Get(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	timer := utils.TrackStoreOperation("get", "sessions")
	defer timer.ObserveDuration()

	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("userID and sessionID cannot be empty")
	}

	data, err := s.client.Get(ctx, sessionKey(userID, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	// The TTL should have reaped this, but the payload expiry is
	// authoritative if the two ever disagree.
	if time.Now().After(session.ExpiresAt) {
		s.client.Del(ctx, sessionKey(userID, sessionID))
		return nil, nil
	}

	return &session, nil
}

// Delete reports whether a record was removed, which lets the authority use
// it as a compare-and-delete during rotation.
func (s *RedisSessionStore) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	timer := utils.TrackStoreOperation("del", "sessions")
	defer timer.ObserveDuration()

	if userID == "" || sessionID == "" {
		return false, fmt.Errorf("userID and sessionID cannot be empty")
	}

	removed, err := s.client.Del(ctx, sessionKey(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return removed > 0, nil
}

// DeleteAll removes every session for a user and returns the count.
func (s *RedisSessionStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	timer := utils.TrackStoreOperation("del", "sessions")
	defer timer.ObserveDuration()

	ids, err := s.ListSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(userID, id)
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return int(removed), nil
}

// IsConnected checks if the Redis connection is alive
func (s *RedisSessionStore) IsConnected() bool {
	if s == nil || s.client == nil {
		return false
	}
	return s.client.Ping(context.Background()).Err() == nil
}

// Close closes the Redis connection
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
