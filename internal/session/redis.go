package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on Redis. Sessions are JSON values under a
// key prefix with a server-side TTL; Consume relies on GETDEL so that two
// callbacks racing on the same state cannot both observe the session.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed session store and verifies the
// connection with a ping.
func NewRedisStore(
	ctx context.Context,
	client *redis.Client,
	keyPrefix string,
	ttl time.Duration,
) (*RedisStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

func (r *RedisStore) key(id string) string {
	return r.keyPrefix + id
}

// Create persists the session as JSON with the store TTL. SETNX keeps a
// colliding id from silently replacing a live flow.
func (r *RedisStore) Create(ctx context.Context, s *models.AuthSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(s.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

// Consume atomically reads and deletes the session via GETDEL.
func (r *RedisStore) Consume(ctx context.Context, id string) (*models.AuthSession, error) {
	data, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to consume session: %w", err)
	}

	var s models.AuthSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Delete removes a session without reading it.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Health checks the Redis connection.
func (r *RedisStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
