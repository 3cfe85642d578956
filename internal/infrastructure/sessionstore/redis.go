package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gym-session/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "gymsession"

// RedisStore keeps the session in Redis so several processes of one
// installation (CLI and serve mode, replicas behind a load balancer) share it.
// The key expires together with the session.
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisStore creates a store using an existing client. The session lives at
// "<prefix>:session:<name>".
func NewRedisStore(client *redis.Client, prefix, name string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if name == "" {
		name = "default"
	}
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("%s:session:%s", prefix, name),
		now:    time.Now,
	}
}

// NewRedisStoreWithURL creates a store from a redis:// URL.
func NewRedisStoreWithURL(url, prefix, name string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), prefix, name), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Load fetches the session; a missing key means no session.
func (s *RedisStore) Load(ctx context.Context) (*domain.StoredSession, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	var session domain.StoredSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: corrupt session entry: %w", domain.ErrStoreUnavailable, err)
	}
	return &session, nil
}

// Save stores the session with a TTL matching its expiry. Sessions without an
// expiry are stored without TTL.
func (s *RedisStore) Save(ctx context.Context, session *domain.StoredSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	var ttl time.Duration
	if session.ExpiresAt > 0 {
		ttl = time.Unix(session.ExpiresAt, 0).Sub(s.now())
		if ttl <= 0 {
			return s.Delete(ctx)
		}
	}

	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the session key.
func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
