package drivers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/session"
)

const (
	// Redis key prefix for sessions
	sessionKeyPrefix = "receipts:session:"
	// Default TTL for session keys (24 hours)
	defaultTTL = 24 * time.Hour
)

// RedisStore implements session.Store using Redis with optimistic locking,
// so several service instances can share one ledger.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-based session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Create implements session.Store.
// Creates a new session with Version set to 1 and sets TTL. SETNX makes the
// creation exclusive across processes.
func (s *RedisStore) Create(ctx context.Context, data *session.Session) error {
	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	val, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.key(data.CustomerKey), val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return receipts.ErrAlreadyExists
	}
	return nil
}

// Get implements session.Store.
// Returns nil if the session is not found (not an error).
// Refreshes TTL on every read.
func (s *RedisStore) Get(ctx context.Context, customerKey string) (*session.Session, error) {
	key := s.key(customerKey)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	var data session.Session
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}

	// Refresh TTL on read; a failure only shortens the session's life.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &data, nil
}

// Update implements session.Store.
// Implements optimistic locking using Redis WATCH/MULTI/EXEC.
// Refreshes TTL on every write.
func (s *RedisStore) Update(ctx context.Context, data *session.Session) error {
	key := s.key(data.CustomerKey)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return receipts.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored session.Session
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}

		// Check version for optimistic locking
		if stored.Version != data.Version {
			return receipts.ErrVersionConflict
		}

		next := data.Clone()
		next.Version++
		next.UpdatedAt = time.Now()

		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		data.Version = next.Version
		data.UpdatedAt = next.UpdatedAt
		return nil
	}, key)

	// The key changed between WATCH and EXEC.
	if errors.Is(err, redis.TxFailedErr) {
		return receipts.ErrVersionConflict
	}
	return err
}

// Delete implements session.Store.
func (s *RedisStore) Delete(ctx context.Context, customerKey string) error {
	return s.client.Del(ctx, s.key(customerKey)).Err()
}

// Close implements session.Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a customer.
func (s *RedisStore) key(customerKey string) string {
	return sessionKeyPrefix + customerKey
}

var _ session.Store = (*RedisStore)(nil)
