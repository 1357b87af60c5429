package bookingstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "booking:"

// RedisStore shares booking records across replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. ttl <= 0 keeps records forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("bookingstore: redis client cannot be nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}
}

// RecordBooking stores rec as JSON, replacing any previous value.
func (s *RedisStore) RecordBooking(ctx context.Context, key string, rec Record) error {
	rec.Key = key
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bookingstore: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("bookingstore: redis set: %w", err)
	}
	return nil
}

// HasBooking checks key existence without decoding the value.
func (s *RedisStore) HasBooking(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("bookingstore: redis exists: %w", err)
	}
	return n > 0, nil
}

// GetBooking loads and decodes the record for key.
func (s *RedisStore) GetBooking(ctx context.Context, key string) (*Record, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("bookingstore: redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("bookingstore: decode record: %w", err)
	}
	return &rec, true, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}
