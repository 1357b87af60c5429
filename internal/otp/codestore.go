package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeStore holds issued codes until they expire or are used.
type CodeStore interface {
	Put(ctx context.Context, phone, code string, ttl time.Duration) error
	Get(ctx context.Context, phone string) (string, bool, error)
	Delete(ctx context.Context, phone string) error
}

type storedCode struct {
	code      string
	expiresAt time.Time
}

// MemoryCodeStore keeps codes in process memory.
type MemoryCodeStore struct {
	mu    sync.Mutex
	clock Clock
	codes map[string]storedCode
}

var _ CodeStore = (*MemoryCodeStore)(nil)

// NewMemoryCodeStore creates an empty store. A nil clock uses the wall clock.
func NewMemoryCodeStore(clock Clock) *MemoryCodeStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryCodeStore{clock: clock, codes: make(map[string]storedCode)}
}

func (s *MemoryCodeStore) Put(_ context.Context, phone, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = storedCode{code: code, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(_ context.Context, phone string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.codes[phone]
	if !ok {
		return "", false, nil
	}
	if !s.clock.Now().Before(sc.expiresAt) {
		delete(s.codes, phone)
		return "", false, nil
	}
	return sc.code, true, nil
}

func (s *MemoryCodeStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	delete(s.codes, phone)
	s.mu.Unlock()
	return nil
}

const redisCodePrefix = "otp:code:"

// RedisCodeStore shares codes across replicas so a verify can land on any instance.
type RedisCodeStore struct {
	client *redis.Client
}

var _ CodeStore = (*RedisCodeStore)(nil)

// NewRedisCodeStore wraps client.
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	if client == nil {
		panic("otp: redis client cannot be nil")
	}
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Put(ctx context.Context, phone, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisCodePrefix+phone, code, ttl).Err(); err != nil {
		return fmt.Errorf("otp: redis set code: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Get(ctx context.Context, phone string) (string, bool, error) {
	code, err := s.client.Get(ctx, redisCodePrefix+phone).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("otp: redis get code: %w", err)
	}
	return code, true, nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, redisCodePrefix+phone).Err(); err != nil {
		return fmt.Errorf("otp: redis delete code: %w", err)
	}
	return nil
}
