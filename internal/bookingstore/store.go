// Package bookingstore correlates CRM "appointment created" webhooks with the
// browser polling that waits for them.
//
// The store is a dumb key/value table: callers normalize keys with the contact
// package before reading or writing. The default MemoryStore is local to one
// process, so a webhook landing on one replica is invisible to a poll served by
// another. Use RedisStore or DynamoStore when more than one instance runs.
package bookingstore

import (
	"context"
	"sync"
	"time"
)

// Record is the latest booking event seen for a contact key.
type Record struct {
	Key        string         `json:"key" dynamodbav:"contactKey"`
	Email      string         `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone      string         `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Name       string         `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Source     string         `json:"source,omitempty" dynamodbav:"source,omitempty"`
	Payload    map[string]any `json:"payload,omitempty" dynamodbav:"payload,omitempty"`
	RecordedAt time.Time      `json:"recorded_at" dynamodbav:"recordedAt"`
}

// Store is the key/value contract used by the booking webhook and the poller.
type Store interface {
	RecordBooking(ctx context.Context, key string, rec Record) error
	HasBooking(ctx context.Context, key string) (bool, error)
	GetBooking(ctx context.Context, key string) (*Record, bool, error)
}

// MemoryStore keeps bookings in a process-local map. Last write wins.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]Record)}
}

// RecordBooking overwrites any entry for key. It never fails.
func (s *MemoryStore) RecordBooking(_ context.Context, key string, rec Record) error {
	rec.Key = key
	s.mu.Lock()
	s.bookings[key] = rec
	s.mu.Unlock()
	return nil
}

// HasBooking reports whether key has been recorded.
func (s *MemoryStore) HasBooking(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bookings[key]
	return ok, nil
}

// GetBooking returns a copy of the stored record.
func (s *MemoryStore) GetBooking(_ context.Context, key string) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bookings[key]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

// Len returns the number of keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}
