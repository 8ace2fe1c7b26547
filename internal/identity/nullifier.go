package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NullifierKeyPrefix namespaces nullifier keys in Redis
const NullifierKeyPrefix = "colancer:nullifier:"

// NullifierStore records spent proof nullifiers so a proof registers at most once
type NullifierStore interface {
	// Claim marks the nullifier as used. It returns false if it was already used.
	Claim(ctx context.Context, nullifier string) (bool, error)
	// Release undoes a Claim whose registration did not complete.
	Release(ctx context.Context, nullifier string) error
}

// RedisNullifierStore keeps nullifiers in Redis using SETNX
type RedisNullifierStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisNullifierStore creates a store. ttl 0 keeps nullifiers forever.
func NewRedisNullifierStore(client *redis.Client, ttl time.Duration) *RedisNullifierStore {
	return &RedisNullifierStore{client: client, ttl: ttl}
}

// Claim implements NullifierStore
func (s *RedisNullifierStore) Claim(ctx context.Context, nullifier string) (bool, error) {
	ok, err := s.client.SetNX(ctx, nullifierKey(nullifier), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim nullifier: %w", err)
	}
	return ok, nil
}

// Release implements NullifierStore
func (s *RedisNullifierStore) Release(ctx context.Context, nullifier string) error {
	if err := s.client.Del(ctx, nullifierKey(nullifier)).Err(); err != nil {
		return fmt.Errorf("failed to release nullifier: %w", err)
	}
	return nil
}

func nullifierKey(nullifier string) string {
	return NullifierKeyPrefix + strings.ToLower(nullifier)
}

// MemoryNullifierStore is a process-local NullifierStore for development and tests
type MemoryNullifierStore struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewMemoryNullifierStore creates an empty store
func NewMemoryNullifierStore() *MemoryNullifierStore {
	return &MemoryNullifierStore{used: make(map[string]struct{})}
}

// Claim implements NullifierStore
func (s *MemoryNullifierStore) Claim(ctx context.Context, nullifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(nullifier)
	if _, exists := s.used[key]; exists {
		return false, nil
	}
	s.used[key] = struct{}{}
	return true, nil
}

// Release implements NullifierStore
func (s *MemoryNullifierStore) Release(ctx context.Context, nullifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, strings.ToLower(nullifier))
	return nil
}
