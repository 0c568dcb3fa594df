package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const inflightKeyPrefix = "reconcile:inflight:"

// RedisFlags implements Flags with SETNX + TTL, so a crashed pass cannot
// hold a record forever.
type RedisFlags struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFlags creates Redis-backed in-flight flags.
func NewRedisFlags(client *redis.Client, ttl time.Duration) *RedisFlags {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisFlags{client: client, ttl: ttl}
}

func (f *RedisFlags) TryAcquire(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.client.SetNX(ctx, inflightKeyPrefix+id.String(), 1, f.ttl).Result()
}

func (f *RedisFlags) Release(ctx context.Context, id uuid.UUID) error {
	return f.client.Del(ctx, inflightKeyPrefix+id.String()).Err()
}

// MemoryFlags is an in-process Flags for tests.
type MemoryFlags struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

// NewMemoryFlags creates empty in-memory flags.
func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{held: make(map[uuid.UUID]bool)}
}

func (f *MemoryFlags) TryAcquire(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[id] {
		return false, nil
	}
	f.held[id] = true
	return true, nil
}

func (f *MemoryFlags) Release(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, id)
	return nil
}
