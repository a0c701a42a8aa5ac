package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers signed cookies that were logged out before they expired.
type Revoker interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// MemoryRevoker keeps revocations in process memory (single instance only).
type MemoryRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{ids: make(map[string]time.Time)}
}

func (r *MemoryRevoker) Revoke(_ context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = time.Now().Add(ttl)
	return nil
}

func (r *MemoryRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.ids[id]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(r.ids, id)
		return false, nil
	}
	return true, nil
}

// RedisRevoker stores revocations in Redis with the cookie's remaining lifetime as TTL.
type RedisRevoker struct {
	client *redis.Client
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

func (r *RedisRevoker) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, "librarydesk:revoked:"+id, "1", ttl).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	n, err := r.client.Exists(ctx, "librarydesk:revoked:"+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
