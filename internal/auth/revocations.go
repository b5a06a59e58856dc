package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mathcode-academy/mathcode/internal/platform/cache"
)

// Revocations is a denylist of token ids.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocations keeps revoked ids in process memory.
type MemoryRevocations struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, id)
		}
	}
	m.expires[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.expires[tokenID]
	return ok && m.now().Before(exp), nil
}

// RedisRevocations stores revoked ids in Redis so every instance sees a sign-out.
type RedisRevocations struct {
	cache *cache.Cache
}

func NewRedisRevocations(c *cache.Cache) *RedisRevocations {
	return &RedisRevocations{cache: c}
}

func revokedKey(tokenID string) string {
	return cache.Key("revoked", tokenID)
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := r.cache.Client.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.cache.Client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
