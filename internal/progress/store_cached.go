package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mathcode-academy/mathcode/internal/platform/cache"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Cache failures are logged and fall back to the backing store.
type CachedStore struct {
	next  Store
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedStore wraps next with a Redis cache whose entries expire after ttl.
func NewCachedStore(next Store, c *cache.Cache, ttl time.Duration) (*CachedStore, error) {
	if next == nil {
		return nil, fmt.Errorf("backing store is nil")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	return &CachedStore{next: next, cache: c, ttl: ttl}, nil
}

func progressKey(userID string) string { return cache.Key("progress", userID) }
func profileKey(userID string) string  { return cache.Key("profile", userID) }

func (s *CachedStore) GetProgress(ctx context.Context, userID string) (*UserProgress, error) {
	var cached UserProgress
	err := s.cache.GetJSON(ctx, progressKey(userID), &cached)
	if err == nil {
		if cached.CompletedLessons == nil {
			cached.CompletedLessons = []string{}
		}
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("progress cache read failed", "user_id", userID, "error", err)
	}

	p, err := s.next.GetProgress(ctx, userID)
	if err != nil || p == nil {
		return p, err
	}
	if err := s.cache.SetJSON(ctx, progressKey(userID), p, s.ttl); err != nil {
		slog.Warn("progress cache write failed", "user_id", userID, "error", err)
	}
	return p, nil
}

func (s *CachedStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var cached Profile
	err := s.cache.GetJSON(ctx, profileKey(userID), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("profile cache read failed", "user_id", userID, "error", err)
	}

	p, err := s.next.GetProfile(ctx, userID)
	if err != nil || p == nil {
		return p, err
	}
	if err := s.cache.SetJSON(ctx, profileKey(userID), p, s.ttl); err != nil {
		slog.Warn("profile cache write failed", "user_id", userID, "error", err)
	}
	return p, nil
}

// UpdateProgress writes through to the backing store, then drops the cached record.
func (s *CachedStore) UpdateProgress(ctx context.Context, userID string, u ProgressUpdate) error {
	if err := s.next.UpdateProgress(ctx, userID, u); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, progressKey(userID)); err != nil {
		slog.Warn("progress cache invalidation failed", "user_id", userID, "error", err)
	}
	return nil
}

// GetProgressFresh reads the backing store directly. Completions decide on
// this copy so an entry cached before another instance's write is not reused.
func (s *CachedStore) GetProgressFresh(ctx context.Context, userID string) (*UserProgress, error) {
	return s.next.GetProgress(ctx, userID)
}
