package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists progress records and reads display profiles.
// At most one progress record and one profile exist per user.
type Store interface {
	// GetProgress returns nil, nil when the user has no record yet.
	GetProgress(ctx context.Context, userID string) (*UserProgress, error)
	// GetProfile returns nil, nil when the user has no profile.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// UpdateProgress writes exactly the fields of u, creating the record if needed.
	UpdateProgress(ctx context.Context, userID string, u ProgressUpdate) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[string]*UserProgress
	profiles map[string]Profile
	updates  int
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[string]*UserProgress),
		profiles: make(map[string]Profile),
	}
}

func (s *MemoryStore) GetProgress(_ context.Context, userID string) (*UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[userID]
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, userID string, u ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p, ok := s.progress[userID]
	if !ok {
		p = &UserProgress{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
		s.progress[userID] = p
	}
	*p = p.apply(u)
	p.UpdatedAt = now
	s.updates++
	return nil
}

// PutProgress replaces a user's record, for seeding.
func (s *MemoryStore) PutProgress(p UserProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = p.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.progress[p.UserID] = &p
}

// PutProfile stores a display profile, for seeding.
func (s *MemoryStore) PutProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// Updates returns how many UpdateProgress calls have been applied.
func (s *MemoryStore) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}
