package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/events"
)

// ServiceConfig holds dependencies for the progress service.
type ServiceConfig struct {
	Store     Store
	Catalog   *curriculum.Catalog
	Events    events.Logger
	Publisher Publisher
	Location  *time.Location   // defines the learner's calendar day (default UTC)
	Now       func() time.Time // default time.Now
	IdleTTL   time.Duration    // trackers unused this long are dropped (default 30m)
}

// DefaultIdleTTL is how long an unused tracker is kept when ServiceConfig
// leaves IdleTTL unset.
const DefaultIdleTTL = 30 * time.Minute

// Service hands out one Tracker per user. Completions for a user are
// serialized by a per-user lock that lives independently of the tracker, so
// dropping a tracker on sign-out or idle eviction never lets two writes for
// the same user overlap. Different users proceed independently.
type Service struct {
	store     Store
	catalog   *curriculum.Catalog
	events    events.Logger
	publisher Publisher
	location  *time.Location
	now       func() time.Time
	idleTTL   time.Duration

	mu        sync.Mutex
	sessions  map[string]*session
	locks     map[string]*userLock
	lastSweep time.Time
}

type session struct {
	tracker  *Tracker
	lastUsed time.Time
}

// userLock is removed from Service.locks once nobody holds or waits for it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// Result is a graded completion.
type Result struct {
	Completion
	Score curriculum.Score `json:"score"`
}

// NewService creates a progress service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("progress store is nil")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	ev := cfg.Events
	if ev == nil {
		ev = events.NopLogger{}
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = NopPublisher{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = DefaultIdleTTL
	}
	return &Service{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		events:    ev,
		publisher: pub,
		location:  loc,
		now:       now,
		idleTTL:   idle,
		sessions:  make(map[string]*session),
		locks:     make(map[string]*userLock),
	}, nil
}

// Today returns the current calendar day in the configured location.
func (s *Service) Today() civil.Date {
	return civil.DateOf(s.now().In(s.location))
}

// Tracker returns the user's tracker, creating an unloaded one on first use.
func (s *Service) Tracker(userID string) (*Tracker, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.idleTTL/2 {
		s.evictIdle(now)
	}
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{tracker: newTracker(userID, s.store, s.events, s.publisher, func() func() {
			return s.lockUser(userID)
		})}
		s.sessions[userID] = sess
	}
	sess.lastUsed = now
	return sess.tracker, nil
}

// lockUser blocks until the caller holds the user's lock and returns the
// function that releases it.
func (s *Service) lockUser(userID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// EvictIdle drops trackers that have not been handed out for the idle TTL and
// returns how many were dropped. Tracker calls it periodically.
func (s *Service) EvictIdle() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictIdle(now)
}

func (s *Service) evictIdle(now time.Time) int {
	s.lastSweep = now
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) >= s.idleTTL {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		slog.Debug("evicted idle progress sessions", "count", n, "remaining", len(s.sessions))
	}
	return n
}

// Load returns the user's tracker with its record freshly read from the store.
func (s *Service) Load(ctx context.Context, userID string) (*Tracker, error) {
	t, err := s.Tracker(userID)
	if err != nil {
		return nil, err
	}
	if err := t.Load(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Submit grades answers for lessonID and records the completion for today.
// An unknown lesson returns curriculum.ErrLessonNotFound and touches no progress.
func (s *Service) Submit(ctx context.Context, userID, lessonID string, answers map[int]int) (Result, error) {
	if userID == "" {
		return Result{}, ErrUnauthenticated
	}
	lesson, err := s.catalog.Lookup(lessonID)
	if err != nil {
		return Result{}, err
	}

	score := curriculum.Grade(lesson, answers)
	xp := score.EarnedXP(lesson)

	t, err := s.Tracker(userID)
	if err != nil {
		return Result{}, err
	}
	c, err := t.CompleteLesson(ctx, lesson.ID, xp, s.Today())
	if err != nil {
		return Result{}, err
	}
	return Result{Completion: c, Score: score}, nil
}

// Forget drops the user's cached tracker, e.g. on sign-out. A write already
// in flight still finishes before the next tracker for the user can write.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Sessions returns the number of users with a live tracker.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Catalog returns the lesson catalog the service grades against.
func (s *Service) Catalog() *curriculum.Catalog {
	return s.catalog
}
