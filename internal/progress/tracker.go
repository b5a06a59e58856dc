package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/mathcode-academy/mathcode/internal/events"
)

// Completion is the outcome of a completion call.
type Completion struct {
	UserID           string       `json:"-"`
	LessonID         string       `json:"lesson_id"`
	EarnedXP         int          `json:"earned_xp"`
	AlreadyCompleted bool         `json:"already_completed"`
	Progress         UserProgress `json:"progress"`
}

// Publisher is told about completion outcomes so they can be pushed to the learner.
type Publisher interface {
	Completed(ctx context.Context, c Completion)
	CompletionFailed(ctx context.Context, userID, lessonID string)
}

// NopPublisher drops every notification.
type NopPublisher struct{}

func (NopPublisher) Completed(context.Context, Completion)            {}
func (NopPublisher) CompletionFailed(context.Context, string, string) {}

// Tracker caches one user's progress and writes their completions to the
// store. All methods are safe for concurrent use; completions for the user
// are applied one at a time.
type Tracker struct {
	userID    string
	store     Store
	events    events.Logger
	publisher Publisher

	// lock serializes store reads and writes for the user. Trackers handed
	// out by a Service share the service's per-user lock, so a replacement
	// tracker still waits for a write started by the one it replaced.
	lock func() (unlock func())

	mu       sync.Mutex // guards the fields below, never held across I/O
	loaded   bool
	progress UserProgress
	profile  *Profile
}

// freshReader is implemented by stores that can read past their own cache.
type freshReader interface {
	GetProgressFresh(ctx context.Context, userID string) (*UserProgress, error)
}

// NewTracker creates an unloaded tracker for userID.
func NewTracker(userID string, store Store, ev events.Logger, pub Publisher) *Tracker {
	var mu sync.Mutex
	return newTracker(userID, store, ev, pub, func() func() {
		mu.Lock()
		return mu.Unlock
	})
}

func newTracker(userID string, store Store, ev events.Logger, pub Publisher, lock func() func()) *Tracker {
	if ev == nil {
		ev = events.NopLogger{}
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Tracker{
		userID:    userID,
		store:     store,
		events:    ev,
		publisher: pub,
		lock:      lock,
	}
}

// UserID returns the owner of this tracker.
func (t *Tracker) UserID() string {
	return t.userID
}

// Load fetches the progress record and profile together. A user without a
// record starts from zero. On failure the previous state is kept.
func (t *Tracker) Load(ctx context.Context) error {
	if t.userID == "" {
		return ErrUnauthenticated
	}
	unlock := t.lock()
	defer unlock()
	return t.load(ctx)
}

// load must be called with the user lock held.
func (t *Tracker) load(ctx context.Context) error {
	var (
		progress *UserProgress
		profile  *Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := t.store.GetProgress(gctx, t.userID)
		if err != nil {
			return fmt.Errorf("get progress: %w", err)
		}
		progress = p
		return nil
	})
	g.Go(func() error {
		p, err := t.store.GetProfile(gctx, t.userID)
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		profile = p
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("failed to load progress", "user_id", t.userID, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = orZero(t.userID, progress)
	t.profile = profile
	t.loaded = true
	return nil
}

// reload replaces the cached record with the stored one, bypassing any read
// cache in the store. It must be called with the user lock held.
func (t *Tracker) reload(ctx context.Context) (UserProgress, error) {
	if !t.Loaded() {
		if err := t.load(ctx); err != nil {
			return UserProgress{}, err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.progress.Clone(), nil
	}

	var (
		p   *UserProgress
		err error
	)
	if fr, ok := t.store.(freshReader); ok {
		p, err = fr.GetProgressFresh(ctx, t.userID)
	} else {
		p, err = t.store.GetProgress(ctx, t.userID)
	}
	if err != nil {
		slog.Error("failed to reload progress", "user_id", t.userID, "error", err)
		return UserProgress{}, fmt.Errorf("%w: get progress: %w", ErrPersistence, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = orZero(t.userID, p)
	return t.progress.Clone(), nil
}

func orZero(userID string, p *UserProgress) UserProgress {
	if p == nil {
		return zeroProgress(userID)
	}
	return p.Clone()
}

// Loaded reports whether a record has been loaded.
func (t *Tracker) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// CompleteLesson records a completion of lessonID worth earnedXP on the
// calendar day today.
//
// The stored record is read again before deciding, so completions written by
// another tracker or process are kept. Completing an already completed lesson
// changes nothing and writes nothing. Otherwise the streak, XP and completed
// set are updated and written in one store call; the in-memory record changes
// only if that write succeeds.
func (t *Tracker) CompleteLesson(ctx context.Context, lessonID string, earnedXP int, today civil.Date) (Completion, error) {
	if t.userID == "" {
		return Completion{}, ErrUnauthenticated
	}
	if lessonID == "" {
		return Completion{}, fmt.Errorf("lesson id is required")
	}
	if earnedXP < 0 {
		return Completion{}, fmt.Errorf("earned xp must not be negative: %d", earnedXP)
	}

	unlock := t.lock()
	c, wrote, err := t.complete(ctx, lessonID, earnedXP, today)
	unlock()

	switch {
	case err != nil && wrote:
		t.logEvent(ctx, events.TypeLessonCompletionFailed, map[string]any{
			"lesson_id": lessonID,
		})
		t.publisher.CompletionFailed(ctx, t.userID, lessonID)
		return Completion{}, err
	case err != nil:
		return Completion{}, err
	case c.AlreadyCompleted:
		return c, nil
	}

	slog.Info("lesson completed",
		"user_id", t.userID,
		"lesson_id", lessonID,
		"earned_xp", earnedXP,
		"xp_points", c.Progress.XPPoints,
		"streak", c.Progress.CurrentStreak,
	)
	t.logEvent(ctx, events.TypeLessonCompleted, map[string]any{
		"lesson_id":      lessonID,
		"earned_xp":      earnedXP,
		"xp_points":      c.Progress.XPPoints,
		"current_streak": c.Progress.CurrentStreak,
	})
	t.publisher.Completed(ctx, c)
	return c, nil
}

// complete does the store work of CompleteLesson under the user lock. wrote
// reports whether a write was attempted.
func (t *Tracker) complete(ctx context.Context, lessonID string, earnedXP int, today civil.Date) (c Completion, wrote bool, err error) {
	cur, err := t.reload(ctx)
	if err != nil {
		return Completion{}, false, err
	}
	if cur.IsCompleted(lessonID) {
		return Completion{
			UserID:           t.userID,
			LessonID:         lessonID,
			AlreadyCompleted: true,
			Progress:         cur,
		}, false, nil
	}

	streak := NextStreak(cur.CurrentStreak, cur.LastActivityDate, today)
	update := ProgressUpdate{
		CompletedLessons: append(slices.Clone(cur.CompletedLessons), lessonID),
		XPPoints:         cur.XPPoints + earnedXP,
		CurrentStreak:    streak,
		LongestStreak:    max(cur.LongestStreak, streak),
		LastActivityDate: today,
	}

	if err := t.store.UpdateProgress(ctx, t.userID, update); err != nil {
		slog.Error("failed to save progress",
			"user_id", t.userID,
			"lesson_id", lessonID,
			"error", err,
		)
		return Completion{}, true, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	next := cur.apply(update)
	next.UpdatedAt = time.Now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}

	t.mu.Lock()
	t.progress = next
	t.mu.Unlock()

	return Completion{
		UserID:   t.userID,
		LessonID: lessonID,
		EarnedXP: earnedXP,
		Progress: next.Clone(),
	}, true, nil
}

func (t *Tracker) logEvent(ctx context.Context, eventType string, data map[string]any) {
	if err := t.events.LogEvent(ctx, events.Event{
		UserID:    t.userID,
		EventType: eventType,
		Data:      data,
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "user_id", t.userID, "error", err)
	}
}

// IsCompleted reports whether lessonID is completed. It is false when nothing
// has been loaded.
func (t *Tracker) IsCompleted(lessonID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded && t.progress.IsCompleted(lessonID)
}

// Snapshot returns a copy of the current record and profile. ok is false
// until a load has succeeded.
func (t *Tracker) Snapshot() (p UserProgress, profile *Profile, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return UserProgress{}, nil, false
	}
	if t.profile != nil {
		pr := *t.profile
		profile = &pr
	}
	return t.progress.Clone(), profile, true
}
