package progress_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/events"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

const (
	binaryIntro      = "foundation/number-systems/binary-intro"
	binaryArithmetic = "foundation/number-systems/binary-arithmetic"
)

// gatedStore holds the write that completes lessonID until release is closed.
type gatedStore struct {
	*progress.MemoryStore
	lessonID string
	entered  chan struct{}
	release  chan struct{}
	gated    atomic.Bool
}

func newGatedStore(lessonID string) *gatedStore {
	return &gatedStore{
		MemoryStore: progress.NewMemoryStore(),
		lessonID:    lessonID,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) UpdateProgress(ctx context.Context, userID string, u progress.ProgressUpdate) error {
	n := len(u.CompletedLessons)
	if n > 0 && u.CompletedLessons[n-1] == s.lessonID && s.gated.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.UpdateProgress(ctx, userID, u)
}

func newTestService(t *testing.T, store progress.Store, now time.Time) *progress.Service {
	t.Helper()
	catalog, err := curriculum.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	svc, err := progress.NewService(progress.ServiceConfig{
		Store:   store,
		Catalog: catalog,
		Events:  events.NewMemoryLogger(),
		Now:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewService_RequiresDependencies(t *testing.T) {
	if _, err := progress.NewService(progress.ServiceConfig{}); err == nil {
		t.Error("NewService() without store should fail")
	}
	if _, err := progress.NewService(progress.ServiceConfig{Store: progress.NewMemoryStore()}); err == nil {
		t.Error("NewService() without catalog should fail")
	}
}

func TestService_Submit(t *testing.T) {
	store := progress.NewMemoryStore()
	svc := newTestService(t, store, time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC))

	// binary-intro: 3 questions, correct options 1, 2, 2.
	res, err := svc.Submit(context.Background(), "u1", binaryIntro, map[int]int{1: 1, 2: 2, 3: 0})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Score.Correct != 2 || res.Score.Total != 3 {
		t.Errorf("Score = %+v, want 2/3", res.Score)
	}
	if res.EarnedXP != 83 {
		t.Errorf("EarnedXP = %d, want 83", res.EarnedXP)
	}
	if res.Progress.XPPoints != 83 || res.Progress.CurrentStreak != 1 {
		t.Errorf("Progress = %+v", res.Progress)
	}
	if *res.Progress.LastActivityDate != date(2024, 3, 10) {
		t.Errorf("LastActivityDate = %v, want 2024-03-10", res.Progress.LastActivityDate)
	}

	again, err := svc.Submit(context.Background(), "u1", binaryIntro, map[int]int{1: 1, 2: 2, 3: 2})
	if err != nil {
		t.Fatalf("Submit() again error = %v", err)
	}
	if !again.AlreadyCompleted || again.Progress.XPPoints != 83 {
		t.Errorf("repeat submit = %+v", again.Completion)
	}
	if store.Updates() != 1 {
		t.Errorf("store updates = %d, want 1", store.Updates())
	}
}

func TestService_SubmitUnknownLesson(t *testing.T) {
	store := progress.NewMemoryStore()
	svc := newTestService(t, store, time.Now())

	_, err := svc.Submit(context.Background(), "u1", "foundation/number-systems/nope", nil)
	if !errors.Is(err, curriculum.ErrLessonNotFound) {
		t.Fatalf("Submit() error = %v, want ErrLessonNotFound", err)
	}
	if store.Updates() != 0 {
		t.Errorf("store updates = %d, want 0", store.Updates())
	}
	if svc.Sessions() != 0 {
		t.Errorf("unknown lesson opened a session")
	}
}

func TestService_SubmitUnauthenticated(t *testing.T) {
	svc := newTestService(t, progress.NewMemoryStore(), time.Now())

	_, err := svc.Submit(context.Background(), "", binaryIntro, nil)
	if !errors.Is(err, progress.ErrUnauthenticated) {
		t.Errorf("Submit() error = %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.Load(context.Background(), ""); !errors.Is(err, progress.ErrUnauthenticated) {
		t.Errorf("Load() error = %v, want ErrUnauthenticated", err)
	}
}

func TestService_TodayUsesLocation(t *testing.T) {
	// 23:30 UTC on March 9 is already March 10 in Kuala Lumpur.
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	catalog, err := curriculum.LoadEmbedded()
	if err != nil {
		t.Fatal(err)
	}

	loc := time.FixedZone("MYT", 8*60*60)
	svc, err := progress.NewService(progress.ServiceConfig{
		Store:    progress.NewMemoryStore(),
		Catalog:  catalog,
		Location: loc,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := svc.Today(); got != date(2024, 3, 10) {
		t.Errorf("Today() = %v, want 2024-03-10", got)
	}

	utc := newTestService(t, progress.NewMemoryStore(), now)
	if got := utc.Today(); got != date(2024, 3, 9) {
		t.Errorf("UTC Today() = %v, want 2024-03-09", got)
	}
}

func TestService_OneTrackerPerUser(t *testing.T) {
	svc := newTestService(t, progress.NewMemoryStore(), time.Now())

	a, _ := svc.Tracker("u1")
	b, _ := svc.Tracker("u1")
	c, _ := svc.Tracker("u2")
	if a != b {
		t.Error("same user should share a tracker")
	}
	if a == c {
		t.Error("different users should not share a tracker")
	}
	if svc.Sessions() != 2 {
		t.Errorf("Sessions() = %d, want 2", svc.Sessions())
	}

	svc.Forget("u1")
	if svc.Sessions() != 1 {
		t.Errorf("Sessions() after Forget = %d, want 1", svc.Sessions())
	}
	d, _ := svc.Tracker("u1")
	if d == a {
		t.Error("Forget should drop the old tracker")
	}
}

func TestService_LoadPicksUpStoredRecord(t *testing.T) {
	store := progress.NewMemoryStore()
	store.PutProgress(progress.UserProgress{
		UserID:           "u1",
		XPPoints:         250,
		CurrentStreak:    2,
		LongestStreak:    5,
		CompletedLessons: []string{binaryIntro},
		LastActivityDate: datePtr(2024, 3, 9),
	})
	svc := newTestService(t, store, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))

	tr, err := svc.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !tr.IsCompleted(binaryIntro) {
		t.Error("stored completion not visible after load")
	}

	res, err := svc.Submit(context.Background(), "u1", binaryArithmetic, map[int]int{1: 1, 2: 1, 3: 3})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.EarnedXP != 120 || res.Progress.XPPoints != 370 {
		t.Errorf("EarnedXP = %d, XPPoints = %d, want 120 and 370", res.EarnedXP, res.Progress.XPPoints)
	}
	if res.Progress.CurrentStreak != 3 || res.Progress.LongestStreak != 5 {
		t.Errorf("streaks = %d/%d, want 3/5", res.Progress.CurrentStreak, res.Progress.LongestStreak)
	}
}

func TestService_ForgetDuringWriteKeepsBothCompletions(t *testing.T) {
	store := newGatedStore(binaryIntro)
	svc := newTestService(t, store, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, "u1", binaryIntro, nil)
		first <- err
	}()
	<-store.entered

	// Sign-out while the first write is still pending.
	svc.Forget("u1")

	second := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, "u1", binaryArithmetic, nil)
		second <- err
	}()
	select {
	case err := <-second:
		t.Fatalf("second completion finished before the pending write: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	if err := <-first; err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	// Both submissions answer nothing, so each earns half its reward: 50 + 60.
	stored, _ := store.GetProgress(ctx, "u1")
	if stored.XPPoints != 110 {
		t.Errorf("stored XPPoints = %d, want 110", stored.XPPoints)
	}
	if !slices.Equal(stored.CompletedLessons, []string{binaryIntro, binaryArithmetic}) {
		t.Errorf("stored completed = %v", stored.CompletedLessons)
	}
}

func TestService_KeepsCompletionsFromAnotherInstance(t *testing.T) {
	store := progress.NewMemoryStore()
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	a := newTestService(t, store, now)
	b := newTestService(t, store, now)
	ctx := context.Background()

	if _, err := a.Load(ctx, "u1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := b.Submit(ctx, "u1", binaryIntro, nil); err != nil {
		t.Fatalf("Submit() on b error = %v", err)
	}

	res, err := a.Submit(ctx, "u1", binaryArithmetic, nil)
	if err != nil {
		t.Fatalf("Submit() on a error = %v", err)
	}
	if res.Progress.XPPoints != 110 || len(res.Progress.CompletedLessons) != 2 {
		t.Errorf("progress = %+v, want both lessons and 110 XP", res.Progress)
	}
	stored, _ := store.GetProgress(ctx, "u1")
	if !slices.Equal(stored.CompletedLessons, []string{binaryIntro, binaryArithmetic}) {
		t.Errorf("stored completed = %v", stored.CompletedLessons)
	}

	// A lesson the other instance already recorded is not counted twice.
	again, err := a.Submit(ctx, "u1", binaryIntro, nil)
	if err != nil {
		t.Fatalf("repeat Submit() error = %v", err)
	}
	if !again.AlreadyCompleted || store.Updates() != 2 {
		t.Errorf("repeat = %+v, updates = %d", again.Completion, store.Updates())
	}
}

func TestService_LoadRefreshesFromStore(t *testing.T) {
	store := progress.NewMemoryStore()
	svc := newTestService(t, store, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.Load(ctx, "u1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	store.PutProgress(progress.UserProgress{UserID: "u1", XPPoints: 40, CompletedLessons: []string{binaryIntro}})

	tr, err := svc.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() again error = %v", err)
	}
	p, _, _ := tr.Snapshot()
	if p.XPPoints != 40 || !tr.IsCompleted(binaryIntro) {
		t.Errorf("snapshot = %+v, want the stored record", p)
	}
}

func TestService_EvictsIdleTrackers(t *testing.T) {
	catalog, err := curriculum.LoadEmbedded()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := progress.NewMemoryStore()
	svc, err := progress.NewService(progress.ServiceConfig{
		Store:   store,
		Catalog: catalog,
		Now:     func() time.Time { return now },
		IdleTTL: 10 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "u1", binaryIntro, nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	first, _ := svc.Tracker("u1")

	now = now.Add(6 * time.Minute)
	svc.Tracker("u2")
	if svc.Sessions() != 2 {
		t.Fatalf("Sessions() = %d, want 2 before the idle TTL", svc.Sessions())
	}

	now = now.Add(5 * time.Minute)
	svc.Tracker("u2")
	if svc.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want 1 after u1 went idle", svc.Sessions())
	}

	tr, err := svc.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if tr == first {
		t.Error("idle tracker should have been replaced")
	}
	if !tr.IsCompleted(binaryIntro) {
		t.Error("completion lost after eviction")
	}

	now = now.Add(time.Hour)
	if n := svc.EvictIdle(); n != 2 {
		t.Errorf("EvictIdle() = %d, want 2", n)
	}
	if svc.Sessions() != 0 {
		t.Errorf("Sessions() = %d, want 0", svc.Sessions())
	}
}
