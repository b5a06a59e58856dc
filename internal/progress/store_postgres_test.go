package progress_test

import (
	"context"
	"slices"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mathcode-academy/mathcode/internal/events"
	"github.com/mathcode-academy/mathcode/internal/platform/database"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("mathcode"),
		tcpostgres.WithUsername("mathcode"),
		tcpostgres.WithPassword("mathcode"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrations must be rerunnable on every start.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	store, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	t.Run("missing records", func(t *testing.T) {
		p, err := store.GetProgress(ctx, "nobody")
		if err != nil || p != nil {
			t.Errorf("GetProgress() = %v, %v, want nil, nil", p, err)
		}
		prof, err := store.GetProfile(ctx, "nobody")
		if err != nil || prof != nil {
			t.Errorf("GetProfile() = %v, %v, want nil, nil", prof, err)
		}
	})

	t.Run("upsert creates then updates", func(t *testing.T) {
		u := progress.ProgressUpdate{
			CompletedLessons: []string{"a/b/c"},
			XPPoints:         83,
			CurrentStreak:    1,
			LongestStreak:    1,
			LastActivityDate: date(2024, 3, 10),
		}
		if err := store.UpdateProgress(ctx, "u1", u); err != nil {
			t.Fatalf("UpdateProgress() create error = %v", err)
		}
		first, err := store.GetProgress(ctx, "u1")
		if err != nil || first == nil {
			t.Fatalf("GetProgress() = %v, %v", first, err)
		}

		u.CompletedLessons = append(u.CompletedLessons, "a/b/d")
		u.XPPoints = 183
		u.CurrentStreak = 2
		u.LongestStreak = 2
		u.LastActivityDate = date(2024, 3, 11)
		if err := store.UpdateProgress(ctx, "u1", u); err != nil {
			t.Fatalf("UpdateProgress() update error = %v", err)
		}

		got, err := store.GetProgress(ctx, "u1")
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if got.ID != first.ID {
			t.Errorf("ID changed on update: %s -> %s", first.ID, got.ID)
		}
		if got.XPPoints != 183 || got.CurrentStreak != 2 || got.LongestStreak != 2 {
			t.Errorf("counters = %+v", got)
		}
		if !slices.Equal(got.CompletedLessons, []string{"a/b/c", "a/b/d"}) {
			t.Errorf("CompletedLessons = %v", got.CompletedLessons)
		}
		if got.LastActivityDate == nil || *got.LastActivityDate != date(2024, 3, 11) {
			t.Errorf("LastActivityDate = %v, want 2024-03-11", got.LastActivityDate)
		}
	})

	t.Run("malformed completed_lessons", func(t *testing.T) {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO user_progress (id, user_id, completed_lessons)
			 VALUES (gen_random_uuid(), 'broken', '{"not": "a list"}'::jsonb)`)
		if err != nil {
			t.Fatalf("seed error = %v", err)
		}
		got, err := store.GetProgress(ctx, "broken")
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if got.CompletedLessons == nil || len(got.CompletedLessons) != 0 {
			t.Errorf("CompletedLessons = %v, want empty", got.CompletedLessons)
		}
	})

	t.Run("profile", func(t *testing.T) {
		if err := store.UpsertProfile(ctx, progress.Profile{UserID: "u1", DisplayName: "Ada"}); err != nil {
			t.Fatalf("UpsertProfile() error = %v", err)
		}
		prof, err := store.GetProfile(ctx, "u1")
		if err != nil || prof == nil {
			t.Fatalf("GetProfile() = %v, %v", prof, err)
		}
		if prof.DisplayName != "Ada" || prof.AvatarURL != "" {
			t.Errorf("profile = %+v", prof)
		}
	})

	t.Run("tracker round trip", func(t *testing.T) {
		tr := progress.NewTracker("u2", store, events.NewPostgresLogger(db.Pool), nil)
		c, err := tr.CompleteLesson(ctx, "a/b/c", 100, date(2024, 3, 10))
		if err != nil {
			t.Fatalf("CompleteLesson() error = %v", err)
		}

		reloaded := progress.NewTracker("u2", store, nil, nil)
		if err := reloaded.Load(ctx); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		p, _, _ := reloaded.Snapshot()
		if p.XPPoints != c.Progress.XPPoints || !reloaded.IsCompleted("a/b/c") {
			t.Errorf("reloaded = %+v, want %+v", p, c.Progress)
		}

		var n int
		if err := db.Pool.QueryRow(ctx,
			`SELECT count(*) FROM events WHERE user_id = 'u2' AND event_type = $1`,
			events.TypeLessonCompleted,
		).Scan(&n); err != nil {
			t.Fatalf("count events: %v", err)
		}
		if n != 1 {
			t.Errorf("lesson_completed events = %d, want 1", n)
		}
	})
}
