package achievement_test

import (
	"testing"

	"github.com/mathcode-academy/mathcode/internal/achievement"
	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

func byID(list []achievement.Achievement) map[string]achievement.Achievement {
	out := make(map[string]achievement.Achievement, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out
}

func loadCatalog(t *testing.T) *curriculum.Catalog {
	t.Helper()
	catalog, err := curriculum.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	return catalog
}

func TestEvaluate_FreshUser(t *testing.T) {
	got := achievement.Evaluate(loadCatalog(t), progress.UserProgress{UserID: "u1"})

	if len(got) != 9 {
		t.Fatalf("len = %d, want 9", len(got))
	}
	if got[0].ID != "first-lesson" {
		t.Errorf("first badge = %q, want first-lesson", got[0].ID)
	}
	for _, a := range got {
		if a.Unlocked || a.Progress != 0 {
			t.Errorf("%s = %+v, want locked at 0%%", a.ID, a)
		}
	}
	if n := achievement.Unlocked(got); n != 0 {
		t.Errorf("Unlocked() = %d, want 0", n)
	}
}

func TestEvaluate_Progress(t *testing.T) {
	p := progress.UserProgress{
		UserID:        "u1",
		XPPoints:      2450,
		CurrentStreak: 2,
		LongestStreak: 5,
		CompletedLessons: []string{
			"foundation/number-systems/binary-intro",
			"foundation/number-systems/hexadecimal",
			"ml-ai/fundamentals/ml-intro",
		},
	}
	got := byID(achievement.Evaluate(loadCatalog(t), p))

	tests := []struct {
		id       string
		unlocked bool
		progress int
	}{
		{"first-lesson", true, 100},
		{"streak-3", true, 100},
		{"streak-7", false, 71},
		{"binary-master", false, 50},
		{"foundation-complete", false, 22},
		{"ml-pioneer", true, 100},
		{"security-expert", false, 0},
		{"xp-1000", true, 100},
		{"xp-5000", false, 49},
	}
	for _, tt := range tests {
		a, ok := got[tt.id]
		if !ok {
			t.Errorf("missing badge %s", tt.id)
			continue
		}
		if a.Unlocked != tt.unlocked || a.Progress != tt.progress {
			t.Errorf("%s = unlocked %v progress %d, want %v %d", tt.id, a.Unlocked, a.Progress, tt.unlocked, tt.progress)
		}
	}
}

func TestEvaluate_TrackCompletion(t *testing.T) {
	catalog := loadCatalog(t)

	var done []string
	for _, m := range catalog.TrackLessons("cybersecurity") {
		done = append(done, m.ID)
	}
	for _, m := range catalog.TrackLessons("foundation") {
		done = append(done, m.ID)
	}

	got := byID(achievement.Evaluate(catalog, progress.UserProgress{UserID: "u1", CompletedLessons: done}))
	for _, id := range []string{"security-expert", "foundation-complete", "binary-master", "first-lesson"} {
		if !got[id].Unlocked || got[id].Progress != 100 {
			t.Errorf("%s = %+v, want unlocked", id, got[id])
		}
	}
	if got["ml-pioneer"].Unlocked {
		t.Error("ml-pioneer should stay locked without an ML lesson")
	}
}

func TestEvaluate_IgnoresUnknownLessons(t *testing.T) {
	got := byID(achievement.Evaluate(loadCatalog(t), progress.UserProgress{
		UserID:           "u1",
		CompletedLessons: []string{"retired/old/lesson"},
	}))
	if got["foundation-complete"].Progress != 0 {
		t.Errorf("foundation-complete progress = %d, want 0", got["foundation-complete"].Progress)
	}
}
