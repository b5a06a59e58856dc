// Package achievement derives badges from a learner's progress. Badges are
// computed on demand and never stored.
package achievement

import (
	"strings"

	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

// Achievement is one badge with its unlock state.
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
	Progress    int    `json:"progress"` // percent, 0-100
}

// input is what every rule sees.
type input struct {
	catalog *curriculum.Catalog
	done    curriculum.LessonSet
	p       progress.UserProgress
}

// rule returns how far along the learner is and the amount required.
type rule func(in input) (current, target int)

type definition struct {
	id          string
	title       string
	description string
	rule        rule
}

var definitions = []definition{
	{"first-lesson", "First Steps", "Complete your first lesson", completedAtLeast(1)},
	{"streak-3", "On Fire", "Maintain a 3-day streak", streakAtLeast(3)},
	{"streak-7", "Week Warrior", "Maintain a 7-day streak", streakAtLeast(7)},
	{"binary-master", "Binary Master", "Complete all binary lessons", lessonsMatching(func(m curriculum.LessonMetadata) bool {
		return strings.HasPrefix(lessonSlug(m.ID), "binary")
	})},
	{"foundation-complete", "Strong Foundation", "Complete the Foundation track", trackComplete("foundation")},
	{"ml-pioneer", "ML Pioneer", "Start the ML & AI track", trackStarted("ml-ai")},
	{"security-expert", "Security Expert", "Complete the Security track", trackComplete("cybersecurity")},
	{"xp-1000", "Rising Star", "Earn 1,000 XP", xpAtLeast(1000)},
	{"xp-5000", "XP Champion", "Earn 5,000 XP", xpAtLeast(5000)},
}

// Evaluate computes every badge for p, in display order.
func Evaluate(catalog *curriculum.Catalog, p progress.UserProgress) []Achievement {
	in := input{
		catalog: catalog,
		done:    curriculum.NewLessonSet(p.CompletedLessons...),
		p:       p,
	}

	out := make([]Achievement, 0, len(definitions))
	for _, d := range definitions {
		current, target := d.rule(in)
		out = append(out, Achievement{
			ID:          d.id,
			Title:       d.title,
			Description: d.description,
			Unlocked:    target > 0 && current >= target,
			Progress:    percent(current, target),
		})
	}
	return out
}

// Unlocked counts the unlocked badges in list.
func Unlocked(list []Achievement) int {
	n := 0
	for _, a := range list {
		if a.Unlocked {
			n++
		}
	}
	return n
}

func percent(current, target int) int {
	if target <= 0 || current <= 0 {
		return 0
	}
	if current >= target {
		return 100
	}
	return current * 100 / target
}

func completedAtLeast(n int) rule {
	return func(in input) (int, int) { return len(in.done), n }
}

func streakAtLeast(n int) rule {
	return func(in input) (int, int) { return in.p.LongestStreak, n }
}

func xpAtLeast(n int) rule {
	return func(in input) (int, int) { return in.p.XPPoints, n }
}

func lessonsMatching(match func(curriculum.LessonMetadata) bool) rule {
	return func(in input) (int, int) {
		current, target := 0, 0
		for _, m := range in.catalog.Metadata() {
			if !match(m) {
				continue
			}
			target++
			if in.done.Has(m.ID) {
				current++
			}
		}
		return current, target
	}
}

func trackComplete(trackID string) rule {
	return lessonsMatching(func(m curriculum.LessonMetadata) bool { return m.TrackID == trackID })
}

// trackStarted needs a single completed lesson in the track.
func trackStarted(trackID string) rule {
	inTrack := trackComplete(trackID)
	return func(in input) (int, int) {
		current, target := inTrack(in)
		if target == 0 {
			return 0, 0
		}
		return min(current, 1), 1
	}
}

func lessonSlug(id string) string {
	return id[strings.LastIndex(id, "/")+1:]
}
