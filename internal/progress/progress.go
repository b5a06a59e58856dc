// Package progress tracks per-user learning progress: XP, streaks and
// completed lessons.
package progress

import (
	"errors"
	"slices"
	"time"

	"cloud.google.com/go/civil"
)

var (
	// ErrUnauthenticated is returned when an operation has no user identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrPersistence wraps any read or write failure of the progress store.
	ErrPersistence = errors.New("progress persistence failed")
)

// FailureMessage is the user-facing text for a failed completion.
const FailureMessage = "Failed to save your progress. Please try again."

// UserProgress is one learner's persisted progress record.
type UserProgress struct {
	ID               string      `json:"id,omitempty"`
	UserID           string      `json:"user_id"`
	XPPoints         int         `json:"xp_points"`
	CurrentStreak    int         `json:"current_streak"`
	LongestStreak    int         `json:"longest_streak"`
	CompletedLessons []string    `json:"completed_lessons"` // first-completion order
	LastActivityDate *civil.Date `json:"last_activity_date"`
	CreatedAt        time.Time   `json:"created_at,omitzero"`
	UpdatedAt        time.Time   `json:"updated_at,omitzero"`
}

// Profile is display-only user information.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ProgressUpdate is the set of fields written by a lesson completion.
// Stores must update exactly these fields and nothing else.
type ProgressUpdate struct {
	CompletedLessons []string
	XPPoints         int
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate civil.Date
}

// IsCompleted reports whether lessonID is among the completed lessons.
func (p UserProgress) IsCompleted(lessonID string) bool {
	return slices.Contains(p.CompletedLessons, lessonID)
}

// Clone returns a copy that shares no memory with p.
func (p UserProgress) Clone() UserProgress {
	p.CompletedLessons = slices.Clone(p.CompletedLessons)
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	if p.LastActivityDate != nil {
		d := *p.LastActivityDate
		p.LastActivityDate = &d
	}
	return p
}

// apply returns p with the update's fields replaced.
func (p UserProgress) apply(u ProgressUpdate) UserProgress {
	p.CompletedLessons = slices.Clone(u.CompletedLessons)
	p.XPPoints = u.XPPoints
	p.CurrentStreak = u.CurrentStreak
	p.LongestStreak = u.LongestStreak
	d := u.LastActivityDate
	p.LastActivityDate = &d
	return p
}

// zeroProgress is the implicit record of a user who has never completed a lesson.
func zeroProgress(userID string) UserProgress {
	return UserProgress{UserID: userID, CompletedLessons: []string{}}
}
