package curriculum

// Level is the difficulty label shown for a track.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// trackFile is one track document as stored on disk. Lesson ids are derived
// from the track, module and slug nesting and never written by hand.
type trackFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Level       Level        `yaml:"level"`
	Modules     []moduleFile `yaml:"modules"`
}

type moduleFile struct {
	ID      string       `yaml:"id"`
	Title   string       `yaml:"title"`
	Lessons []lessonFile `yaml:"lessons"`
}

type lessonFile struct {
	Slug       string     `yaml:"slug"`
	Title      string     `yaml:"title"`
	Duration   string     `yaml:"duration"`
	XPReward   int        `yaml:"xp_reward"`
	Objectives []string   `yaml:"objectives"`
	Sections   Sections   `yaml:"sections"`
	Practices  []Practice `yaml:"practices"`
}

// catalogFile lists track files in curriculum order.
type catalogFile struct {
	Tracks []string `yaml:"tracks"`
}

// LessonMetadata is the identity and placement of a lesson in the curriculum.
type LessonMetadata struct {
	ID         string `json:"id"` // <track>/<module>/<slug>
	Title      string `json:"title"`
	Duration   string `json:"duration"`
	TrackID    string `json:"track_id"`
	ModuleID   string `json:"module_id"`
	TrackTitle string `json:"track_title"`
}

// Lesson is the full learning material for one lesson.
type Lesson struct {
	LessonMetadata
	XPReward   int        `json:"xp_reward"`
	Objectives []string   `json:"objectives"`
	Sections   Sections   `json:"sections"`
	Practices  []Practice `json:"practices"`
}

// Practice is a multiple-choice question with exactly one correct option.
type Practice struct {
	ID       int      `yaml:"id" json:"id"`
	Question string   `yaml:"question" json:"question"`
	Options  []string `yaml:"options" json:"options"`
	Correct  int      `yaml:"correct" json:"correct"` // index into Options
}

// TrackSummary is a track with its modules and lesson metadata, in catalog order.
type TrackSummary struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Level       Level           `json:"level"`
	Modules     []ModuleSummary `json:"modules"`
}

// ModuleSummary groups the lessons of one module.
type ModuleSummary struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Lessons []LessonMetadata `json:"lessons"`
}

// TrackProgress counts completed lessons within a track.
type TrackProgress struct {
	TrackID   string `json:"track_id"`
	Title     string `json:"title"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
}

// LessonSet is a set of lesson ids.
type LessonSet map[string]struct{}

// NewLessonSet builds a set from ids. Duplicates collapse.
func NewLessonSet(ids ...string) LessonSet {
	s := make(LessonSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s LessonSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
