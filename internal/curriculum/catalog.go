package curriculum

import (
	"errors"
	"fmt"
	"slices"
)

// ErrLessonNotFound is returned when an id matches no lesson in the catalog.
var ErrLessonNotFound = errors.New("lesson not found")

// Catalog is the immutable, ordered curriculum. Declaration order of tracks,
// modules and lessons defines "next lesson" sequencing.
type Catalog struct {
	tracks  []TrackSummary
	lessons []Lesson
	index   map[string]int
}

// newCatalog flattens track documents into one ordered lesson list and derives
// the id index and track summaries from that same walk.
func newCatalog(tracks []trackFile) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int)}

	for _, t := range tracks {
		summary := TrackSummary{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Level:       t.Level,
		}
		for _, m := range t.Modules {
			module := ModuleSummary{ID: m.ID, Title: m.Title}
			for _, l := range m.Lessons {
				lesson := Lesson{
					LessonMetadata: LessonMetadata{
						ID:         LessonID(t.ID, m.ID, l.Slug),
						Title:      l.Title,
						Duration:   l.Duration,
						TrackID:    t.ID,
						ModuleID:   m.ID,
						TrackTitle: t.Title,
					},
					XPReward:   l.XPReward,
					Objectives: l.Objectives,
					Sections:   l.Sections,
					Practices:  l.Practices,
				}
				if err := validateLesson(lesson); err != nil {
					return nil, err
				}
				if _, dup := c.index[lesson.ID]; dup {
					return nil, fmt.Errorf("duplicate lesson id %q", lesson.ID)
				}
				c.index[lesson.ID] = len(c.lessons)
				c.lessons = append(c.lessons, lesson)
				module.Lessons = append(module.Lessons, lesson.LessonMetadata)
			}
			summary.Modules = append(summary.Modules, module)
		}
		c.tracks = append(c.tracks, summary)
	}

	return c, nil
}

func validateLesson(l Lesson) error {
	if l.XPReward <= 0 {
		return fmt.Errorf("lesson %s: xp_reward must be positive", l.ID)
	}
	seen := make(map[int]bool, len(l.Practices))
	for _, p := range l.Practices {
		if seen[p.ID] {
			return fmt.Errorf("lesson %s: duplicate practice id %d", l.ID, p.ID)
		}
		seen[p.ID] = true
		if len(p.Options) < 2 {
			return fmt.Errorf("lesson %s: practice %d needs at least two options", l.ID, p.ID)
		}
		if p.Correct < 0 || p.Correct >= len(p.Options) {
			return fmt.Errorf("lesson %s: practice %d correct index %d out of range", l.ID, p.ID, p.Correct)
		}
	}
	return nil
}

// LessonID composes the three path segments into a lesson id.
func LessonID(trackID, moduleID, slug string) string {
	return trackID + "/" + moduleID + "/" + slug
}

// Len returns the number of lessons in the catalog.
func (c *Catalog) Len() int {
	return len(c.lessons)
}

// Lookup returns a copy of the lesson with exactly this id.
func (c *Catalog) Lookup(id string) (Lesson, error) {
	i, ok := c.index[id]
	if !ok {
		return Lesson{}, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	return c.lessons[i].clone(), nil
}

// clone copies every slice a caller could write through. Section variants
// hold only strings, so copying the Sections slice is enough.
func (l Lesson) clone() Lesson {
	l.Objectives = slices.Clone(l.Objectives)
	l.Sections = slices.Clone(l.Sections)
	l.Practices = slices.Clone(l.Practices)
	for i := range l.Practices {
		l.Practices[i].Options = slices.Clone(l.Practices[i].Options)
	}
	return l
}

// Contains reports whether id names a catalog lesson.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Metadata returns all lessons in catalog order.
func (c *Catalog) Metadata() []LessonMetadata {
	out := make([]LessonMetadata, len(c.lessons))
	for i, l := range c.lessons {
		out[i] = l.LessonMetadata
	}
	return out
}

// NextUncompleted returns the first lesson in catalog order that is not in done.
// It returns false once every lesson is completed.
func (c *Catalog) NextUncompleted(done LessonSet) (LessonMetadata, bool) {
	for _, l := range c.lessons {
		if !done.Has(l.ID) {
			return l.LessonMetadata, true
		}
	}
	return LessonMetadata{}, false
}

// Filter returns the lessons of one module, preserving catalog order.
func (c *Catalog) Filter(trackID, moduleID string) []LessonMetadata {
	var out []LessonMetadata
	for _, l := range c.lessons {
		if l.TrackID == trackID && l.ModuleID == moduleID {
			out = append(out, l.LessonMetadata)
		}
	}
	return out
}

// TrackLessons returns every lesson of a track, preserving catalog order.
func (c *Catalog) TrackLessons(trackID string) []LessonMetadata {
	var out []LessonMetadata
	for _, l := range c.lessons {
		if l.TrackID == trackID {
			out = append(out, l.LessonMetadata)
		}
	}
	return out
}

// Tracks returns a copy of the curriculum grouped by track and module.
func (c *Catalog) Tracks() []TrackSummary {
	out := make([]TrackSummary, len(c.tracks))
	for i, t := range c.tracks {
		t.Modules = slices.Clone(t.Modules)
		for j := range t.Modules {
			t.Modules[j].Lessons = slices.Clone(t.Modules[j].Lessons)
		}
		out[i] = t
	}
	return out
}

// Neighbors returns the lessons before and after id in catalog order.
// Either may be nil at the ends of the curriculum.
func (c *Catalog) Neighbors(id string) (prev, next *LessonMetadata, err error) {
	i, ok := c.index[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	if i > 0 {
		m := c.lessons[i-1].LessonMetadata
		prev = &m
	}
	if i+1 < len(c.lessons) {
		m := c.lessons[i+1].LessonMetadata
		next = &m
	}
	return prev, next, nil
}

// TrackProgress counts completed lessons per track. Ids in done that are not
// in the catalog are ignored.
func (c *Catalog) TrackProgress(done LessonSet) []TrackProgress {
	out := make([]TrackProgress, 0, len(c.tracks))
	for _, t := range c.tracks {
		p := TrackProgress{TrackID: t.ID, Title: t.Title}
		for _, m := range t.Modules {
			for _, l := range m.Lessons {
				p.Total++
				if done.Has(l.ID) {
					p.Completed++
				}
			}
		}
		if p.Total > 0 {
			p.Percent = p.Completed * 100 / p.Total
		}
		out = append(out, p)
	}
	return out
}
