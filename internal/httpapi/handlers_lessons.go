package httpapi

import (
	"net/http"

	"github.com/mathcode-academy/mathcode/internal/curriculum"
)

// practiceView is a practice question without its answer.
type practiceView struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type lessonView struct {
	curriculum.Lesson
	Practices []practiceView             `json:"practices"`
	Prev      *curriculum.LessonMetadata `json:"prev"`
	Next      *curriculum.LessonMetadata `json:"next"`
}

func (s *server) handleTracks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tracks": s.catalog.Tracks()})
}

func (s *server) handleLessons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	track, module := q.Get("track"), q.Get("module")

	var lessons []curriculum.LessonMetadata
	switch {
	case track == "" && module != "":
		writeError(w, http.StatusBadRequest, "module filter requires track")
		return
	case track == "":
		lessons = s.catalog.Metadata()
	case module == "":
		lessons = s.catalog.TrackLessons(track)
	default:
		lessons = s.catalog.Filter(track, module)
	}
	if lessons == nil {
		lessons = []curriculum.LessonMetadata{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lessons": lessons})
}

func (s *server) handleLesson(w http.ResponseWriter, r *http.Request) {
	id := lessonIDFromPath(r)
	lesson, err := s.catalog.Lookup(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	prev, next, err := s.catalog.Neighbors(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	practices := make([]practiceView, 0, len(lesson.Practices))
	for _, p := range lesson.Practices {
		practices = append(practices, practiceView{ID: p.ID, Question: p.Question, Options: p.Options})
	}
	writeJSON(w, http.StatusOK, lessonView{Lesson: lesson, Practices: practices, Prev: prev, Next: next})
}

func lessonIDFromPath(r *http.Request) string {
	return curriculum.LessonID(r.PathValue("track"), r.PathValue("module"), r.PathValue("slug"))
}
