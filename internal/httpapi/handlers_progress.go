package httpapi

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mathcode-academy/mathcode/internal/achievement"
	"github.com/mathcode-academy/mathcode/internal/auth"
	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/notify"
	"github.com/mathcode-academy/mathcode/internal/progress"
	"github.com/mathcode-academy/mathcode/internal/report"
)

type meResponse struct {
	User       auth.User                  `json:"user"`
	Profile    *progress.Profile          `json:"profile"`
	Progress   progress.UserProgress      `json:"progress"`
	NextLesson *curriculum.LessonMetadata `json:"next_lesson"`
	Tracks     []curriculum.TrackProgress `json:"tracks"`
}

type completeRequest struct {
	Answers map[string]int `json:"answers"`
}

// snapshot loads the caller's tracker and returns its current state.
func (s *server) snapshot(r *http.Request) (auth.User, progress.UserProgress, *progress.Profile, error) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		return auth.User{}, progress.UserProgress{}, nil, progress.ErrUnauthenticated
	}
	t, err := s.service.Load(r.Context(), user.ID)
	if err != nil {
		return *user, progress.UserProgress{}, nil, err
	}
	p, profile, _ := t.Snapshot()
	return *user, p, profile, nil
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, p, profile, err := s.snapshot(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	done := curriculum.NewLessonSet(p.CompletedLessons...)
	resp := meResponse{
		User:     user,
		Profile:  profile,
		Progress: p,
		Tracks:   s.catalog.TrackProgress(done),
	}
	if next, ok := s.catalog.NextUncompleted(done); ok {
		resp.NextLesson = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		writeServiceError(w, r, progress.ErrUnauthenticated)
		return
	}

	var req completeRequest
	if err := decodeJSON(w, r, s.maxBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	answers, err := parseAnswers(req.Answers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.service.Submit(r.Context(), user.ID, lessonIDFromPath(r), answers)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseAnswers converts JSON object keys to practice ids.
func parseAnswers(in map[string]int) (map[int]int, error) {
	out := make(map[int]int, len(in))
	for k, v := range in {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("answer key %q is not a practice id", k)
		}
		out[id] = v
	}
	return out, nil
}

func (s *server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	_, p, _, err := s.snapshot(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list := achievement.Evaluate(s.catalog, p)
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements": list,
		"unlocked":     achievement.Unlocked(list),
		"total":        len(list),
	})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	user, p, profile, err := s.snapshot(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	name := user.DisplayName
	if profile != nil && profile.DisplayName != "" {
		name = profile.DisplayName
	}

	var buf bytes.Buffer
	err = report.WriteProgressXLSX(&buf, report.Input{
		DisplayName:  name,
		Progress:     p,
		Catalog:      s.catalog,
		Achievements: achievement.Evaluate(s.catalog, p),
		GeneratedAt:  s.now(),
	})
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("export progress: %w", err))
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="mathcode-progress.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export", "user_id", user.ID, "error", err)
	}
}

func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFrom(r.Context())
	if !ok {
		writeServiceError(w, r, progress.ErrUnauthenticated)
		return
	}
	if err := s.verifier.SignOut(r.Context(), sess); err != nil {
		writeServiceError(w, r, fmt.Errorf("sign out: %w", err))
		return
	}
	s.service.Forget(sess.User.ID)
	slog.Info("user signed out", "user_id", sess.User.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, p, _, err := s.snapshot(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	hello := notify.ProgressMessage(p)
	if err := s.ws.Accept(w, r, user.ID, &hello); err != nil {
		slog.Warn("websocket closed with error", "user_id", user.ID, "error", err)
	}
}
