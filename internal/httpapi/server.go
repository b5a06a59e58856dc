// Package httpapi exposes the catalog and learner progress over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mathcode-academy/mathcode/internal/auth"
	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/notify"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

const defaultMaxRequestBytes = 64 << 10

// HealthChecker is a dependency that readyz must reach.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the handler's dependencies.
type Config struct {
	Service   *progress.Service
	Verifier  *auth.Verifier
	WebSocket *notify.WebSocketChannel // nil disables /api/ws
	Checks    map[string]HealthChecker
	Now       func() time.Time

	MaxRequestBytes int64
}

type server struct {
	service  *progress.Service
	catalog  *curriculum.Catalog
	verifier *auth.Verifier
	ws       *notify.WebSocketChannel
	checks   map[string]HealthChecker
	now      func() time.Time
	maxBytes int64
}

// NewServer wraps the handler in an http.Server with the service's timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /api/ws holds the response open.
	}
}

// NewHandler builds the routed handler with request id, access log and
// panic recovery middleware.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("progress service is nil")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("auth verifier is nil")
	}
	s := &server{
		service:  cfg.Service,
		catalog:  cfg.Service.Catalog(),
		verifier: cfg.Verifier,
		ws:       cfg.WebSocket,
		checks:   cfg.Checks,
		now:      cfg.Now,
		maxBytes: cfg.MaxRequestBytes,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxRequestBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/tracks", s.handleTracks)
	mux.HandleFunc("GET /api/lessons", s.handleLessons)
	mux.HandleFunc("GET /api/lessons/{track}/{module}/{slug}", s.handleLesson)

	authed := func(h http.HandlerFunc) http.Handler { return s.verifier.Require(h) }
	mux.Handle("GET /api/me", authed(s.handleMe))
	mux.Handle("POST /api/lessons/{track}/{module}/{slug}/complete", authed(s.handleComplete))
	mux.Handle("GET /api/achievements", authed(s.handleAchievements))
	mux.Handle("GET /api/progress/export.xlsx", authed(s.handleExport))
	mux.Handle("POST /api/auth/signout", authed(s.handleSignOut))
	if s.ws != nil {
		mux.Handle("GET /api/ws", queryTokenMiddleware(authed(s.handleWebSocket)))
	}

	var h http.Handler = mux
	h = recoverMiddleware(h)
	h = accessLogMiddleware(h)
	h = requestIDMiddleware(h)
	return h, nil
}
