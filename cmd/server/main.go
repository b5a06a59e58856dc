package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/mathcode-academy/mathcode/internal/auth"
	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/events"
	"github.com/mathcode-academy/mathcode/internal/httpapi"
	"github.com/mathcode-academy/mathcode/internal/notify"
	"github.com/mathcode-academy/mathcode/internal/platform/cache"
	"github.com/mathcode-academy/mathcode/internal/platform/config"
	"github.com/mathcode-academy/mathcode/internal/platform/database"
	"github.com/mathcode-academy/mathcode/internal/platform/logging"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	pg, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}

	d := deps{
		store:       pg,
		events:      events.NewPostgresLogger(db.Pool),
		revocations: auth.NewMemoryRevocations(),
		checks:      map[string]httpapi.HealthChecker{"database": db},
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			defer c.Close()
			cached, err := progress.NewCachedStore(pg, c, cfg.Cache.TTL)
			if err != nil {
				return err
			}
			d.store = cached
			d.revocations = auth.NewRedisRevocations(c)
			d.checks["cache"] = c
		}
	}

	a, err := newApp(cfg, d)
	if err != nil {
		return err
	}
	defer a.gateway.Close()

	srv := httpapi.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), a.handler)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "lessons", a.service.Catalog().Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Open sockets are hijacked and not tracked by Shutdown.
	a.ws.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// deps are the stateful backends chosen by run.
type deps struct {
	store       progress.Store
	events      events.Logger
	revocations auth.Revocations
	checks      map[string]httpapi.HealthChecker
}

type app struct {
	handler  http.Handler
	service  *progress.Service
	verifier *auth.Verifier
	gateway  *notify.Gateway
	ws       *notify.WebSocketChannel
}

// newApp wires the catalog, progress service, notifications and auth into
// the HTTP handler.
func newApp(cfg *config.Config, d deps) (*app, error) {
	catalog, err := loadCatalog(cfg.CurriculumPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	ws := notify.NewWebSocketChannel()
	gw := notify.NewGateway()
	gw.Register("websocket", ws)

	svc, err := progress.NewService(progress.ServiceConfig{
		Store:     d.store,
		Catalog:   catalog,
		Events:    d.events,
		Publisher: gw,
		Location:  loc,
		IdleTTL:   cfg.Progress.SessionIdle,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, d.revocations)
	if err != nil {
		return nil, err
	}

	h, err := httpapi.NewHandler(httpapi.Config{
		Service:   svc,
		Verifier:  verifier,
		WebSocket: ws,
		Checks:    d.checks,
	})
	if err != nil {
		return nil, err
	}

	return &app{handler: h, service: svc, verifier: verifier, gateway: gw, ws: ws}, nil
}

func loadCatalog(dir string) (*curriculum.Catalog, error) {
	if dir == "" {
		return curriculum.LoadEmbedded()
	}
	slog.Info("loading curriculum from disk", "path", dir)
	return curriculum.LoadDir(dir)
}
