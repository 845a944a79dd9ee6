// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/snapshot"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// components are the wired parts shared by the HTTP and MCP entry points.
type components struct {
	store *storage.FS
	db    *index.DB
	snaps *snapshot.Store
	svc   *noteservice.Service
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// build opens storage and the index and wires the note service. The caller
// closes the returned index.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...noteservice.Option) (*components, error) {
	for _, dir := range []string{cfg.Vault.Path, cfg.History.Path} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	history, err := storage.NewHistory(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}
	snaps := snapshot.New(store, history,
		snapshot.WithMaxSnapshots(cfg.History.MaxSnapshots),
		snapshot.WithLogger(logger),
	)

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	opts = append([]noteservice.Option{
		noteservice.WithRenderer(markdown.New(markdown.WithListMarkers(cfg.Render.ListMarkers))),
		noteservice.WithDefaultNote(cfg.Vault.DefaultNote),
		noteservice.WithLogger(logger),
	}, opts...)
	svc := noteservice.NewService(store, db, snaps, opts...)

	if err := svc.EnsureDefault(ctx); err != nil {
		logger.Warn("seeding default note failed", slog.String("error", err.Error()))
	}
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &components{store: store, db: db, snaps: snaps, svc: svc}, nil
}

// Run starts the HTTP server and the vault watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("history_path", cfg.History.Path),
		slog.Int("max_snapshots", cfg.History.MaxSnapshots),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := build(ctx, cfg, logger, noteservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer c.db.Close()

	apiRouter := api.NewRouter(c.svc, c.snaps.MaxSnapshots(), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.db.Ping(); err != nil {
			logger.Error("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// External edits are re-indexed and pushed to SSE clients.
	g.Go(func() error {
		if err := index.Watch(gCtx, c.db, c.store, c.store.Root(), logger, broker.PublishNoteEvent); err != nil {
			logger.Warn("vault watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)
	slog.SetDefault(logger)

	c, err := build(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	logger.Info("Starting MCP server", slog.String("version", app.version))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
