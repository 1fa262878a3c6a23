// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/songbook/internal/api"
	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/bundle"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/prefs"
	"github.com/starford/songbook/internal/sse"
	"github.com/starford/songbook/internal/watcher"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg.App, os.Stdout)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("books_dir", cfg.Books.Dir),
		slog.String("platform", string(cfg.App.Platform)),
		slog.String("mode", cfg.App.Mode),
		slog.String("version", cfg.App.Version),
		slog.String("prefs_driver", cfg.Prefs.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the bundled books directory exists.
	if err := os.MkdirAll(cfg.Books.Dir, 0o755); err != nil {
		return fmt.Errorf("create books dir: %w", err)
	}

	books, err := bundle.NewFS(cfg.Books.Dir)
	if err != nil {
		return fmt.Errorf("init bundle: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := Open(ctx, cfg, logger, Hooks{
		Status: func(ev bookservice.StatusEvent) {
			broker.PublishFetchStatus(ev)
		},
		LibraryChanged: func(refs []catalog.Ref) {
			broker.PublishLibrary(catalog.Strings(refs))
		},
	})
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	defer rt.Close()

	r := newRouter(rt, books, broker)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	// Watch the bundle; a changed document drops the cached copy.
	g.Go(func() error {
		err := watcher.Watch(gCtx, books, logger, func(kind string, ref catalog.Ref, doc string) {
			rt.Service.Invalidate(ref)
			broker.PublishBookEvent(kind, string(ref), doc)
		})
		if err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		logger.Info("Shutting down server...")
		stop()
		// Closing the broker ends open event streams so Shutdown can drain.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// newRouter mounts the API under /api and the bundled documents under /books.
func newRouter(rt *Runtime, books *bundle.FS, broker *sse.Broker) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok", "")
	})
	r.Get("/health/ready", readiness(rt, books))

	r.Mount("/api", api.NewRouter(rt.Service, rt.Library, broker))
	r.Mount("/books", api.NewBundleHandler(books).Routes())
	return r
}

// readiness reports ready once the persisted version matches the running
// one and the bundle is listable.
func readiness(rt *Runtime, books *bundle.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok, err := rt.Prefs.Get(r.Context(), prefs.KeyAppVersion)
		switch {
		case err != nil:
			writeHealth(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		case !ok || v != rt.Config.App.Version:
			writeHealth(w, http.StatusServiceUnavailable, "migrating", "")
			return
		}
		if _, err := books.Books(); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
		writeHealth(w, http.StatusOK, "ok", "")
	}
}

func writeHealth(w http.ResponseWriter, code int, status, detail string) {
	body := map[string]string{"status": status}
	if detail != "" {
		body["error"] = detail
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
