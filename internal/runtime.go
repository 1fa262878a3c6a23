package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/fetch"
	"github.com/starford/songbook/internal/library"
	"github.com/starford/songbook/internal/migrate"
	"github.com/starford/songbook/internal/prefs"
	"github.com/starford/songbook/internal/source"
)

// Hooks receive runtime notifications. Nil hooks are skipped.
type Hooks struct {
	Status         bookservice.Observer
	LibraryChanged func([]catalog.Ref)
}

// Runtime is the set of components shared by the server and CLI commands.
type Runtime struct {
	Config   *Config
	Logger   *slog.Logger
	Prefs    prefs.Store
	Library  *library.Library
	Resolver *source.Resolver
	Service  *bookservice.Service

	closers []io.Closer
}

// NewLogger builds the slog logger selected by the application config.
func NewLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Open opens the preference stores, runs pending migrations and wires the
// book service. A failed migration aborts Open.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger, hooks Hooks) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	store, err := prefs.Open(cfg.Prefs.Driver, cfg.Prefs.Path)
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	rt.Prefs = store
	rt.closers = append(rt.closers, store)

	var legacy prefs.Store
	if cfg.Prefs.LegacyPath != "" {
		t, err := prefs.OpenTOML(cfg.Prefs.LegacyPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open legacy prefs: %w", err)
		}
		legacy = t
		rt.closers = append(rt.closers, t)
	}

	if err := migrate.NewRunner(store, legacy, cfg.App.Version, logger).Migrate(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	libOpts := []library.Option{library.WithLogger(logger)}
	if hooks.LibraryChanged != nil {
		libOpts = append(libOpts, library.WithOnChange(hooks.LibraryChanged))
	}
	rt.Library = library.New(store, libOpts...)

	fetcher := fetch.NewFetcher(
		fetch.WithLogger(logger),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
	)
	rt.Resolver = source.NewResolver(resolverConfig(cfg))

	svcOpts := []bookservice.Option{
		bookservice.WithLogger(logger),
		bookservice.WithRequest(fetch.Request{
			Timeout:       cfg.Fetch.Timeout,
			SlowThreshold: cfg.Fetch.SlowThreshold,
		}),
	}
	if hooks.Status != nil {
		svcOpts = append(svcOpts, bookservice.WithObserver(hooks.Status))
	}
	rt.Service = bookservice.New(fetcher, rt.Resolver, rt.Library, svcOpts...)

	return rt, nil
}

// Close releases the preference stores.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// resolverConfig maps the application config onto the resolver. An empty
// books base URL points the local copy at this server.
func resolverConfig(cfg *Config) source.Config {
	base := cfg.Books.BaseURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d/", cfg.App.HTTP.Port)
	}
	return source.Config{
		Platform:   cfg.App.Platform,
		Production: cfg.App.Production(),
		LocalBase:  base,
		RemoteBase: cfg.Books.Remote.BaseURL,
		Org:        cfg.Books.Remote.Org,
		Repo:       cfg.Books.Remote.Repo,
		Branch:     cfg.Books.Remote.Branch,
	}
}
