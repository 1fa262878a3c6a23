package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// FallbackSession fetches from a primary URL and, when that attempt fails,
// from a fallback URL. Both attempts share one Status and one slow timer.
// A cancelled attempt never triggers the fallback.
type FallbackSession[T any] struct {
	fetcher *Fetcher
	logger  *slog.Logger
	life    *lifecycle

	reqMu    sync.Mutex
	req      Request
	fallback string

	// guarded by life.mu
	data    T
	hasData bool
	last    Outcome[T]
	ran     bool
}

// NewFallbackSession binds a session to req (the primary) and fallbackURL.
func NewFallbackSession[T any](f *Fetcher, req Request, fallbackURL string) *FallbackSession[T] {
	return &FallbackSession[T]{
		fetcher:  f,
		logger:   f.Logger(),
		life:     newLifecycle(req.URL),
		req:      req,
		fallback: fallbackURL,
	}
}

// Execute runs the primary attempt and, if it fails, the fallback attempt.
// The attempts are strictly sequential.
func (s *FallbackSession[T]) Execute(ctx context.Context) Outcome[T] {
	s.reqMu.Lock()
	req, fallbackURL := s.req, s.fallback
	s.reqMu.Unlock()

	var zero T
	gen, attemptCtx, cancel := s.life.begin(ctx, req.URL, SlowThreshold(req), func() {
		s.data, s.hasData = zero, false
	})
	defer cancel()

	out := JSON[T](attemptCtx, s.fetcher, req)
	switch out.Kind {
	case KindSuccess:
		s.finish(gen, out)
		return out
	case KindCancelled:
		s.cancelled(gen, req.URL, out)
		return out
	}

	primaryErr := out.Err
	s.logger.Warn("fetch: primary source failed",
		slog.String("url", req.URL),
		slog.String("fallback_url", fallbackURL),
		slog.String("error", primaryErr.Error()))

	if !s.life.update(gen, func(st *Status) bool {
		st.Source = SourceFallback
		st.URL = fallbackURL
		return true
	}) {
		// Superseded while the primary was in flight.
		return out
	}

	out = JSON[T](attemptCtx, s.fetcher, req.WithURL(fallbackURL))
	switch out.Kind {
	case KindSuccess:
		s.finish(gen, out)
		return out
	case KindCancelled:
		s.cancelled(gen, fallbackURL, out)
		return out
	}

	s.logger.Error("fetch: fallback source failed",
		slog.String("url", fallbackURL),
		slog.String("primary_url", req.URL),
		slog.String("error", out.Err.Error()))

	out = Failed[T](errors.Join(primaryErr, out.Err))
	s.life.settle(gen, func(st *Status) {
		s.last, s.ran = out, true
		st.IsFailed = true
		st.Phase = PhaseExhausted
		st.Err = out.Err
	})
	return out
}

func (s *FallbackSession[T]) finish(gen uint64, out Outcome[T]) {
	s.life.settle(gen, func(st *Status) {
		s.last, s.ran = out, true
		s.data, s.hasData = out.Data, true
		st.IsFinished = true
		st.Phase = PhaseFinished
	})
}

func (s *FallbackSession[T]) cancelled(gen uint64, url string, out Outcome[T]) {
	if s.life.settle(gen, func(st *Status) {
		s.last, s.ran = out, true
		st.Phase = PhaseCancelled
	}) {
		s.logger.Debug("fetch: request cancelled", slog.String("url", url))
	}
}

// Refresh rebinds the session. If either URL changed the session
// re-executes from Idle; otherwise the last outcome is returned.
func (s *FallbackSession[T]) Refresh(ctx context.Context, primaryURL, fallbackURL string) Outcome[T] {
	s.reqMu.Lock()
	changed := s.req.URL != primaryURL || s.fallback != fallbackURL
	s.req = s.req.WithURL(primaryURL)
	s.fallback = fallbackURL
	s.reqMu.Unlock()

	if !changed {
		s.life.mu.Lock()
		ran, last := s.ran, s.last
		s.life.mu.Unlock()
		if ran {
			return last
		}
	}
	return s.Execute(ctx)
}

// Status returns a copy of the current lifecycle flags.
func (s *FallbackSession[T]) Status() Status { return s.life.snapshot() }

// Data returns the document of the latest successful attempt.
func (s *FallbackSession[T]) Data() (T, bool) {
	s.life.mu.Lock()
	defer s.life.mu.Unlock()
	return s.data, s.hasData
}

// Subscribe registers fn for every status transition.
func (s *FallbackSession[T]) Subscribe(fn Observer) func() { return s.life.subscribe(fn) }

// Stop cancels the in-flight attempt.
func (s *FallbackSession[T]) Stop() { s.life.stop() }
