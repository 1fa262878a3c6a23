package fetch

import (
	"context"
	"log/slog"
	"sync"
)

// Session tracks one JSON fetch keyed by its URL. Status and Data are safe
// to read from any goroutine while Execute runs.
type Session[T any] struct {
	fetcher *Fetcher
	logger  *slog.Logger
	life    *lifecycle

	reqMu sync.Mutex
	req   Request

	// guarded by life.mu
	data    T
	hasData bool
	last    Outcome[T]
	ran     bool
}

// NewSession binds a session to req. Nothing is fetched until Execute.
func NewSession[T any](f *Fetcher, req Request) *Session[T] {
	return &Session[T]{
		fetcher: f,
		logger:  f.Logger(),
		life:    newLifecycle(req.URL),
		req:     req,
	}
}

// Execute runs one attempt against the session's current URL and blocks
// until it settles. Re-entrant: a concurrent Execute or Refresh supersedes
// this one, whose result is then returned to the caller but not recorded.
func (s *Session[T]) Execute(ctx context.Context) Outcome[T] {
	s.reqMu.Lock()
	req := s.req
	s.reqMu.Unlock()

	var zero T
	gen, attemptCtx, cancel := s.life.begin(ctx, req.URL, SlowThreshold(req), func() {
		s.data, s.hasData = zero, false
	})
	defer cancel()

	out := JSON[T](attemptCtx, s.fetcher, req)

	recorded := s.life.settle(gen, func(st *Status) {
		s.last, s.ran = out, true
		switch out.Kind {
		case KindSuccess:
			s.data, s.hasData = out.Data, true
			st.IsFinished = true
			st.Phase = PhaseFinished
		case KindCancelled:
			st.Phase = PhaseCancelled
		case KindFailed:
			st.IsFailed = true
			st.IsFinished = true
			st.Phase = PhaseFailed
			st.Err = out.Err
		}
	})

	switch {
	case !recorded:
		s.logger.Debug("fetch: discarding superseded response", slog.String("url", req.URL))
	case out.Kind == KindFailed:
		s.logger.Error("fetch: request failed", slog.String("url", req.URL), slog.String("error", out.Err.Error()))
	case out.Kind == KindCancelled:
		s.logger.Debug("fetch: request cancelled", slog.String("url", req.URL))
	}
	return out
}

// Refresh rebinds the session to url. A changed URL re-executes from Idle;
// an unchanged URL returns the last recorded outcome, executing only if the
// session never ran.
func (s *Session[T]) Refresh(ctx context.Context, url string) Outcome[T] {
	s.reqMu.Lock()
	changed := s.req.URL != url
	s.req = s.req.WithURL(url)
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
func (s *Session[T]) Status() Status { return s.life.snapshot() }

// Data returns the document of the latest successful attempt.
func (s *Session[T]) Data() (T, bool) {
	s.life.mu.Lock()
	defer s.life.mu.Unlock()
	return s.data, s.hasData
}

// Subscribe registers fn for every status transition. Call the returned
// function to unsubscribe.
func (s *Session[T]) Subscribe(fn Observer) func() { return s.life.subscribe(fn) }

// Stop cancels the in-flight attempt.
func (s *Session[T]) Stop() { s.life.stop() }
