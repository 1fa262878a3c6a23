package fetch

import (
	"context"
	"sync"
	"time"
)

// DefaultSlowThreshold applies when a request has no timeout.
const DefaultSlowThreshold = 5 * time.Second

// Phase is the lifecycle position of a fetch session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseFinished  Phase = "finished"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
	// PhaseExhausted is the terminal state of a fallback session whose
	// primary and fallback attempts both failed. IsFinished stays false.
	PhaseExhausted Phase = "exhausted"
)

// Source names the attempt a fallback session is on.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Status is a point-in-time copy of a session's lifecycle flags.
type Status struct {
	IsFetching bool   `json:"isFetching"`
	IsSlow     bool   `json:"isSlow"`
	IsFinished bool   `json:"isFinished"`
	IsFailed   bool   `json:"isFailed"`
	Phase      Phase  `json:"phase"`
	Source     Source `json:"source,omitempty"`
	URL        string `json:"url"`
	Generation uint64 `json:"generation"`
	Err        error  `json:"-"`
}

// Terminal reports whether the session has settled.
func (s Status) Terminal() bool {
	switch s.Phase {
	case PhaseFinished, PhaseFailed, PhaseCancelled, PhaseExhausted:
		return true
	}
	return false
}

// SlowThreshold returns how long req may run before it counts as slow:
// DefaultSlowThreshold without a timeout, otherwise the explicit override,
// otherwise a fifth of the timeout.
func SlowThreshold(req Request) time.Duration {
	if req.Timeout <= 0 {
		return DefaultSlowThreshold
	}
	if req.SlowThreshold > 0 {
		return req.SlowThreshold
	}
	return req.Timeout / 5
}

// Observer receives a Status copy after every transition. It runs on the
// fetching goroutine and must not block.
type Observer func(Status)

// lifecycle holds the state shared by Session and FallbackSession.
// All mutations happen under mu and are tagged with the generation that
// produced them; writes from superseded generations are dropped.
type lifecycle struct {
	mu        sync.Mutex
	gen       uint64
	status    Status
	cancel    context.CancelFunc
	slow      *time.Timer
	observers map[int]Observer
	nextObs   int

	// notifyMu serialises observer delivery.
	notifyMu sync.Mutex
}

func newLifecycle(url string) *lifecycle {
	return &lifecycle{
		status:    Status{Phase: PhaseIdle, URL: url},
		observers: make(map[int]Observer),
	}
}

// begin starts a new generation: it cancels the previous attempt, resets
// every flag, marks the session fetching and arms the slow timer.
func (l *lifecycle) begin(parent context.Context, url string, slowAfter time.Duration, reset func()) (uint64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.slow != nil {
		l.slow.Stop()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.status = Status{
		IsFetching: true,
		Phase:      PhaseFetching,
		Source:     SourcePrimary,
		URL:        url,
		Generation: gen,
	}
	if reset != nil {
		reset()
	}
	l.slow = time.AfterFunc(slowAfter, func() { l.markSlow(gen) })
	snap := l.status
	l.mu.Unlock()

	l.notify(snap)
	return gen, ctx, cancel
}

func (l *lifecycle) markSlow(gen uint64) {
	l.update(gen, func(s *Status) bool {
		if !s.IsFetching || s.IsSlow {
			return false
		}
		s.IsSlow = true
		return true
	})
}

// update applies fn when gen is still current and reports whether it did.
// Observers are notified when fn reports a change.
func (l *lifecycle) update(gen uint64, fn func(*Status) bool) bool {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return false
	}
	changed := fn(&l.status)
	snap := l.status
	l.mu.Unlock()

	if changed {
		l.notify(snap)
	}
	return true
}

// settle stops the slow timer and applies the terminal transition.
func (l *lifecycle) settle(gen uint64, fn func(*Status)) bool {
	return l.update(gen, func(s *Status) bool {
		if l.slow != nil {
			l.slow.Stop()
		}
		s.IsFetching = false
		fn(s)
		return true
	})
}

func (l *lifecycle) snapshot() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *lifecycle) subscribe(fn Observer) func() {
	l.mu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

func (l *lifecycle) notify(s Status) {
	l.mu.Lock()
	obs := make([]Observer, 0, len(l.observers))
	for _, fn := range l.observers {
		obs = append(obs, fn)
	}
	l.mu.Unlock()

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	for _, fn := range obs {
		fn(s)
	}
}

// stop cancels the in-flight attempt, if any.
func (l *lifecycle) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}
