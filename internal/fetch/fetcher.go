// Package fetch retrieves JSON documents over HTTP with timeout-driven
// cancellation, observable lifecycle state and primary/fallback resolution.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const defaultUserAgent = "songbook/1.0"

// maxBodySize caps a single JSON document.
const maxBodySize = 32 << 20

// Request describes one JSON fetch. It is passed by value and never mutated
// after being issued.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
	// Timeout aborts the attempt when it elapses. Zero means no timeout.
	Timeout time.Duration
	// SlowThreshold overrides the slow-response threshold when Timeout is set.
	SlowThreshold time.Duration
	// BestAttempt accepts documents that fail schema validation.
	BestAttempt bool
}

// WithURL returns a copy of r addressed at url.
func (r Request) WithURL(url string) Request {
	r.URL = url
	return r
}

// Kind tags the variant of an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindCancelled
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindCancelled:
		return "cancelled"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of a fetch: Success carries Data, Cancelled and
// Failed carry Err.
type Outcome[T any] struct {
	Kind Kind
	Data T
	Err  error
}

// OK reports a successful outcome.
func (o Outcome[T]) OK() bool { return o.Kind == KindSuccess }

// Succeeded builds a Success outcome.
func Succeeded[T any](v T) Outcome[T] { return Outcome[T]{Kind: KindSuccess, Data: v} }

// Failed builds a Failed outcome.
func Failed[T any](err error) Outcome[T] { return Outcome[T]{Kind: KindFailed, Err: err} }

// Cancelled builds a Cancelled outcome.
func Cancelled[T any](cause error) Outcome[T] {
	return Outcome[T]{Kind: KindCancelled, Err: fmt.Errorf("%w: %w", ErrCancelled, cause)}
}

// ErrCancelled marks an attempt aborted by timeout or by its caller.
var ErrCancelled = errors.New("fetch: cancelled")

// StatusError is returned for HTTP responses with a 4xx or 5xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s returned status %d", e.URL, e.Code)
}

// ParseError wraps a JSON decoding failure.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("fetch: decode %s: %v", e.URL, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError wraps a document that decoded but failed validation.
type SchemaError struct {
	URL string
	Err error
}

func (e *SchemaError) Error() string { return fmt.Sprintf("fetch: invalid document %s: %v", e.URL, e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }

// Doer is the subset of *http.Client used by Fetcher.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetcher issues JSON requests.
type Fetcher struct {
	client    Doer
	userAgent string
	logger    *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c Doer) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher builds a Fetcher. The default client understands http, https
// and file URLs.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Transport: NewTransport()},
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewTransport clones the default transport and registers the file scheme
// so bundled books can be read straight from disk.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return t
}

// Logger returns the fetcher's logger.
func (f *Fetcher) Logger() *slog.Logger { return f.logger }

// JSON performs req and decodes the body into T. It never retries.
func JSON[T any](ctx context.Context, f *Fetcher, req Request) Outcome[T] {
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Failed[T](fmt.Errorf("fetch: create request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Cancelled[T](ctx.Err())
		}
		return Failed[T](fmt.Errorf("fetch: execute request %s: %w", req.URL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return Failed[T](&StatusError{URL: req.URL, Code: resp.StatusCode})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return Cancelled[T](ctx.Err())
		}
		return Failed[T](fmt.Errorf("fetch: read body %s: %w", req.URL, err))
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return Failed[T](&ParseError{URL: req.URL, Err: err})
	}

	if v, ok := any(&out).(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			if !req.BestAttempt {
				return Failed[T](&SchemaError{URL: req.URL, Err: err})
			}
			f.logger.Warn("fetch: accepting invalid document",
				slog.String("url", req.URL),
				slog.String("error", err.Error()))
		}
	}
	return Succeeded(out)
}

// IsCancelled reports whether err marks a cancelled attempt.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
