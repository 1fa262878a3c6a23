package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncRecorder guards the body so the handler goroutine and the test can
// share it.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishLibrary([]string{"CH"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: library.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"books":["CH"]`) {
			t.Errorf("missing data in %q", s)
		}
		if !strings.HasPrefix(s, "id: ") {
			t.Errorf("missing event id in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishFetchStatus(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishFetchStatus(map[string]any{"book": "ZH", "isSlow": true})

	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "event: fetch.status") {
			t.Errorf("unexpected message %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishBookEvent_CatalogThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishBookEvent("created", "CH", "summary.json")
	b.PublishBookEvent("updated", "CH", "songs.json")
	b.PublishBookEvent("renamed", "CH", "songs.json")

	time.Sleep(50 * time.Millisecond)
	catalogCount, bookCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "catalog.updated") {
			catalogCount++
		} else {
			bookCount++
		}
	}

	if bookCount != 2 {
		t.Errorf("book events = %d, want 2", bookCount)
	}
	if catalogCount != 1 {
		t.Errorf("catalog events = %d, want 1 (throttled)", catalogCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishBookEvent("deleted", "HZ", "index.json")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: book.deleted") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	for i := 0; i < 400; i++ {
		b.PublishFetchStatus(i)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishLibrary(nil)
	b.PublishFetchStatus("x")
	b.PublishBookEvent("updated", "CH", "songs.json")
}

func TestSubscribeFrom_ReplaysNewerEvents(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	first := b.Subscribe()
	defer b.Unsubscribe(first)

	b.PublishLibrary([]string{"CH"})
	b.PublishLibrary([]string{"CH", "HZ"})
	b.PublishLibrary([]string{"HZ"})

	deadline := time.After(time.Second)
	for got := 0; got < 3; {
		select {
		case <-first:
			got++
		case <-deadline:
			t.Fatal("timeout waiting for live events")
		}
	}

	late := b.SubscribeFrom(1, nil)
	defer b.Unsubscribe(late)
	time.Sleep(20 * time.Millisecond)

	msgs := drain(late)
	if len(msgs) != 2 {
		t.Fatalf("replayed %d events, want 2: %q", len(msgs), msgs)
	}
	if !strings.HasPrefix(msgs[0], "id: 2\n") || !strings.HasPrefix(msgs[1], "id: 3\n") {
		t.Errorf("unexpected replay order %q", msgs)
	}
}

func TestSubscribeFrom_TypeFilter(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	ch := b.SubscribeFrom(0, []string{TypeLibraryUpdated})
	defer b.Unsubscribe(ch)

	b.PublishFetchStatus("ignored")
	b.PublishBookEvent("updated", "CH", "songs.json")
	b.PublishLibrary(nil)
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "event: library.updated") {
		t.Fatalf("filtered stream = %q", msgs)
	}
	if !strings.Contains(msgs[0], `"books":[]`) {
		t.Errorf("nil library should encode as empty list: %q", msgs[0])
	}
}

func TestSSEHandler_LastEventIDAndPing(t *testing.T) {
	old := keepAlive
	keepAlive = 20 * time.Millisecond
	defer func() { keepAlive = old }()

	b := NewBroker(time.Second)
	defer b.Close()

	seed := b.Subscribe()
	b.PublishLibrary([]string{"CH"})
	b.PublishBookEvent("created", "HZ", "summary.json")
	time.Sleep(20 * time.Millisecond)
	b.Unsubscribe(seed)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events?types=book.created,catalog.updated", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if !strings.HasPrefix(body, "retry: ") {
		t.Errorf("missing retry advice: %q", body)
	}
	if strings.Contains(body, "library.updated") {
		t.Errorf("filtered type leaked: %q", body)
	}
	if !strings.Contains(body, "event: book.created") || !strings.Contains(body, "event: catalog.updated") {
		t.Errorf("replay missing: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("missing keep-alive ping: %q", body)
	}
}
