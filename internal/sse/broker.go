// Package sse implements a Server-Sent Events broker for fetch status and
// library updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeFetchStatus    = "fetch.status"
	TypeLibraryUpdated = "library.updated"
	TypeBookCreated    = "book.created"
	TypeBookUpdated    = "book.updated"
	TypeBookDeleted    = "book.deleted"
	TypeCatalogUpdated = "catalog.updated"
)

const (
	// historySize is how many recent events a reconnecting client can replay.
	historySize = 128
	// clientBuffer is the per-client queue; a full queue drops events.
	clientBuffer = 64
	// retryMillis is the reconnect delay advertised to clients.
	retryMillis = 3000
)

// keepAlive is the interval of comment pings on idle streams.
var keepAlive = 15 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type record struct {
	id  uint64
	typ string
	raw []byte
}

type subscribeReq struct {
	ch     chan []byte
	after  uint64
	filter map[string]bool
}

type client struct {
	filter map[string]bool
}

func (c client) wants(typ string) bool {
	return len(c.filter) == 0 || c.filter[typ]
}

type bookEventReq struct {
	kind string
	book string
	doc  string
}

// Broker fans events out to SSE clients and keeps a short replay history.
//
// The run goroutine owns the client set, the history ring, the event
// sequence and the catalog throttle timestamp.
type Broker struct {
	catalogMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	bookEventCh   chan bookEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one catalog.updated per
// catalogThrottle.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		bookEventCh:   make(chan bookEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]client)
	history := make([]record, 0, historySize)
	var seq uint64
	var lastCatalog time.Time

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		rec := record{id: seq, typ: event.Type, raw: frame(seq, event.Type, payload)}
		if len(history) == historySize {
			copy(history, history[1:])
			history = history[:historySize-1]
		}
		history = append(history, rec)

		for ch, c := range clients {
			if c.wants(rec.typ) {
				send(ch, rec.raw)
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			c := client{filter: req.filter}
			clients[req.ch] = c
			if req.after == 0 {
				continue
			}
			for _, rec := range history {
				if rec.id > req.after && c.wants(rec.typ) {
					send(req.ch, rec.raw)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.bookEventCh:
			typ, ok := bookEventType(req.kind)
			if !ok {
				continue
			}
			broadcast(Event{Type: typ, Data: map[string]string{"book": req.book, "document": req.doc}})

			if now := time.Now(); now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func frame(id uint64, typ string, payload []byte) []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, typ, payload))
}

func bookEventType(kind string) (string, bool) {
	switch kind {
	case "created":
		return TypeBookCreated, true
	case "updated":
		return TypeBookUpdated, true
	case "deleted":
		return TypeBookDeleted, true
	}
	return "", false
}

// Close stops the broker loop and closes all client channels. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives every event type.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0, nil)
}

// SubscribeFrom adds a client that first replays the retained events newer
// than lastID and then receives live events. An empty types list means all
// event types.
func (b *Broker) SubscribeFrom(lastID uint64, types []string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	var filter map[string]bool
	if len(types) > 0 {
		filter = make(map[string]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, after: lastID, filter: filter}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishFetchStatus broadcasts one fetch status transition. It never
// blocks: when the queue is full the event is dropped.
func (b *Broker) PublishFetchStatus(data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- Event{Type: TypeFetchStatus, Data: data}:
	default:
	}
}

// PublishLibrary broadcasts the new imported-book list.
func (b *Broker) PublishLibrary(refs []string) {
	if refs == nil {
		refs = []string{}
	}
	b.Publish(Event{Type: TypeLibraryUpdated, Data: map[string][]string{"books": refs}})
}

// PublishBookEvent publishes a bundled document change and a throttled
// catalog.updated event. kind is one of "created", "updated", "deleted";
// other kinds are ignored.
func (b *Broker) PublishBookEvent(kind, book, doc string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.bookEventCh <- bookEventReq{kind: kind, book: book, doc: doc}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
//
// A Last-Event-ID header replays retained events after that id. The types
// query parameter, a comma-separated list, restricts the stream.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.SubscribeFrom(lastID, types)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
