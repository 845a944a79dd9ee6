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

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
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

func TestPublishNoteEventDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a.md")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "event: note.created\n") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"name":"a.md"`) {
			t.Errorf("missing data in %q", s)
		}
		if strings.Contains(s, "snapshot_id") {
			t.Errorf("empty snapshot id not omitted: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishNoteEventUnknownKind(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("renamed", "a.md")
	if msgs := drain(ch); len(msgs) != 0 {
		t.Errorf("unexpected events: %q", msgs)
	}
}

func TestNotesChangedThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a.md")
	b.PublishNoteEvent("updated", "b.md")
	b.PublishSnapshotEvent(SnapshotCreated, "b.md", "20240101T000000Z", 0)

	changed, other := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: "+NotesChanged) {
			changed++
		} else {
			other++
		}
	}
	if other != 3 {
		t.Errorf("events = %d, want 3", other)
	}
	if changed != 1 {
		t.Errorf("notes.changed = %d, want 1 (throttled)", changed)
	}
}

func TestSnapshotEventsDoNotTriggerNotesChanged(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSnapshotEvent(HistoryCleared, "a.md", "", 4)

	msgs := drain(ch)
	if len(msgs) != 1 {
		t.Fatalf("events = %q", msgs)
	}
	if !strings.Contains(msgs[0], `"count":4`) {
		t.Errorf("payload = %q", msgs[0])
	}
}

// flushRecorder is a ResponseRecorder safe to read while the handler writes.
type flushRecorder struct {
	mu  sync.Mutex
	rec *httptest.ResponseRecorder
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{rec: httptest.NewRecorder()}
}

func (f *flushRecorder) Header() http.Header { return f.rec.Header() }

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Write(p)
}

func (f *flushRecorder) WriteHeader(code int) { f.rec.WriteHeader(code) }

func (f *flushRecorder) Flush() {}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := newFlushRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishNoteEvent("updated", "x.md")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("handler output missing heartbeat: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
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

	// More than the client buffer; must not block.
	for i := 0; i < clientBufferSize+10; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
	if n := b.ClientCount(); n != 1 {
		t.Errorf("clients = %d", n)
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

	b.PublishNoteEvent("updated", "x.md")
	b.PublishSnapshotEvent(SnapshotCreated, "x.md", "id", 0)
	b.Close()
}
