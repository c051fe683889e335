package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/starford/florae/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
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

	b.Publish(Event{Type: "plant.deleted", Data: map[string]string{"id": "p-1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: plant.deleted") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"p-1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestObserve_SessionState(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Observe(pipeline.Event{
		SessionID: "s-1",
		From:      pipeline.StateRecognizing,
		State:     pipeline.StateFailed,
		Reason:    pipeline.ReasonNoSuggestionsFound,
		Elapsed:   1500 * time.Millisecond,
	})

	select {
	case msg := <-ch:
		s := string(msg)
		for _, want := range []string{
			"event: session.state",
			`"session_id":"s-1"`,
			`"state":"failed"`,
			`"reason":"no_suggestions_found"`,
			`"elapsed_ms":1500`,
		} {
			if !strings.Contains(s, want) {
				t.Errorf("missing %s in %q", want, s)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestObserve_GalleryThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Observe(pipeline.Event{SessionID: "a", From: pipeline.StateReady, State: pipeline.StateSaving})
	b.Observe(pipeline.Event{SessionID: "a", From: pipeline.StateSaving, State: pipeline.StateSaved})
	b.Observe(pipeline.Event{SessionID: "b", From: pipeline.StateSaving, State: pipeline.StateSaved})

	time.Sleep(50 * time.Millisecond)
	gallery, state := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: gallery.updated") {
			gallery++
		} else {
			state++
		}
	}

	if state != 3 {
		t.Errorf("session events = %d, want 3", state)
	}
	if gallery != 1 {
		t.Errorf("gallery events = %d, want 1 (throttled)", gallery)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Observe(pipeline.Event{SessionID: "s-9", State: pipeline.StateReady})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: session.state") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
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

	// Client buffer holds 64; the rest must not block the loop.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}

func TestObserveCountsDroppedTransitions(t *testing.T) {
	// No run loop, so the queue never drains.
	b := &Broker{transitionCh: make(chan pipeline.Event, 1)}
	b.Observe(pipeline.Event{State: pipeline.StateCapturing})
	b.Observe(pipeline.Event{State: pipeline.StateRecognizing})
	b.Observe(pipeline.Event{State: pipeline.StateEnriching})
	if n := b.Dropped(); n != 2 {
		t.Fatalf("dropped = %d, want 2", n)
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

	// No-ops after close.
	b.Publish(Event{Type: "x", Data: nil})
	b.Observe(pipeline.Event{SessionID: "s", State: pipeline.StateIdle})
	b.Close()
}
