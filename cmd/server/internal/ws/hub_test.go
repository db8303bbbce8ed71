package ws

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestHubPublishReachesSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "sess-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.SubscriberCount("sess-1") == 1 })

	hub.Publish(pipeline.ProgressEvent{
		SessionID: "sess-1", Stage: "transcribe", Turn: 2, Total: 5, Timestamp: time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev pipeline.ProgressEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Stage != "transcribe" || ev.Turn != 2 || ev.Total != 5 {
		t.Errorf("unexpected event: %+v", ev)
	}

	// events for other sessions must not arrive
	hub.Publish(pipeline.ProgressEvent{SessionID: "sess-2", Stage: "ingest"})
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := conn.ReadJSON(&ev); err == nil {
		t.Errorf("received foreign session event: %+v", ev)
	}
}

func TestHubDisconnectCleansUp(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "sess-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.SubscriberCount("sess-1") == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.SubscriberCount("sess-1") == 0 })
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	sub := hub.subscribe("sess-1")

	// nobody reads: filling the buffer plus one evicts the subscriber
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(pipeline.ProgressEvent{SessionID: "sess-1", Stage: "transcribe", Turn: i})
	}
	if got := hub.SubscriberCount("sess-1"); got != 0 {
		t.Fatalf("slow subscriber not dropped, count = %d", got)
	}

	// buffered events drain, then the channel reports closed
	received := 0
	for range sub.events {
		received++
	}
	if received != subscriberBuffer {
		t.Errorf("drained %d events, want %d", received, subscriberBuffer)
	}

	// unsubscribing after the drop must not double-close
	hub.unsubscribe("sess-1", sub)
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	// must return immediately with nobody listening
	hub.Publish(pipeline.ProgressEvent{SessionID: "sess-1", Stage: "ingest"})
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(testLogger())
	sub := hub.subscribe("sess-1")
	hub.unsubscribe("sess-1", sub)
	hub.unsubscribe("sess-1", sub)
	if got := hub.SubscriberCount("sess-1"); got != 0 {
		t.Errorf("count = %d after unsubscribe", got)
	}
}
