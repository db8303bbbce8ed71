// Package ws fans pipeline progress events out to the websocket
// subscribers of each session. Publishing never blocks the pipeline:
// a subscriber that cannot keep up is dropped.
package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

// subscriberBuffer 每个订阅者的事件缓冲；写满即视为慢消费者并被移除
const subscriberBuffer = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscriber struct {
	events chan pipeline.ProgressEvent
}

// Hub routes progress events to the subscribers of their session.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*subscriber]bool // session id → subscribers
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   map[string]map[*subscriber]bool{},
	}
}

// Publish delivers the event to the session's subscribers. The signature
// matches pipeline.ProgressFunc so the hub wires directly into the
// pipeline. Slow consumers are dropped, never waited on.
func (h *Hub) Publish(ev pipeline.ProgressEvent) {
	h.mu.Lock()
	var dropped int
	for sub := range h.subs[ev.SessionID] {
		select {
		case sub.events <- ev:
		default:
			delete(h.subs[ev.SessionID], sub)
			close(sub.events)
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		h.logger.Warn("dropped slow progress subscribers",
			"session_id", ev.SessionID, "dropped", dropped)
	}
}

// SubscriberCount returns the session's live subscriber count.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (h *Hub) subscribe(sessionID string) *subscriber {
	sub := &subscriber{events: make(chan pipeline.ProgressEvent, subscriberBuffer)}
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[*subscriber]bool{}
	}
	h.subs[sessionID][sub] = true
	h.mu.Unlock()
	return sub
}

// unsubscribe removes the subscriber unless Publish already dropped it.
func (h *Hub) unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID][sub] {
		delete(h.subs[sessionID], sub)
		close(sub.events)
	}
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// Serve upgrades the request and streams the session's progress events as
// JSON until the client disconnects or falls behind.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.subscribe(sessionID)
	defer h.unsubscribe(sessionID, sub)

	// 读取循环只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.events:
			if !ok {
				return // dropped as a slow consumer
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
