package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/pkg/segment"
)

// EventType discriminates events on the /ws/events feed.
type EventType string

// Event types.
const (
	EventText       EventType = "text"
	EventInvocation EventType = "invocation"
	EventResult     EventType = "result"
)

// Event is one entry on the websocket feed.
type Event struct {
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Text       string            `json:"text,omitempty"`
	Capability string            `json:"capability,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	CallID     int64             `json:"call_id,omitempty"`
	OK         bool              `json:"ok,omitempty"`
	Output     string            `json:"output,omitempty"`
	Failure    string            `json:"failure,omitempty"`
}

const subscriberBuffer = 64

// EventHub fans session events out to websocket subscribers. It implements
// session.Display so a running session can be watched live; a subscriber
// that falls behind is dropped rather than allowed to stall the session.
type EventHub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *slog.Logger
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{subs: make(map[*subscriber]struct{}), logger: logger}
}

// ShowText implements session.Display.
func (h *EventHub) ShowText(text string) {
	h.broadcast(Event{Type: EventText, Text: text})
}

// ShowInvocation implements session.Display.
func (h *EventHub) ShowInvocation(seg *segment.Segment) {
	h.broadcast(Event{
		Type:       EventInvocation,
		Capability: seg.Name,
		Params:     seg.ParamMap(),
	})
}

// ShowResult implements session.Display.
func (h *EventHub) ShowResult(callID int64, capabilityName string, res dispatch.Result) {
	ev := Event{
		Type:       EventResult,
		CallID:     callID,
		Capability: capabilityName,
		OK:         res.OK,
	}
	if res.OK {
		ev.Output = res.Text
	} else {
		ev.Failure = string(res.Kind)
		ev.Output = res.Message
	}
	h.broadcast(ev)
}

// Subscribers reports the current subscriber count.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Further broadcasts are dropped.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.done)
		delete(h.subs, sub)
	}
}

func (h *EventHub) broadcast(ev Event) {
	ev.Timestamp = time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer; disconnect instead of blocking the session.
			close(sub.done)
			delete(h.subs, sub)
		}
	}
}

func (h *EventHub) subscribe() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *EventHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		close(sub.done)
		delete(h.subs, sub)
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects or the hub closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	sub, ok := h.subscribe()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case ev := <-sub.ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-sub.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
