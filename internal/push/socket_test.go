package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func testConfig(wsURL string) *config.PushConfig {
	return &config.PushConfig{
		URL:               wsURL,
		HandshakeTimeout:  2 * time.Second,
		PingInterval:      50 * time.Millisecond,
		PongTimeout:       2 * time.Second,
		ReconnectBaseWait: 5 * time.Millisecond,
		ReconnectMaxWait:  20 * time.Millisecond,
		ReconnectAttempts: 3,
	}
}

type events struct {
	opens chan struct{}
	msgs  chan models.PushMessage
	downs chan bool
}

func newEvents() *events {
	return &events{
		opens: make(chan struct{}, 8),
		msgs:  make(chan models.PushMessage, 8),
		downs: make(chan bool, 8),
	}
}

func (e *events) handler() Handler {
	return Handler{
		OnOpen:  func() { e.opens <- struct{}{} },
		OnEvent: func(msg models.PushMessage) { e.msgs <- msg },
		OnDown:  func(_ error, final bool) { e.downs <- final },
	}
}

func await[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriptionDeliversEvents(t *testing.T) {
	received := newEvents()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("guest_id"); got != "guest-1" {
			t.Errorf("guest_id = %q, want guest-1", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]interface{}{
			"event": "trip:status:update",
			"data":  map[string]string{"id": "trip-1", "status": "active"},
		})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dialer := NewDialer(testConfig(wsURL(srv)), logger.Discard())
	sub := dialer.Subscribe(Target{GuestID: "guest-1"}, received.handler())
	defer sub.Close()

	await(t, received.opens, "open")
	msg := await(t, received.msgs, "event")
	if msg.Event != "trip:status:update" {
		t.Errorf("event = %q", msg.Event)
	}
	trip, err := msg.DecodeTrip()
	if err != nil {
		t.Fatalf("decode event data: %v", err)
	}
	if trip.ID != "trip-1" || trip.Status.Value != models.TripStatusActive {
		t.Errorf("trip = %+v", trip)
	}
}

func TestSubscriptionReconnectsAfterServerDrop(t *testing.T) {
	received := newEvents()
	connects := make(chan int, 8)
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		count++
		connects <- count
		if count == 1 {
			// First connection dies immediately; the client should
			// come back on its own.
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]interface{}{"event": "trip:status:update", "data": map[string]string{"id": "trip-1", "status": "active"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dialer := NewDialer(testConfig(wsURL(srv)), logger.Discard())
	sub := dialer.Subscribe(Target{TripID: "trip-1"}, received.handler())
	defer sub.Close()

	await(t, received.opens, "first open")
	if final := await(t, received.downs, "down"); final {
		t.Fatal("first drop reported as final")
	}
	await(t, received.opens, "reconnect open")
	await(t, received.msgs, "event after reconnect")
}

func TestSubscriptionGivesUpAfterExhaustedAttempts(t *testing.T) {
	received := newEvents()
	cfg := testConfig("ws://127.0.0.1:1/ws") // nothing listens here
	cfg.HandshakeTimeout = 200 * time.Millisecond

	dialer := NewDialer(cfg, logger.Discard())
	sub := dialer.Subscribe(Target{TripID: "trip-1"}, received.handler())
	defer sub.Close()

	var final bool
	for i := 0; i < cfg.ReconnectAttempts; i++ {
		final = await(t, received.downs, "down")
	}
	if !final {
		t.Error("last attempt not reported as final")
	}
	select {
	case <-received.downs:
		t.Error("subscription kept trying after the final attempt")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriptionDropsMalformedFrames(t *testing.T) {
	received := newEvents()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"id":"trip-1"}}`))
		conn.WriteJSON(map[string]interface{}{"event": "trip:status:update", "data": map[string]string{"id": "trip-1", "status": "completed"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dialer := NewDialer(testConfig(wsURL(srv)), logger.Discard())
	sub := dialer.Subscribe(Target{TripID: "trip-1"}, received.handler())
	defer sub.Close()

	msg := await(t, received.msgs, "well-formed event")
	if msg.Event != "trip:status:update" {
		t.Errorf("event = %q, malformed frames should have been skipped", msg.Event)
	}
}

func TestSubscriptionCloseIsIdempotentAndStopsReconnect(t *testing.T) {
	received := newEvents()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dialer := NewDialer(testConfig(wsURL(srv)), logger.Discard())
	sub := dialer.Subscribe(Target{TripID: "trip-1"}, received.handler())
	await(t, received.opens, "open")

	sub.Close()
	sub.Close()

	select {
	case <-received.opens:
		t.Error("reconnected after Close")
	case <-time.After(200 * time.Millisecond):
	}
}
