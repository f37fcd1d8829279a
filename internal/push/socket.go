// Package push maintains the real-time trip subscription: a single
// long-lived websocket per session, addressed by trip id (authenticated)
// or guest id (guest). Reconnection with capped backoff lives here; the
// sync engine only learns "open", "event", and "down".
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/pkg/logger"
)

const maxMessageSize = 64 * 1024

// Target addresses the subscription. Exactly one of TripID or GuestID
// is set, matching the credential mode that owns the trip.
type Target struct {
	TripID  string
	GuestID string
}

func (t Target) query() url.Values {
	values := url.Values{}
	if t.GuestID != "" {
		values.Set("guest_id", t.GuestID)
	} else {
		values.Set("trip_id", t.TripID)
	}
	return values
}

// Handler receives subscription lifecycle callbacks. Callbacks are
// invoked from the subscription's goroutines; the engine serializes
// them internally. Nil funcs are skipped.
type Handler struct {
	// OnOpen fires every time the socket (re)connects.
	OnOpen func()

	// OnEvent fires per decoded inbound frame.
	OnEvent func(models.PushMessage)

	// OnDown fires whenever the connection is lost or an attempt
	// fails. final is true once reconnect attempts are exhausted and
	// the subscription will not try again.
	OnDown func(err error, final bool)
}

// Dialer opens subscriptions against a push endpoint.
type Dialer struct {
	cfg *config.PushConfig
	log *logger.Logger
}

func NewDialer(cfg *config.PushConfig, log *logger.Logger) *Dialer {
	return &Dialer{cfg: cfg, log: log}
}

// Subscribe starts connecting in the background and returns
// immediately. The caller observes progress through the handler.
func (d *Dialer) Subscribe(target Target, handler Handler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		cfg:     d.cfg,
		log:     d.log,
		target:  target,
		handler: handler,
		cancel:  cancel,
	}
	go s.run(ctx)
	return s
}

// Subscription is one live push channel. Close is idempotent.
type Subscription struct {
	cfg     *config.PushConfig
	log     *logger.Logger
	target  Target
	handler Handler
	cancel  context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Close tears the subscription down and stops reconnecting. Safe to
// call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
}

func (s *Subscription) run(ctx context.Context) {
	attempt := 0
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			final := attempt >= s.cfg.ReconnectAttempts
			s.down(fmt.Errorf("push dial: %w", err), final)
			if final {
				s.log.WithError(err).Error("Push subscription giving up")
				return
			}
			if !s.sleep(ctx, s.backoff(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		s.setConn(conn)
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		if s.handler.OnOpen != nil {
			s.handler.OnOpen()
		}

		err = s.readLoop(ctx, conn)
		s.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		attempt++
		final := attempt >= s.cfg.ReconnectAttempts
		s.down(fmt.Errorf("push closed: %w", err), final)
		if final {
			s.log.WithError(err).Error("Push subscription giving up")
			return
		}
		if !s.sleep(ctx, s.backoff(attempt)) {
			return
		}
	}
}

func (s *Subscription) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("push url: %w", err)
	}
	endpoint.RawQuery = s.target.query().Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint.String(), nil)
	return conn, err
}

func (s *Subscription) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(ctx, conn, pingDone)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg models.PushMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// Protocol error: drop the frame, keep the channel.
			s.log.WithError(err).Warn("Malformed push frame dropped")
			continue
		}
		if msg.Event == "" {
			s.log.Warn("Push frame without event name dropped")
			continue
		}
		if s.handler.OnEvent != nil {
			s.handler.OnEvent(msg)
		}
	}
}

func (s *Subscription) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.PingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription) backoff(attempt int) time.Duration {
	wait := s.cfg.ReconnectBaseWait << (attempt - 1)
	if wait > s.cfg.ReconnectMaxWait || wait <= 0 {
		wait = s.cfg.ReconnectMaxWait
	}
	return wait
}

func (s *Subscription) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Subscription) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Subscription) down(err error, final bool) {
	if s.handler.OnDown != nil {
		s.handler.OnDown(err, final)
	}
}
