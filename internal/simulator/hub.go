package simulator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ridesync/internal/models"
	"ridesync/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Hub fans trip events out to subscribed sockets. Rooms are keyed by
// trip id and by guest session id, so both addressing modes reach the
// same audience.
type Hub struct {
	log        *logger.Logger
	register   chan *client
	unregister chan *client
	outbound   chan roomMessage
	rooms      map[string]map[*client]bool
}

type roomMessage struct {
	room    string
	payload []byte
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		outbound:   make(chan roomMessage, 64),
		rooms:      make(map[string]map[*client]bool),
	}
}

// Run owns the room table. Only Run's goroutine touches it.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			if h.rooms[c.room] == nil {
				h.rooms[c.room] = make(map[*client]bool)
			}
			h.rooms[c.room][c] = true
			h.log.WithField("room", c.room).Debug("Push client joined")

		case c := <-h.unregister:
			if room, ok := h.rooms[c.room]; ok {
				if _, exists := room[c]; exists {
					delete(room, c)
					close(c.send)
					if len(room) == 0 {
						delete(h.rooms, c.room)
					}
				}
			}

		case msg := <-h.outbound:
			for c := range h.rooms[msg.room] {
				select {
				case c.send <- msg.payload:
				default:
					delete(h.rooms[msg.room], c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast delivers one event to every socket watching the trip,
// addressed by trip id and, for guest trips, by guest session id.
func (h *Hub) Broadcast(trip *models.Trip, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).Error("Push payload marshal failed")
		return
	}
	payload, err := json.Marshal(models.PushMessage{Event: event, Data: raw})
	if err != nil {
		h.log.WithError(err).Error("Push frame marshal failed")
		return
	}

	h.outbound <- roomMessage{room: "trip:" + trip.ID, payload: payload}
	if trip.GuestSessionID != "" {
		h.outbound <- roomMessage{room: "guest:" + trip.GuestSessionID, payload: payload}
	}
}

// ServeWS upgrades the request and parks the socket in its room. The
// room comes from the guest_id or trip_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var room string
	switch {
	case r.URL.Query().Get("guest_id") != "":
		room = "guest:" + r.URL.Query().Get("guest_id")
	case r.URL.Query().Get("trip_id") != "":
		room = "trip:" + r.URL.Query().Get("trip_id")
	default:
		http.Error(w, "trip_id or guest_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Push upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		room: room,
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string
}

// readPump exists to detect the peer going away. Inbound frames are
// discarded; the protocol is push-only.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump writes one JSON frame per event. Frames are never
// coalesced: the subscriber decodes each frame as a whole message.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
