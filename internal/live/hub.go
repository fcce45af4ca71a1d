// Package live streams appended tracker locations to websocket subscribers.
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/tracky/internal/model"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Update is one message pushed to subscribers.
type Update struct {
	TrackerID string `json:"trackerId"`
	model.LocationPoint
}

type client struct {
	trackerID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans location updates out to the subscribers of each tracker. Clients
// that cannot keep up are dropped.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]map[*client]struct{}
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub returns an empty hub. A nil logger uses slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Publish delivers p to every subscriber of trackerID without blocking.
func (h *Hub) Publish(trackerID string, p model.LocationPoint) {
	data, err := json.Marshal(Update{TrackerID: trackerID, LocationPoint: p})
	if err != nil {
		h.logger.Error("encoding location update", "tracker", trackerID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[trackerID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow location subscriber", "tracker", trackerID)
			h.removeLocked(c)
		}
	}
}

// Subscribers returns the number of open streams for trackerID.
func (h *Hub) Subscribers(trackerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[trackerID])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.trackerID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.trackerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.trackerID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.trackerID)
	}
}

// Serve upgrades the request and streams trackerID's updates until the peer
// goes away. The caller has already authorized the request.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, trackerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Debug("websocket upgrade failed", "tracker", trackerID, "error", err)
		return
	}

	c := &client{trackerID: trackerID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)
	h.logger.Debug("location subscriber connected", "tracker", trackerID)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound messages and tracks liveness through pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug("location subscriber disconnected", "tracker", c.trackerID)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
