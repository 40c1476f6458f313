package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"MT5Hub/internal/domain/models"
	applogger "MT5Hub/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var ErrClosed = errors.New("stream hub closed")

// Hub fans report envelopes out to websocket subscribers. Slow subscribers lose messages
// rather than blocking the reporter.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	nextID  atomic.Int64

	upgrader websocket.Upgrader
	l        *applogger.Logger
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	once sync.Once
}

func NewHub(l *applogger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// guarded by the admin key before the upgrade
			CheckOrigin: func(*http.Request) bool { return true },
		},
		l: l.With(applogger.String("component", "stream")),
	}
}

// Send implements the report sink interface.
func (h *Hub) Send(_ context.Context, r models.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return h.Broadcast(data)
}

// Broadcast queues data for every subscriber.
func (h *Hub) Broadcast(data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.l.Warn("stream subscriber too slow, dropping message", applogger.String("client", c.id))
		}
	}
	return nil
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams reports until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return
	}

	c := &client{
		id:   "sub-" + strconv.FormatInt(h.nextID.Add(1), 10),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.l.Info("stream subscriber connected", applogger.String("client", c.id))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles control frames; subscribers never send data.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.l.Debug("stream subscriber closed", applogger.String("client", c.id), applogger.Error(err))
			}
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { _ = c.conn.Close() })
}
