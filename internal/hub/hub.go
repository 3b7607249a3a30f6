// Package hub tracks live channel connections and the rooms they joined.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 20 * time.Second
	maxFrameSize = 64 << 10
)

// Conn is one authenticated live channel connection.
type Conn struct {
	ws     *websocket.Conn
	user   *models.User
	logger zerolog.Logger

	mu sync.Mutex // serializes writes
}

// User returns the account the connection authenticated as.
func (c *Conn) User() *models.User {
	return c.user
}

// Send writes one event to the connection.
func (c *Conn) Send(event string, payload any) error {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, frame)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// HandlerFunc handles one event received on c.
type HandlerFunc func(c *Conn, env models.Envelope)

// Hub is the set of open connections and room memberships.
type Hub struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	conns map[*Conn]map[string]struct{}
	rooms map[string]map[*Conn]struct{}
	wg    sync.WaitGroup
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*Conn]map[string]struct{}),
		rooms:  make(map[string]map[*Conn]struct{}),
	}
}

// Serve registers ws for user and dispatches its events to handle until the
// connection ends. Events of one connection are handled in receipt order.
func (h *Hub) Serve(ws *websocket.Conn, user *models.User, handle HandlerFunc) {
	c := &Conn{
		ws:     ws,
		user:   user,
		logger: h.logger.With().Str("user", user.ID.String()).Logger(),
	}

	h.mu.Lock()
	h.conns[c] = make(map[string]struct{})
	h.mu.Unlock()
	h.wg.Add(1)
	metrics.LiveConnections.Inc()
	c.logger.Debug().Msg("live connection opened")

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.ping(c, done)

	defer func() {
		close(done)
		h.remove(c)
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
		metrics.LiveConnections.Dec()
		c.logger.Debug().Msg("live connection closed")
		h.wg.Done()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				c.logger.Debug().Err(err).Msg("live read failed")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			_ = c.Send(models.EventError, models.ErrorPayload{Reason: "malformed frame"})
			continue
		}
		handle(c, env)
	}
}

func (h *Hub) ping(c *Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Join adds c to room.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.conns[c]
	if !ok {
		return
	}
	joined[room] = struct{}{}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

// Leave removes c from room.
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, room)
}

// leave must be called with h.mu held.
func (h *Hub) leave(c *Conn, room string) {
	delete(h.conns[c], room)
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.conns[c] {
		h.leave(c, room)
	}
	delete(h.conns, c)
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(c *Conn, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[c][room]
	return ok
}

// Broadcast sends an event to every connection in room except except. It
// returns the number of connections written to.
func (h *Hub) Broadcast(room string, except *Conn, event string, payload any) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			c.logger.Debug().Err(err).Str("room", room).Msg("broadcast write failed")
			continue
		}
		sent++
	}
	return sent
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll sends a going-away close frame to every connection. Their Serve
// calls return once the clients close.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		_ = c.ws.Close()
	}
}

// Wait blocks until every Serve call has returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}
