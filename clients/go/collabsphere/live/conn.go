// Package live implements the CollabSphere live event channel over a
// WebSocket connection.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

var errClosed = errors.New("connection closed")

// Options configures Dial.
type Options struct {
	Logger           zerolog.Logger
	HandshakeTimeout time.Duration

	// PingInterval enables keepalive pings. A connection that sees no pong
	// within two intervals is treated as dropped. Zero disables pings.
	PingInterval time.Duration
}

// Conn is one live channel connection. Handlers registered for an event
// name run on the connection's read goroutine, once per received event,
// in receipt order.
type Conn struct {
	ws       *websocket.Conn
	endpoint string
	logger   zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[uint64]func(json.RawMessage)
	nextID   uint64
	closing  bool

	done      chan struct{}
	stopPing  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the live channel at endpoint using token as bearer
// credential.
func Dial(ctx context.Context, endpoint, token string, opts Options) (*Conn, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", endpoint, collabsphere.ErrAuthRequired)
		}
		return nil, &collabsphere.ConnectionError{Endpoint: endpoint, Err: err}
	}

	c := &Conn{
		ws:       ws,
		endpoint: endpoint,
		logger:   opts.Logger.With().Str("endpoint", endpoint).Logger(),
		handlers: make(map[string]map[uint64]func(json.RawMessage)),
		done:     make(chan struct{}),
		stopPing: make(chan struct{}),
	}

	if opts.PingInterval > 0 {
		pongWait := 2 * opts.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.pingLoop(opts.PingInterval)
	}

	go c.readLoop()
	return c, nil
}

// OnEvent registers h for events named name. The returned function removes
// the handler; calling it more than once has no further effect.
func (c *Conn) OnEvent(name string, h func(json.RawMessage)) (dispose func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	if c.handlers[name] == nil {
		c.handlers[name] = make(map[uint64]func(json.RawMessage))
	}
	c.handlers[name][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if hs := c.handlers[name]; hs != nil {
			delete(hs, id)
		}
	}
}

// Send writes one event to the server.
func (c *Conn) Send(ctx context.Context, event string, payload any) error {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return &collabsphere.ConnectionError{Endpoint: c.endpoint, Err: errClosed}
	default:
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(env); err != nil {
		return &collabsphere.ConnectionError{Endpoint: c.endpoint, Err: err}
	}
	return nil
}

// JoinRoom emits joinRoom and waits for the server to accept or reject it.
// A rejection is reported as collabsphere.ErrRoomUnavailable.
func (c *Conn) JoinRoom(ctx context.Context, roomID string) error {
	result := make(chan error, 1)
	deliver := func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	disposers := []func(){
		c.OnEvent(models.EventRoomJoined, func(raw json.RawMessage) {
			var p models.RoomPayload
			if json.Unmarshal(raw, &p) == nil && p.RoomID == roomID {
				deliver(nil)
			}
		}),
		c.OnEvent(models.EventJoinRejected, func(raw json.RawMessage) {
			var p models.JoinRejectedPayload
			if json.Unmarshal(raw, &p) == nil && p.RoomID == roomID {
				deliver(fmt.Errorf("join %s: %w: %s", roomID, collabsphere.ErrRoomUnavailable, p.Reason))
			}
		}),
	}
	defer func() {
		for _, d := range disposers {
			d()
		}
	}()

	if err := c.Send(ctx, models.EventJoinRoom, models.RoomPayload{RoomID: roomID}); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-c.done:
		return &collabsphere.ConnectionError{Endpoint: c.endpoint, Err: errClosed}
	case <-ctx.Done():
		return &collabsphere.ConnectionError{Endpoint: c.endpoint, Err: ctx.Err()}
	}
}

// LeaveRoom emits leaveRoom.
func (c *Conn) LeaveRoom(ctx context.Context, roomID string) error {
	return c.Send(ctx, models.EventLeaveRoom, models.RoomPayload{RoomID: roomID})
}

// Done returns a channel closed once the read goroutine has exited, either
// because the connection dropped or because Disconnect was called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Disconnect closes the connection, drops every handler and waits for the
// read goroutine to exit. It must not be called from inside a handler.
// It is idempotent.
func (c *Conn) Disconnect() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.handlers = make(map[string]map[uint64]func(json.RawMessage))
		c.mu.Unlock()

		close(c.stopPing)

		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.closeErr = c.ws.Close()
	})
	<-c.done
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if !closing {
				c.logger.Warn().Err(err).Msg("live connection lost")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Warn().Int("bytes", len(data)).Msg("dropping malformed live frame")
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

// dispatch runs the handlers of event in registration order.
func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	hs := c.handlers[event]
	ids := make([]uint64, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(json.RawMessage), len(ids))
	for i, id := range ids {
		fns[i] = hs[id]
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (c *Conn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.stopPing:
			return
		case <-c.done:
			return
		}
	}
}
