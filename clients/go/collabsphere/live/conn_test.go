package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoServer accepts joinRoom for rooms in allowed, rejects the rest and
// answers every sendMessage with a receiveMessage carrying the message.
type echoServer struct {
	allowed map[string]bool

	mu    sync.Mutex
	conns []*websocket.Conn
}

func (s *echoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer good" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, ws)
	s.mu.Unlock()
	defer ws.Close()

	for {
		var env models.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case models.EventJoinRoom:
			var p models.RoomPayload
			_ = json.Unmarshal(env.Data, &p)
			if s.allowed[p.RoomID] {
				reply(ws, models.EventRoomJoined, p)
			} else {
				reply(ws, models.EventJoinRejected, models.JoinRejectedPayload{RoomID: p.RoomID, Reason: "not a member"})
			}
		case models.EventSendMessage:
			var p models.SendMessagePayload
			_ = json.Unmarshal(env.Data, &p)
			_ = ws.WriteMessage(websocket.TextMessage, []byte("not json"))
			reply(ws, models.EventReceiveMessage, p.Message)
		}
	}
}

// kick closes every server-side connection.
func (s *echoServer) kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		_ = ws.Close()
	}
}

func reply(ws *websocket.Conn, event string, payload any) {
	env, _ := models.NewEnvelope(event, payload)
	_ = ws.WriteJSON(env)
}

func startServer(t *testing.T) (*echoServer, string) {
	t.Helper()
	es := &echoServer{allowed: map[string]bool{"r1": true}}
	srv := httptest.NewServer(es)
	t.Cleanup(srv.Close)
	return es, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialRejectsBadToken(t *testing.T) {
	_, endpoint := startServer(t)

	_, err := Dial(context.Background(), endpoint, "bad", Options{Logger: zerolog.Nop()})
	require.ErrorIs(t, err, collabsphere.ErrAuthRequired)
}

func TestDialUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", "good", Options{HandshakeTimeout: time.Second})
	require.ErrorIs(t, err, collabsphere.ErrConnection)
}

func TestJoinAndReceive(t *testing.T) {
	_, endpoint := startServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, endpoint, "good", Options{Logger: zerolog.Nop(), PingInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer c.Disconnect()

	require.ErrorIs(t, c.JoinRoom(ctx, "r2"), collabsphere.ErrRoomUnavailable)
	require.NoError(t, c.JoinRoom(ctx, "r1"))

	got := make(chan models.Message, 1)
	var order []string
	var mu sync.Mutex
	c.OnEvent(models.EventReceiveMessage, func(raw json.RawMessage) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	dispose := c.OnEvent(models.EventReceiveMessage, func(raw json.RawMessage) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		var m models.Message
		assert.NoError(t, json.Unmarshal(raw, &m))
		got <- m
	})

	sent := models.Message{ID: "m1", RoomID: "r1", Content: "hi", CreatedAt: time.Now().UTC()}
	require.NoError(t, c.Send(ctx, models.EventSendMessage, models.SendMessagePayload{RoomID: "r1", SenderID: "u-1", Message: sent}))

	select {
	case m := <-got:
		assert.Equal(t, "m1", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no receiveMessage")
	}
	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, order)
	mu.Unlock()

	dispose()
	dispose()
	require.NoError(t, c.LeaveRoom(ctx, "r1"))
}

func TestDoneOnServerDrop(t *testing.T) {
	es, endpoint := startServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, endpoint, "good", Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(ctx, "r1"))

	es.kick()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after server drop")
	}

	err = c.Send(ctx, models.EventLeaveRoom, models.RoomPayload{RoomID: "r1"})
	require.ErrorIs(t, err, collabsphere.ErrConnection)
	_ = c.Disconnect()
}

func TestDisconnectIsIdempotent(t *testing.T) {
	_, endpoint := startServer(t)

	c, err := Dial(context.Background(), endpoint, "good", Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	_ = c.Disconnect()
	_ = c.Disconnect()
	<-c.Done()

	called := false
	c.OnEvent(models.EventReceiveMessage, func(json.RawMessage) { called = true })
	assert.False(t, called)
}
