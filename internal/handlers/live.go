package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Talha-Tahir2001/CollabSphere/internal/api/middleware"
	"github.com/Talha-Tahir2001/CollabSphere/internal/hub"
	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const liveEventTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		return true // bearer auth, not cookies, protects the channel
	},
}

// Live upgrades an authenticated request to the live channel.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("live upgrade failed")
		return
	}
	h.hub.Serve(ws, user, h.handleLiveEvent)
}

func (h *Handler) handleLiveEvent(c *hub.Conn, env models.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), liveEventTimeout)
	defer cancel()

	switch env.Event {
	case models.EventJoinRoom:
		h.joinRoom(ctx, c, env)
	case models.EventLeaveRoom:
		var p models.RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			rejectEvent(c, env.Event, "roomId is required")
			return
		}
		h.hub.Leave(c, p.RoomID)
	case models.EventSendMessage:
		h.relayMessage(ctx, c, env)
	default:
		rejectEvent(c, env.Event, "unknown event")
	}
}

func (h *Handler) joinRoom(ctx context.Context, c *hub.Conn, env models.Envelope) {
	var p models.RoomPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
		rejectEvent(c, env.Event, "roomId is required")
		return
	}

	reject := func(reason string) {
		_ = c.Send(models.EventJoinRejected, models.JoinRejectedPayload{RoomID: p.RoomID, Reason: reason})
	}

	id, err := uuid.Parse(p.RoomID)
	if err != nil {
		reject("unknown room")
		return
	}
	ok, err := h.db.IsMember(ctx, id, c.User().ID)
	if err != nil {
		h.logger.Error().Err(err).Str("room", p.RoomID).Msg("membership check failed")
		reject("membership check failed")
		return
	}
	if !ok {
		reject("not a member of this workspace")
		return
	}

	h.hub.Join(c, p.RoomID)
	_ = c.Send(models.EventRoomJoined, models.RoomPayload{RoomID: p.RoomID})
}

// relayMessage forwards a stored message to the other connections in its
// room. The stored copy is relayed, not the client's.
func (h *Handler) relayMessage(ctx context.Context, c *hub.Conn, env models.Envelope) {
	reject := func(reason string) {
		metrics.LiveRelays.WithLabelValues("rejected").Inc()
		rejectEvent(c, env.Event, reason)
	}

	var p models.SendMessagePayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" || p.Message.ID == "" {
		reject("roomId and message are required")
		return
	}
	user := c.User()
	if p.SenderID != user.ID.String() {
		reject("sender does not match connection")
		return
	}
	if !h.hub.InRoom(c, p.RoomID) {
		reject("room not joined")
		return
	}

	stored, err := h.messages.GetMessage(ctx, p.RoomID, p.Message.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("room", p.RoomID).Msg("message lookup failed")
		reject("message lookup failed")
		return
	}
	if stored == nil || stored.Sender.ID != user.ID.String() {
		reject("unknown message")
		return
	}

	n := h.hub.Broadcast(p.RoomID, c, models.EventReceiveMessage, stored)
	metrics.LiveRelays.WithLabelValues("relayed").Inc()
	h.logger.Debug().Str("room", p.RoomID).Str("message", stored.ID).Int("recipients", n).Msg("message relayed")
}

func rejectEvent(c *hub.Conn, event, reason string) {
	_ = c.Send(models.EventError, models.ErrorPayload{Event: event, Reason: reason})
}
