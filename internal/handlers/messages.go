package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Talha-Tahir2001/CollabSphere/internal/api/middleware"
	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	maxContentLength    = 4096
	maxClientToken      = 128
	maxCursorID         = 64
)

// ClientTokenHeader carries the client's correlation token for a send.
const ClientTokenHeader = "X-Client-Token"

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// GetRoomMessages returns a page of a workspace room's messages, oldest first.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	ws := h.requireMember(w, r, user)
	if ws == nil {
		return
	}

	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMessageLimit)
	}

	var before models.Cursor
	if v := r.URL.Query().Get("before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 {
			h.Error(w, http.StatusBadRequest, "before must be a unix timestamp in milliseconds")
			return
		}
		before.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if v := r.URL.Query().Get("beforeId"); v != "" {
		if before.IsZero() {
			h.Error(w, http.StatusBadRequest, "beforeId requires before")
			return
		}
		if len(v) > maxCursorID {
			h.Error(w, http.StatusBadRequest, "beforeId too long")
			return
		}
		before.ID = v
	}

	msgs, err := h.messages.GetRoomMessages(r.Context(), ws.ID.String(), limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	h.JSON(w, http.StatusOK, msgs)
}

// PostMessage stores a message in a workspace room. Live delivery is left to
// the author's client, which relays the created message over its channel.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	ws := h.requireMember(w, r, user)
	if ws == nil {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxContentLength {
		h.Error(w, http.StatusBadRequest, "content exceeds 4096 bytes")
		return
	}

	token := r.Header.Get(ClientTokenHeader)
	if len(token) > maxClientToken {
		h.Error(w, http.StatusBadRequest, "client token too long")
		return
	}

	msg := &models.Message{
		RoomID:  ws.ID.String(),
		Sender:  user.Sender(),
		Content: req.Content,
	}
	if err := h.messages.AddMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.MessagesPosted.Inc()

	if err := h.db.IncrementMessageCount(r.Context(), ws.ID); err != nil {
		h.logger.Warn().Err(err).Str("workspace", ws.ID.String()).Msg("failed to bump message count")
	}

	resp := *msg
	resp.ClientToken = token
	h.JSON(w, http.StatusCreated, resp)
}
