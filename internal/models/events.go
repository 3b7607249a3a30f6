package models

import "encoding/json"

// Live channel event names.
const (
	EventJoinRoom       = "joinRoom"
	EventRoomJoined     = "roomJoined"
	EventJoinRejected   = "joinRejected"
	EventLeaveRoom      = "leaveRoom"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// Envelope is the frame exchanged over the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomPayload carries a room id (joinRoom, roomJoined, leaveRoom).
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// JoinRejectedPayload is sent when the server refuses a joinRoom.
type JoinRejectedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// SendMessagePayload asks the server to relay a stored message to the room.
type SendMessagePayload struct {
	RoomID   string  `json:"roomId"`
	SenderID string  `json:"senderId"`
	Message  Message `json:"message"`
}

// ErrorPayload reports a rejected client event.
type ErrorPayload struct {
	Event  string `json:"event,omitempty"`
	Reason string `json:"reason"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}
