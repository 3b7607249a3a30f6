package models

import (
	"strings"
	"time"
)

// Sender identifies the author of a message.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message represents a chat message posted to a workspace room.
type Message struct {
	ID        string    `json:"id"` // ULID, assigned by the server
	RoomID    string    `json:"roomId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	// ClientToken echoes the X-Client-Token header of the POST that created
	// the message. It is only set on the POST response.
	ClientToken string `json:"clientToken,omitempty"`
}

// Compare orders messages by (CreatedAt, ID) ascending.
func (m Message) Compare(o Message) int {
	if c := m.CreatedAt.Compare(o.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(m.ID, o.ID)
}

// Cursor is a position in a room's (CreatedAt, ID) order. A history page
// requested before a cursor holds only messages sorting strictly before it.
// A cursor without an ID sits before every message of its timestamp.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Cursor returns the position of m.
func (m Message) Cursor() Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// IsZero reports whether c is unset, meaning the end of the log.
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero()
}

// Follows reports whether m sorts strictly before c.
func (c Cursor) Follows(m Message) bool {
	return m.Compare(Message{CreatedAt: c.CreatedAt, ID: c.ID}) < 0
}
