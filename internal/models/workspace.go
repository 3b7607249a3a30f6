package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace groups projects and owns one chat room with the same id.
type Workspace struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	OwnerID      uuid.UUID   `json:"owner"`
	Members      []uuid.UUID `json:"members"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActiveAt time.Time   `json:"last_active_at"`
	MessageCount int64       `json:"message_count"`
}

// HasMember reports whether the user belongs to the workspace.
func (w *Workspace) HasMember(id uuid.UUID) bool {
	if w.OwnerID == id {
		return true
	}
	for _, m := range w.Members {
		if m == id {
			return true
		}
	}
	return false
}
