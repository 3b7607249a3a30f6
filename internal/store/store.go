package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// ErrConflict is returned when a unique value, such as a username, is taken.
var ErrConflict = errors.New("already exists")

// DataStore defines the interface for persistent storage of users and
// workspaces. Both PostgresStore and SQLiteStore implement this interface.
// Lookups return nil, nil when nothing matches.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Workspace operations
	CreateWorkspace(ctx context.Context, name, description string, owner uuid.UUID) (*models.Workspace, error)
	GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error)
	AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error
	IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error)
	IncrementMessageCount(ctx context.Context, workspaceID uuid.UUID) error
}

// MessageStore holds the message log of every room. RedisStore and
// MemoryStore implement it.
type MessageStore interface {
	Ping(ctx context.Context) error

	// AddMessage assigns an id and timestamp when unset and stores msg.
	AddMessage(ctx context.Context, msg *models.Message) error

	// GetRoomMessages returns up to limit of the newest messages sorting
	// strictly before before (zero means the end of the log), oldest first.
	GetRoomMessages(ctx context.Context, roomID string, limit int, before models.Cursor) ([]models.Message, error)

	// GetMessage returns nil, nil when the message does not exist.
	GetMessage(ctx context.Context, roomID, msgID string) (*models.Message, error)
}

// RateLimiter counts events per key in fixed windows.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int, error)
}
