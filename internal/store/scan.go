package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

const workspaceColumns = `id, name, description, owner_id, created_at, last_active_at, message_count`

func scanWorkspace(row rowScanner) (*models.Workspace, error) {
	ws := &models.Workspace{}
	var idStr, ownerStr string
	err := row.Scan(
		&idStr,
		&ws.Name,
		&ws.Description,
		&ownerStr,
		&ws.CreatedAt,
		&ws.LastActiveAt,
		&ws.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	if ws.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if ws.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, err
	}
	return ws, nil
}

// now returns the current time in the precision stored by both databases.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
