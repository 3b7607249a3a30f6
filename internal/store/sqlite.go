package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/collabsphere.db". ":memory:"
// opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/collabsphere.db"
	}

	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	id := crypto.NewUUIDv7()
	ts := now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), username, email, passwordHash, models.RoleMember, ts, ts)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrConflict
		}
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateWorkspace creates a workspace and adds its owner as a member.
func (s *SQLiteStore) CreateWorkspace(ctx context.Context, name, description string, owner uuid.UUID) (*models.Workspace, error) {
	id := crypto.NewUUIDv7()
	ts := now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, description, owner_id, created_at, last_active_at, message_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, id.String(), name, description, owner.String(), ts, ts)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, joined_at) VALUES (?, ?, ?)
	`, id.String(), owner.String(), ts)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetWorkspace(ctx, id)
}

// GetWorkspace retrieves a workspace and its members by ID.
func (s *SQLiteStore) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id.String())
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	ws.Members, err = s.members(ctx, id)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (s *SQLiteStore) members(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM workspace_members WHERE workspace_id = ? ORDER BY joined_at, user_id
	`, workspaceID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []uuid.UUID{}
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ListWorkspacesForUser retrieves the workspaces userID belongs to, most
// recently active first.
func (s *SQLiteStore) ListWorkspacesForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.description, w.owner_id, w.created_at, w.last_active_at, w.message_count
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = ?
		ORDER BY w.last_active_at DESC
	`, userID.String())
	if err != nil {
		return nil, err
	}

	workspaces := []models.Workspace{}
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		workspaces = append(workspaces, *ws)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range workspaces {
		if workspaces[i].Members, err = s.members(ctx, workspaces[i].ID); err != nil {
			return nil, err
		}
	}
	return workspaces, nil
}

// AddMember adds userID to a workspace. Adding an existing member is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workspace_members (workspace_id, user_id, joined_at) VALUES (?, ?, ?)
	`, workspaceID.String(), userID.String(), now())
	return err
}

// IsMember reports whether userID belongs to the workspace.
func (s *SQLiteStore) IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workspace_members WHERE workspace_id = ? AND user_id = ?
	`, workspaceID.String(), userID.String()).Scan(&n)
	return n > 0, err
}

// IncrementMessageCount increments the message count and updates activity.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, workspaceID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workspaces
		SET message_count = message_count + 1, last_active_at = ?
		WHERE id = ?
	`, now(), workspaceID.String())
	return err
}
