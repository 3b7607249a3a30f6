package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations creates the schema if it does not exist.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	ts := now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+userColumns,
		crypto.NewUUIDv7().String(), username, email, passwordHash, models.RoleMember, ts)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrConflict
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// CountUsers returns the total number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateWorkspace creates a workspace and adds its owner as a member.
func (s *PostgresStore) CreateWorkspace(ctx context.Context, name, description string, owner uuid.UUID) (*models.Workspace, error) {
	id := crypto.NewUUIDv7()
	ts := now()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO workspaces (id, name, description, owner_id, created_at, last_active_at, message_count)
			VALUES ($1, $2, $3, $4, $5, $5, 0)
		`, id.String(), name, description, owner.String(), ts)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO workspace_members (workspace_id, user_id, joined_at) VALUES ($1, $2, $3)
		`, id.String(), owner.String(), ts)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.GetWorkspace(ctx, id)
}

// GetWorkspace retrieves a workspace and its members by ID.
func (s *PostgresStore) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, err := scanWorkspace(s.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) members(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM workspace_members WHERE workspace_id = $1 ORDER BY joined_at, user_id
	`, workspaceID.String())
	if err != nil {
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	members := make([]uuid.UUID, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, nil
}

// ListWorkspacesForUser retrieves the workspaces userID belongs to, most
// recently active first.
func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID uuid.UUID) ([]models.Workspace, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.name, w.description, w.owner_id, w.created_at, w.last_active_at, w.message_count
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.last_active_at DESC
	`, userID.String())
	if err != nil {
		return nil, err
	}

	workspaces, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Workspace, error) {
		ws, err := scanWorkspace(row)
		if err != nil {
			return models.Workspace{}, err
		}
		return *ws, nil
	})
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
func (s *PostgresStore) AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID.String(), userID.String(), now())
	return err
}

// IsMember reports whether userID belongs to the workspace.
func (s *PostgresStore) IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	var member bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2)
	`, workspaceID.String(), userID.String()).Scan(&member)
	return member, err
}

// IncrementMessageCount increments the message count and updates activity.
func (s *PostgresStore) IncrementMessageCount(ctx context.Context, workspaceID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workspaces
		SET message_count = message_count + 1, last_active_at = NOW()
		WHERE id = $1
	`, workspaceID.String())
	return err
}
