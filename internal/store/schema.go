package store

// Schema shared by the SQLite and PostgreSQL stores. Ids are UUID strings
// generated by the application.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL,
	last_active_at TIMESTAMP NOT NULL,
	message_count BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS workspace_members (
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at TIMESTAMP NOT NULL,
	PRIMARY KEY (workspace_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_members_user ON workspace_members(user_id);
CREATE INDEX IF NOT EXISTS idx_workspaces_last_active ON workspaces(last_active_at);
`
