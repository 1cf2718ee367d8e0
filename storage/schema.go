package storage

// schema is valid for both postgres and sqlite. Uniqueness lives in named
// constraints so violations can be mapped back to the offending field.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS boards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		short_link TEXT NOT NULL,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CONSTRAINT boards_name_unique UNIQUE (name),
		CONSTRAINT boards_short_link_unique UNIQUE (short_link)
	)`,
	`CREATE INDEX IF NOT EXISTS boards_owner_idx ON boards (owner_id)`,
	`CREATE TABLE IF NOT EXISTS board_members (
		board_id TEXT NOT NULL REFERENCES boards (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (board_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS board_members_user_idx ON board_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS lists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pos INTEGER NOT NULL,
		board_id TEXT NOT NULL REFERENCES boards (id),
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		color TEXT NOT NULL DEFAULT '',
		limits TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CONSTRAINT lists_board_name_unique UNIQUE (board_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		list_id TEXT NOT NULL REFERENCES lists (id),
		board_id TEXT NOT NULL REFERENCES boards (id),
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		start_at TIMESTAMP NULL,
		due_at TIMESTAMP NULL,
		due_reminder TIMESTAMP NULL,
		labels TEXT NOT NULL DEFAULT '[]',
		users_reminder TEXT NOT NULL DEFAULT '[]',
		short_link TEXT NOT NULL DEFAULT '',
		short_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_board_idx ON tasks (board_id)`,
	`CREATE TABLE IF NOT EXISTS subtasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		task_id TEXT NOT NULL REFERENCES tasks (id),
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		start_at TIMESTAMP NULL,
		due_at TIMESTAMP NULL,
		due_reminder TIMESTAMP NULL,
		users_reminder TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS subtasks_task_idx ON subtasks (task_id)`,
}
