package backends

// Timestamps are unix seconds so both dialects share the same queries.

var sqliteMigrations = []string{
	// 1: sessions and premium plans
	`
CREATE TABLE IF NOT EXISTS sessions (
	user_id    INTEGER PRIMARY KEY,
	session    TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS premium_users (
	user_id    INTEGER PRIMARY KEY,
	expires_at INTEGER NOT NULL,
	added_by   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_premium_expires ON premium_users(expires_at);

CREATE TABLE IF NOT EXISTS free_passes (
	user_id    INTEGER PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`,
	// 2: per-user settings, known users and counters
	`
CREATE TABLE IF NOT EXISTS user_settings (
	user_id     INTEGER PRIMARY KEY,
	chat_id     INTEGER NOT NULL DEFAULT 0,
	caption     TEXT NOT NULL DEFAULT '',
	rename_tag  TEXT NOT NULL DEFAULT '',
	clean_words TEXT NOT NULL DEFAULT '[]',
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id    INTEGER PRIMARY KEY,
	first_seen INTEGER NOT NULL,
	last_seen  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stats (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);
`,
}

var postgresMigrations = []string{
	`
CREATE TABLE IF NOT EXISTS sessions (
	user_id    BIGINT PRIMARY KEY,
	session    TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS premium_users (
	user_id    BIGINT PRIMARY KEY,
	expires_at BIGINT NOT NULL,
	added_by   BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_premium_expires ON premium_users(expires_at);

CREATE TABLE IF NOT EXISTS free_passes (
	user_id    BIGINT PRIMARY KEY,
	expires_at BIGINT NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS user_settings (
	user_id     BIGINT PRIMARY KEY,
	chat_id     BIGINT NOT NULL DEFAULT 0,
	caption     TEXT NOT NULL DEFAULT '',
	rename_tag  TEXT NOT NULL DEFAULT '',
	clean_words TEXT NOT NULL DEFAULT '[]',
	updated_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id    BIGINT PRIMARY KEY,
	first_seen BIGINT NOT NULL,
	last_seen  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS stats (
	key   TEXT PRIMARY KEY,
	value BIGINT NOT NULL DEFAULT 0
);
`,
}

func migrations(d Dialect) []string {
	if d == DialectPostgreSQL {
		return postgresMigrations
	}
	return sqliteMigrations
}
