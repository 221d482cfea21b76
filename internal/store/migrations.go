package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations. The tables mirror
// the hosted deployment's schema so the SQLite backend stays drop-in for
// local development.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create clients and rate_limits",
		SQL: `
			CREATE TABLE clients (
				id              TEXT PRIMARY KEY,
				active          INTEGER NOT NULL DEFAULT 1,
				allowed_origins TEXT NOT NULL DEFAULT '[]',
				site_data       TEXT NOT NULL DEFAULT '{}',
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE rate_limits (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				client_id   TEXT NOT NULL,
				ip_address  TEXT NOT NULL,
				created_at  TEXT NOT NULL
			);

			CREATE INDEX idx_rate_limits_window
				ON rate_limits (client_id, ip_address, created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create chat_logs and chat_metrics",
		SQL: `
			CREATE TABLE chat_logs (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				client_id   TEXT NOT NULL,
				session_id  TEXT NOT NULL,
				widget_id   TEXT,
				role        TEXT NOT NULL,
				message     TEXT NOT NULL,
				origin      TEXT,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_chat_logs_session ON chat_logs (client_id, session_id, id);

			CREATE TABLE chat_metrics (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				client_id        TEXT NOT NULL,
				session_id       TEXT NOT NULL,
				widget_id        TEXT,
				response_time_ms INTEGER NOT NULL,
				vertex_attempts  INTEGER NOT NULL,
				vertex_status    INTEGER,
				success          INTEGER NOT NULL,
				error_type       TEXT,
				error_details    TEXT,
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_chat_metrics_client ON chat_metrics (client_id, created_at);
		`,
	},
}
