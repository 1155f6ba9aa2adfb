package sqldb

// schemaDDL is the portable schema used for SQLite dev mode and tests.
// The Postgres deployment uses the equivalent DDL under migrations/, applied
// by the operator's migration tooling.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	kind                TEXT NOT NULL,
	fire_at             TIMESTAMP,
	cron                TEXT NOT NULL DEFAULT '',
	timezone            TEXT NOT NULL DEFAULT 'UTC',
	next_fire_at        TIMESTAMP,
	callback_kind       TEXT NOT NULL,
	callback_config     TEXT NOT NULL DEFAULT '{}',
	payload             TEXT NOT NULL DEFAULT '{}',
	status              TEXT NOT NULL DEFAULT 'active',
	max_retries         INTEGER NOT NULL DEFAULT 3,
	retry_delay_seconds INTEGER NOT NULL DEFAULT 60,
	current_retry_count INTEGER NOT NULL DEFAULT 0,
	last_fired_at       TIMESTAMP,
	fire_count          INTEGER NOT NULL DEFAULT 0,
	created_by          TEXT NOT NULL,
	tags                TEXT NOT NULL DEFAULT '[]',
	locked_at           TIMESTAMP,
	locked_by           TEXT,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_due
	ON tasks (status, locked_at, next_fire_at, fire_at);
CREATE INDEX IF NOT EXISTS idx_tasks_owner
	ON tasks (created_by, status);

CREATE TABLE IF NOT EXISTS executions (
	id              TEXT PRIMARY KEY,
	task_id         TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	started_at      TIMESTAMP NOT NULL,
	finished_at     TIMESTAMP,
	status          TEXT NOT NULL DEFAULT 'running',
	response_code   INTEGER,
	response_body   TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	retry_number    INTEGER NOT NULL DEFAULT 0,
	request_url     TEXT NOT NULL DEFAULT '',
	request_payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_executions_task
	ON executions (task_id, started_at);

CREATE TABLE IF NOT EXISTS stored_notifications (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	read_at    TIMESTAMP,
	session_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_session
	ON stored_notifications (session_id, read_at);
`

// EnsureSchema creates the tables when they do not exist. Used by SQLite dev
// mode and the test suite; Postgres schemas come from migrations/.
func (r *Repo) EnsureSchema() error {
	_, err := r.db.Exec(schemaDDL)
	return err
}
