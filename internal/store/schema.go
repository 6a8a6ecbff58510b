package store

// schema is applied once at startup with CREATE TABLE IF NOT EXISTS, in
// the style of the migrator in the sqlite backend this package is
// grounded on (SQLiteMigrator, jholhewres-goclaw
// pkg/devclaw/database/backends/sqlite.go). Column names follow §6's
// persisted state layout.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS jobs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL UNIQUE,
	function_path    TEXT NOT NULL,
	args_json        TEXT NOT NULL DEFAULT '[]',
	kwargs_json      TEXT NOT NULL DEFAULT '{}',
	job_type         TEXT NOT NULL,
	max_retries      INTEGER NOT NULL DEFAULT 3,
	timeout_seconds  INTEGER NOT NULL DEFAULT 0,
	idempotency_key  TEXT UNIQUE,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id           INTEGER NOT NULL REFERENCES jobs(id),
	status           TEXT NOT NULL,
	attempt          INTEGER NOT NULL DEFAULT 1,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME,
	duration_seconds REAL,
	result_json      TEXT,
	error_message    TEXT,
	traceback        TEXT
);

CREATE TABLE IF NOT EXISTS schedules (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id           INTEGER NOT NULL REFERENCES jobs(id),
	cron_expression  TEXT,
	run_at           DATETIME,
	enabled          INTEGER NOT NULL DEFAULT 1,
	last_fired_at    DATETIME,
	created_at       DATETIME NOT NULL,
	CHECK ((cron_expression IS NOT NULL) != (run_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_executions_status     ON executions(status);
CREATE INDEX IF NOT EXISTS idx_executions_job_id      ON executions(job_id);
CREATE INDEX IF NOT EXISTS idx_executions_started_at  ON executions(started_at);
CREATE INDEX IF NOT EXISTS idx_jobs_idempotency_key   ON jobs(idempotency_key);
`
