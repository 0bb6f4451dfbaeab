package journal

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	host        TEXT NOT NULL,
	username    TEXT NOT NULL,
	root        TEXT NOT NULL DEFAULT '',
	dry_run     INTEGER NOT NULL DEFAULT 0 CHECK(dry_run IN (0, 1)),
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	outcome     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS actions (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	action     TEXT NOT NULL,
	mailbox    TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	year       INTEGER NOT NULL DEFAULT 0,
	count      INTEGER NOT NULL DEFAULT 0,
	executed   INTEGER NOT NULL DEFAULT 1 CHECK(executed IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_actions_run_id ON actions(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
