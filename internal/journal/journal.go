package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run is one recorded invocation of a housekeeping command.
type Run struct {
	ID         string
	Command    string
	Host       string
	Username   string
	Root       string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is unfinished
	Outcome    string
	Actions    int
}

// Action is one recorded per-mailbox action within a run.
type Action struct {
	ID        string
	RunID     string
	Action    string
	Mailbox   string
	Target    string
	Year      int
	Count     int
	Executed  bool
	CreatedAt time.Time
}

// Journal is the append-only audit trail of runs and their per-mailbox
// actions, kept in a local SQLite database. The engine never reads it
// back; the history command renders it.
type Journal struct {
	db *sqlx.DB
}

// Open opens (or creates) the journal database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func Open(dbPath string) (*Journal, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	j := &Journal{db: db}
	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (j *Journal) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := j.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = j.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := j.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// BeginRun inserts a new run row and returns its id.
func (j *Journal) BeginRun(
	ctx context.Context,
	command, host, username, root string,
	dryRun bool,
) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, command, host, username, root, dry_run, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, command, host, username, root, boolToInt(dryRun), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's end time and outcome.
func (j *Journal) FinishRun(ctx context.Context, runID, outcome string) error {
	_, err := j.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?",
		time.Now().UTC(), outcome, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// RecordAction appends one action to a run. A missing action id is
// generated.
func (j *Journal) RecordAction(ctx context.Context, runID string, a Action) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO actions (id, run_id, action, mailbox, target, year, count, executed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, runID, a.Action, a.Mailbox, a.Target, a.Year, a.Count,
		boolToInt(a.Executed), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording action for run %s: %w", runID, err)
	}
	return nil
}

// RecentRuns returns the newest runs with their action counts, newest
// first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryxContext(ctx, `
		SELECT r.id, r.command, r.host, r.username, r.root, r.dry_run,
		       r.started_at, r.finished_at, r.outcome,
		       COUNT(a.id) AS actions
		FROM runs r
		LEFT JOIN actions a ON a.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RunActions returns the actions of one run in insertion order. The run
// may be named by its full id or any unique prefix of it.
func (j *Journal) RunActions(ctx context.Context, runID string) ([]Action, error) {
	rows, err := j.db.QueryxContext(ctx, `
		SELECT id, run_id, action, mailbox, target, year, count, executed, created_at
		FROM actions
		WHERE run_id LIKE ? || '%'
		ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying actions for run %s: %w", runID, err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// scanRun scans a run row from a sqlx.Rows result set.
func scanRun(rows *sqlx.Rows) (Run, error) {
	var (
		run        Run
		dryRun     int
		finishedAt sql.NullTime
	)

	err := rows.Scan(
		&run.ID, &run.Command, &run.Host, &run.Username, &run.Root,
		&dryRun, &run.StartedAt, &finishedAt, &run.Outcome, &run.Actions,
	)
	if err != nil {
		return Run{}, fmt.Errorf("scanning run row: %w", err)
	}

	run.DryRun = dryRun != 0
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}

	return run, nil
}

// scanAction scans an action row from a sqlx.Rows result set.
func scanAction(rows *sqlx.Rows) (Action, error) {
	var (
		a        Action
		executed int
	)

	err := rows.Scan(
		&a.ID, &a.RunID, &a.Action, &a.Mailbox, &a.Target,
		&a.Year, &a.Count, &executed, &a.CreatedAt,
	)
	if err != nil {
		return Action{}, fmt.Errorf("scanning action row: %w", err)
	}

	a.Executed = executed != 0

	return a, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
