package store

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// migrations holds the forward-only schema scripts. Index i migrates the
// database from version i to version i+1. The current schema version is
// stored in PRAGMA user_version.
var migrations = []string{
	// v1: app state snapshot tables.
	`CREATE TABLE projects (
		id         TEXT PRIMARY KEY,
		slug       TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		path       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE workspaces (
		id           TEXT PRIMARY KEY,
		project_slug TEXT NOT NULL,
		name         TEXT NOT NULL,
		branch       TEXT NOT NULL DEFAULT '',
		path         TEXT NOT NULL,
		created_at   INTEGER NOT NULL
	);
	CREATE TABLE app_settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// v2: conversation keys and their remote thread binding.
	`CREATE TABLE conversations (
		project_slug     TEXT NOT NULL,
		workspace_name   TEXT NOT NULL,
		thread_id        TEXT NOT NULL,
		remote_thread_id TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		PRIMARY KEY (project_slug, workspace_name, thread_id)
	);`,

	// v3: append-only conversation history. The unique index gives the
	// idempotent-append guarantee: redelivering a CodexItem entry by id is
	// a no-op, while NULL codex_item_id rows (non-deduplicated kinds) are
	// never considered duplicates of each other.
	`CREATE TABLE conversation_entries (
		project_slug   TEXT NOT NULL,
		workspace_name TEXT NOT NULL,
		thread_id      TEXT NOT NULL,
		seq            INTEGER NOT NULL,
		kind           TEXT NOT NULL,
		codex_item_id  TEXT,
		payload        TEXT NOT NULL,
		created_at     INTEGER NOT NULL,
		PRIMARY KEY (project_slug, workspace_name, thread_id, seq)
	);
	CREATE UNIQUE INDEX conversation_entries_dedup
		ON conversation_entries (project_slug, workspace_name, thread_id, kind, codex_item_id);`,
}

// migrate brings the database to the newest schema version. A database
// written by a newer binary is refused outright: no migration step or other
// write happens in that case.
func migrate(conn *sqlite.Conn) error {
	version, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	newest := len(migrations)
	if version > newest {
		return fmt.Errorf("%w: database schema version %d, newest known %d",
			ErrFutureSchema, version, newest)
	}

	for step := version; step < newest; step++ {
		if err := applyMigration(conn, step); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs one migration script and the version bump in a single
// transaction.
func applyMigration(conn *sqlite.Conn, step int) (err error) {
	defer sqlitex.Save(conn)(&err)

	if err := sqlitex.ExecuteScript(conn, migrations[step], nil); err != nil {
		return fmt.Errorf("applying migration %d: %w", step+1, err)
	}
	if err := sqlitex.ExecuteTransient(conn,
		fmt.Sprintf("PRAGMA user_version = %d", step+1), nil); err != nil {
		return fmt.Errorf("recording schema version %d: %w", step+1, err)
	}
	return nil
}

func schemaVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
