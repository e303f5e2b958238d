// Package store provides the SQLite-backed relational store the core reads and writes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/opscore/internal/apperr"
)

// schemaSQL bootstraps an empty database. Collectors own the real schema; this exists so
// a fresh local store and the tests have the columns the core depends on. There are no
// REFERENCES clauses: dangling references are legal state that the normalizer classifies.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	tier TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS brands (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	client_id TEXT
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	is_internal INTEGER NOT NULL DEFAULT 0,
	brand_id    TEXT,
	client_id   TEXT,
	updated_at  DATETIME
);

CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	title               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'open',
	project_id          TEXT,
	due_date            TEXT,
	brand_id            TEXT,
	client_id           TEXT,
	project_link_status TEXT NOT NULL DEFAULT 'unlinked',
	client_link_status  TEXT NOT NULL DEFAULT 'unlinked',
	updated_at          DATETIME
);

CREATE TABLE IF NOT EXISTS client_identities (
	client_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	value     TEXT NOT NULL,
	UNIQUE(kind, value)
);

CREATE TABLE IF NOT EXISTS communications (
	id           TEXT PRIMARY KEY,
	from_address TEXT NOT NULL DEFAULT '',
	from_domain  TEXT,
	subject      TEXT NOT NULL DEFAULT '',
	body_text    TEXT NOT NULL DEFAULT '',
	client_id    TEXT,
	link_status  TEXT NOT NULL DEFAULT 'unlinked'
);

CREATE TABLE IF NOT EXISTS commitments (
	id               TEXT PRIMARY KEY,
	communication_id TEXT NOT NULL,
	text             TEXT NOT NULL DEFAULT '',
	due_date         TEXT
);

CREATE TABLE IF NOT EXISTS invoices (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'draft',
	client_id    TEXT,
	client_name  TEXT,
	amount       REAL NOT NULL DEFAULT 0,
	due_date     TEXT,
	paid_date    TEXT,
	aging_bucket TEXT
);

CREATE TABLE IF NOT EXISTS capacity_lanes (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	weekly_hours REAL
);

CREATE TABLE IF NOT EXISTS resolution_queue (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type       TEXT NOT NULL,
	entity_id         TEXT NOT NULL,
	issue_type        TEXT NOT NULL,
	priority          INTEGER NOT NULL,
	context           TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	resolved_at       DATETIME,
	resolved_by       TEXT,
	resolution_action TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_resolution_open
	ON resolution_queue(entity_type, entity_id, issue_type) WHERE resolved_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_resolution_pending ON resolution_queue(resolved_at, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_commitments_comm ON commitments(communication_id);
`

// requiredColumns lists every column the core reads or writes.
var requiredColumns = map[string][]string{
	"clients":           {"id", "name", "tier"},
	"brands":            {"id", "client_id"},
	"projects":          {"id", "name", "is_internal", "brand_id", "client_id", "updated_at"},
	"tasks":             {"id", "title", "status", "project_id", "due_date", "brand_id", "client_id", "project_link_status", "client_link_status", "updated_at"},
	"client_identities": {"client_id", "kind", "value"},
	"communications":    {"id", "from_address", "from_domain", "subject", "body_text", "client_id", "link_status"},
	"commitments":       {"id", "communication_id", "due_date"},
	"invoices":          {"id", "status", "client_id", "client_name", "due_date", "paid_date", "aging_bucket"},
	"capacity_lanes":    {"id", "weekly_hours"},
	"resolution_queue":  {"id", "entity_type", "entity_id", "issue_type", "priority", "context", "created_at", "resolved_at", "resolved_by", "resolution_action"},
}

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite database at dsn. It does not create or migrate tables.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &DB{conn: conn}, nil
}

// ApplySchema creates any missing tables and indexes.
func (db *DB) ApplySchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// VerifySchema fails with apperr.ErrSchemaMismatch when any required column is absent.
func (db *DB) VerifySchema(ctx context.Context) error {
	tables := make([]string, 0, len(requiredColumns))
	for t := range requiredColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var missing []string
	for _, table := range tables {
		have, err := db.columns(ctx, table)
		if err != nil {
			return err
		}
		for _, col := range requiredColumns[table] {
			if _, ok := have[col]; !ok {
				missing = append(missing, table+"."+col)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("store: missing columns %s: %w", strings.Join(missing, ", "), apperr.ErrSchemaMismatch)
	}
	return nil
}

func (db *DB) columns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("store: table info %s: %w", table, err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

// Exec runs a raw statement. Collectors and test fixtures use it to populate base rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: exec: %w", err)
	}
	return nil
}

// Count runs a query returning a single integer.
func (db *DB) Count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
