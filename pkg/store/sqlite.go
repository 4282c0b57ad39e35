package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the sqlite-backed document store, search index and history store.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and migrates the schema.
// WAL mode, foreign keys and a busy timeout are set per connection through the DSN.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One writer at a time; a single connection also keeps history appends serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		config JSON NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		entry_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		row_values JSON NOT NULL,
		PRIMARY KEY (dataset_id, entry_id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_seq ON entries(dataset_id, seq);

	-- list-typed feature values expanded at ingest time
	CREATE TABLE IF NOT EXISTS list_nodes (
		dataset_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		label TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		FOREIGN KEY (dataset_id, entry_id) REFERENCES entries(dataset_id, entry_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_list_nodes_lookup ON list_nodes(dataset_id, feature, entry_id);

	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		study_id TEXT NOT NULL,
		parent_id TEXT REFERENCES history(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		action TEXT NOT NULL,
		graph_type TEXT NOT NULL,
		snapshot_ref TEXT,
		dimensions JSON NOT NULL,
		schema JSON NOT NULL,
		node_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (study_id, seq)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		history_id TEXT NOT NULL REFERENCES history(id) ON DELETE CASCADE,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comments_history ON comments(history_id);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL,
		epoch INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
