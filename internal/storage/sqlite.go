package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gojson "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ruiji/internal/models"
)

// SQLiteStore keeps one row per record in the item_metadata table. Records are cached
// in memory; Persist writes the ids changed since the last persist in one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
	records
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, records: newRecords()}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS item_metadata (
		id TEXT PRIMARY KEY,
		metadata TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_item_metadata_updated_at ON item_metadata(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Put replaces the record for id.
func (s *SQLiteStore) Put(ctx context.Context, id string, rec models.Record) error {
	s.put(id, rec)
	return nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Record, bool) {
	return s.get(id)
}

// Len returns the number of records.
func (s *SQLiteStore) Len() int { return s.len() }

// Range visits every record held in memory, in no particular order.
func (s *SQLiteStore) Range(ctx context.Context, fn func(id string, rec models.Record) bool) error {
	return s.each(ctx, fn)
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads every row into memory.
func (s *SQLiteStore) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, metadata FROM item_metadata`)
	if err != nil {
		return fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.Record)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan metadata: %w", err)
		}
		rec := models.Record{}
		if raw != "" {
			if err := gojson.Unmarshal([]byte(raw), &rec); err != nil {
				return fmt.Errorf("failed to unmarshal metadata for %s: %w", id, err)
			}
		}
		byID[id] = rec
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.replace(byID)
	return nil
}

// Persist upserts the changed records in a transaction.
func (s *SQLiteStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO item_metadata (id, metadata, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for id := range s.dirty {
		raw, err := gojson.Marshal(s.byID[id])
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(raw), now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dirty = make(map[string]struct{})
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
