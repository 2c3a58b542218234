// Package store provides a SQLite-backed query log. Every ask and every
// ingested document is recorded so operators can audit cache behaviour
// (hit rates, similarity scores) and trace what content entered the index.
// The log is advisory; the engine never reads it on the query path.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// AskRecord is one logged ask operation.
type AskRecord struct {
	// Query is the question text as asked.
	Query string
	// Mode is the normalized response mode.
	Mode string
	// Model is the model override used, empty for the default.
	Model string
	// Cached reports whether the answer came from the semantic cache.
	Cached bool
	// Similarity is the cache-match similarity; 0 when Cached is false.
	Similarity float32
	// CreatedAt is when the ask was logged.
	CreatedAt time.Time
}

// IngestRecord is one logged document ingestion.
type IngestRecord struct {
	// DocumentID is the id prefix shared by the document's chunks.
	DocumentID string
	// Source is the source label (usually the file name).
	Source string
	// Chunks is the number of chunks indexed.
	Chunks int
	// CreatedAt is when the ingestion was logged.
	CreatedAt time.Time
}

// QueryLog persists ask and ingest records. Implementations must be safe
// for concurrent use.
type QueryLog interface {
	// LogAsk records one ask operation.
	LogAsk(ctx context.Context, rec AskRecord) error
	// LogIngest records one document ingestion.
	LogIngest(ctx context.Context, rec IngestRecord) error
	// RecentAsks returns the most recent n asks, newest-first.
	RecentAsks(ctx context.Context, n int) ([]AskRecord, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is a QueryLog backed by a local SQLite database.
type SQLiteLog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.pedaragy/querylog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pedaragy")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "querylog.db"), nil
}

// Open opens (or creates) a SQLiteLog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteLog{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS asks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    query        TEXT    NOT NULL,
    mode         TEXT    NOT NULL,
    model        TEXT    NOT NULL DEFAULT '',
    cached       INTEGER NOT NULL CHECK(cached IN (0,1)),
    similarity   REAL    NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_asks_created
    ON asks (created_at);

CREATE TABLE IF NOT EXISTS ingests (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id  TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    chunks       INTEGER NOT NULL,
    created_at   INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// LogAsk records one ask operation.
func (s *SQLiteLog) LogAsk(ctx context.Context, rec AskRecord) error {
	const q = `INSERT INTO asks (query, mode, model, cached, similarity, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	cached := 0
	if rec.Cached {
		cached = 1
	}
	if _, err := s.db.ExecContext(ctx, q, rec.Query, rec.Mode, rec.Model, cached, rec.Similarity, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: log ask: %w", err)
	}
	return nil
}

// LogIngest records one document ingestion.
func (s *SQLiteLog) LogIngest(ctx context.Context, rec IngestRecord) error {
	const q = `INSERT INTO ingests (document_id, source, chunks, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, rec.DocumentID, rec.Source, rec.Chunks, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: log ingest: %w", err)
	}
	return nil
}

// RecentAsks returns the most recent n asks, newest-first.
func (s *SQLiteLog) RecentAsks(ctx context.Context, n int) ([]AskRecord, error) {
	const q = `
SELECT query, mode, model, cached, similarity, created_at
FROM   asks
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent asks: %w", err)
	}
	defer rows.Close()

	var recs []AskRecord
	for rows.Next() {
		var r AskRecord
		var ts int64
		var cached int
		if err := rows.Scan(&r.Query, &r.Mode, &r.Model, &cached, &r.Similarity, &ts); err != nil {
			return nil, fmt.Errorf("store: recent asks scan: %w", err)
		}
		r.Cached = cached == 1
		r.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent asks rows: %w", err)
	}
	return recs, nil
}

// Close releases the database connection pool.
func (s *SQLiteLog) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
