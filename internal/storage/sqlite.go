package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseFile is the SQLite file created under the storage path.
const DatabaseFile = "csvcache.sqlite"

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Stats summarises what the cache currently holds.
type Stats struct {
	Datasets     int       `json:"datasets"`
	Chunks       int       `json:"chunks"`
	DatabaseSize int64     `json:"database_size"`
	LastUpdate   time.Time `json:"last_update"`
}

// NewSQLiteStore opens (creating if needed) the cache database in storagePath.
func NewSQLiteStore(storagePath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, storageErr("open", storagePath, fmt.Errorf("failed to create storage directory: %w", err))
	}

	dbPath := filepath.Join(storagePath, DatabaseFile)
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, storageErr("open", dbPath, fmt.Errorf("failed to open database: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("open", dbPath, fmt.Errorf("failed to ping database: %w", err))
	}

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, storageErr("migrate", dbPath, fmt.Errorf("failed to migrate database: %w", err))
	}

	return store, nil
}

// migrate creates or updates the database schema
func (s *SQLiteStore) migrate() error {
	schema := `
	-- One summary row per source URL
	CREATE TABLE IF NOT EXISTS datasets (
		url TEXT PRIMARY KEY,
		fetched_at INTEGER NOT NULL,
		etag TEXT,
		last_modified TEXT,
		content_type TEXT,
		row_count INTEGER NOT NULL,
		chunk_size INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		schema TEXT NOT NULL -- JSON array of columns
	);

	-- Row chunks keyed by url || '::' || chunk_index
	CREATE TABLE IF NOT EXISTS chunks (
		key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		headers TEXT NOT NULL, -- JSON array of strings
		rows TEXT NOT NULL     -- JSON array of arrays of strings
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks(url);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetDatasetMeta retrieves the metadata for url
func (s *SQLiteStore) GetDatasetMeta(ctx context.Context, url string) (*DatasetMeta, error) {
	query := `
	SELECT url, fetched_at, etag, last_modified, content_type, row_count, chunk_size, chunk_count, schema
	FROM datasets WHERE url = ?
	`
	meta, err := scanMeta(s.db.QueryRowContext(ctx, query, url))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("get dataset", url, err)
	}
	return meta, nil
}

// PutDatasetMeta upserts the metadata row for meta.URL
func (s *SQLiteStore) PutDatasetMeta(ctx context.Context, meta *DatasetMeta) error {
	if meta == nil || meta.URL == "" {
		return storageErr("put dataset", "", fmt.Errorf("dataset url is required"))
	}

	schemaJSON, err := json.Marshal(meta.Schema)
	if err != nil {
		return storageErr("put dataset", meta.URL, fmt.Errorf("failed to marshal schema: %w", err))
	}

	query := `
	INSERT OR REPLACE INTO datasets
	(url, fetched_at, etag, last_modified, content_type, row_count, chunk_size, chunk_count, schema)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		meta.URL, meta.FetchedAt.UnixMilli(),
		nullString(meta.ETag), nullString(meta.LastModified), nullString(meta.ContentType),
		meta.RowCount, meta.ChunkSize, meta.ChunkCount, string(schemaJSON),
	)
	return storageErr("put dataset", meta.URL, err)
}

// GetChunk retrieves one chunk of url
func (s *SQLiteStore) GetChunk(ctx context.Context, url string, index int) (*Chunk, error) {
	key := ChunkKey(url, index)

	var (
		chunk       Chunk
		headersJSON string
		rowsJSON    string
	)
	query := "SELECT key, url, chunk_index, headers, rows FROM chunks WHERE key = ?"
	err := s.db.QueryRowContext(ctx, query, key).Scan(&chunk.Key, &chunk.URL, &chunk.ChunkIndex, &headersJSON, &rowsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("get chunk", key, err)
	}

	if err := json.Unmarshal([]byte(headersJSON), &chunk.Headers); err != nil {
		return nil, storageErr("get chunk", key, fmt.Errorf("failed to unmarshal headers: %w", err))
	}
	if err := json.Unmarshal([]byte(rowsJSON), &chunk.Rows); err != nil {
		return nil, storageErr("get chunk", key, fmt.Errorf("failed to unmarshal rows: %w", err))
	}
	return &chunk, nil
}

// PutChunk upserts a chunk; its key is derived from URL and ChunkIndex
func (s *SQLiteStore) PutChunk(ctx context.Context, chunk *Chunk) error {
	if chunk == nil || chunk.URL == "" {
		return storageErr("put chunk", "", fmt.Errorf("chunk url is required"))
	}
	if chunk.ChunkIndex < 0 {
		return storageErr("put chunk", chunk.URL, fmt.Errorf("chunk index must be >= 0, got %d", chunk.ChunkIndex))
	}
	chunk.Key = ChunkKey(chunk.URL, chunk.ChunkIndex)

	headersJSON, err := json.Marshal(nonNilStrings(chunk.Headers))
	if err != nil {
		return storageErr("put chunk", chunk.Key, fmt.Errorf("failed to marshal headers: %w", err))
	}
	rowsJSON, err := json.Marshal(chunk.Rows)
	if err != nil {
		return storageErr("put chunk", chunk.Key, fmt.Errorf("failed to marshal rows: %w", err))
	}

	query := `
	INSERT OR REPLACE INTO chunks (key, url, chunk_index, headers, rows)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query, chunk.Key, chunk.URL, chunk.ChunkIndex, string(headersJSON), string(rowsJSON))
	return storageErr("put chunk", chunk.Key, err)
}

// ClearDataset deletes the metadata of url, then its chunks. The two
// deletes are separate statements, matching the Store contract.
func (s *SQLiteStore) ClearDataset(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE url = ?", url); err != nil {
		return storageErr("clear dataset", url, err)
	}

	// The url column guards against another URL that happens to start
	// with this one followed by the separator.
	prefix := ChunkPrefix(url)
	query := "DELETE FROM chunks WHERE substr(key, 1, ?) = ? AND url = ?"
	if _, err := s.db.ExecContext(ctx, query, utf8.RuneCountInString(prefix), prefix, url); err != nil {
		return storageErr("clear chunks", prefix, err)
	}
	return nil
}

// ListAllDatasets returns all metadata rows
func (s *SQLiteStore) ListAllDatasets(ctx context.Context) ([]*DatasetMeta, error) {
	query := `
	SELECT url, fetched_at, etag, last_modified, content_type, row_count, chunk_size, chunk_count, schema
	FROM datasets
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list datasets", "", err)
	}
	defer rows.Close()

	var out []*DatasetMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, storageErr("list datasets", "", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list datasets", "", fmt.Errorf("error iterating rows: %w", err))
	}
	return out, nil
}

// GetStats returns row counts and the database file size
func (s *SQLiteStore) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM datasets").Scan(&stats.Datasets); err != nil {
		return Stats{}, storageErr("stats", "datasets", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return Stats{}, storageErr("stats", "chunks", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	stats.LastUpdate = time.Now()
	return stats, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (*DatasetMeta, error) {
	var (
		meta       DatasetMeta
		fetchedAt  int64
		schemaJSON string

		etag, lastModified, contentType sql.NullString
	)
	err := row.Scan(
		&meta.URL, &fetchedAt, &etag, &lastModified, &contentType,
		&meta.RowCount, &meta.ChunkSize, &meta.ChunkCount, &schemaJSON,
	)
	if err != nil {
		return nil, err
	}

	meta.FetchedAt = time.UnixMilli(fetchedAt).UTC()
	meta.ETag = etag.String
	meta.LastModified = lastModified.String
	meta.ContentType = contentType.String

	if err := json.Unmarshal([]byte(schemaJSON), &meta.Schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema for %s: %w", meta.URL, err)
	}
	return &meta, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
