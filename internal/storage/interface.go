package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/brainless/csvexplorer/internal/csvparse"
	"github.com/brainless/csvexplorer/internal/schema"
)

// ChunkSeparator joins a dataset URL and a chunk index into a chunk key.
const ChunkSeparator = "::"

// Store persists dataset metadata and row chunks. It holds two logical
// tables: datasets keyed by URL and chunks keyed by ChunkKey.
//
// Each method is atomic on its own. ClearDataset touches both tables and is
// not: a failure part way through can leave chunks without metadata, and the
// caller is expected to retry.
type Store interface {
	// GetDatasetMeta returns nil, nil when nothing is stored for url.
	GetDatasetMeta(ctx context.Context, url string) (*DatasetMeta, error)
	PutDatasetMeta(ctx context.Context, meta *DatasetMeta) error

	// GetChunk returns nil, nil when the chunk does not exist.
	GetChunk(ctx context.Context, url string, index int) (*Chunk, error)
	PutChunk(ctx context.Context, chunk *Chunk) error

	// ClearDataset deletes the metadata for url and then every chunk of url.
	ClearDataset(ctx context.Context, url string) error

	// ListAllDatasets returns every stored metadata record in no particular order.
	ListAllDatasets(ctx context.Context) ([]*DatasetMeta, error)

	Close() error
}

// DatasetMeta is the single summary record kept per source URL.
// Empty ETag, LastModified and ContentType mean the header was absent.
type DatasetMeta struct {
	URL          string          `json:"url"`
	FetchedAt    time.Time       `json:"fetched_at"`
	ETag         string          `json:"etag,omitempty"`
	LastModified string          `json:"last_modified,omitempty"`
	ContentType  string          `json:"content_type,omitempty"`
	RowCount     int             `json:"row_count"`
	ChunkSize    int             `json:"chunk_size"`
	ChunkCount   int             `json:"chunk_count"`
	Schema       []schema.Column `json:"schema"`
}

// Headers returns the column names recorded in the schema.
func (m *DatasetMeta) Headers() []string {
	out := make([]string, len(m.Schema))
	for i, c := range m.Schema {
		out[i] = c.Name
	}
	return out
}

// Chunk is a bounded slice of a dataset's data rows.
type Chunk struct {
	Key        string         `json:"key"`
	URL        string         `json:"url"`
	ChunkIndex int            `json:"chunk_index"`
	Headers    []string       `json:"headers"`
	Rows       []csvparse.Row `json:"rows"`
}

// ChunkKey builds the primary key of chunk index of url.
func ChunkKey(url string, index int) string {
	return url + ChunkSeparator + strconv.Itoa(index)
}

// ChunkPrefix is the key prefix shared by every chunk of url.
func ChunkPrefix(url string) string {
	return url + ChunkSeparator
}

var (
	errClosed     = errors.New("store is closed")
	errMissingURL = errors.New("dataset url is required")
)

// StorageError wraps any failure of the underlying store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
