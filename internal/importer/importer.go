// Package importer turns a CSV URL into cached metadata and row chunks.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brainless/csvexplorer/internal/csvparse"
	"github.com/brainless/csvexplorer/internal/fetch"
	"github.com/brainless/csvexplorer/internal/log"
	"github.com/brainless/csvexplorer/internal/schema"
	"github.com/brainless/csvexplorer/internal/storage"
	"github.com/sirupsen/logrus"
)

const DefaultChunkSize = 1000

// ErrMissingURL is returned when an import is requested without a URL.
var ErrMissingURL = errors.New("missing url")

// EmptyDatasetError means the fetched body held no header row.
type EmptyDatasetError struct {
	URL string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("CSV contained no rows: %s", e.URL)
}

// Options tune a single import.
type Options struct {
	ChunkSize  int
	Force      bool
	SampleSize int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.SampleSize <= 0 {
		o.SampleSize = schema.DefaultSampleSize
	}
	return o
}

// Result is the outcome of ImportFromURL.
type Result struct {
	FromCache bool                 `json:"from_cache"`
	Meta      *storage.DatasetMeta `json:"meta"`
}

// Cached is what LoadFromCache knows about a stored dataset.
type Cached struct {
	URL     string               `json:"url"`
	Meta    *storage.DatasetMeta `json:"meta"`
	Headers []string             `json:"headers"`
}

// Importer coordinates fetch, parse, inference and persistence.
type Importer struct {
	store   storage.Store
	fetcher fetch.Fetcher
	now     func() time.Time
	logger  logrus.FieldLogger
}

type Option func(*Importer)

// WithClock replaces time.Now for FetchedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(i *Importer) { i.logger = logger }
}

func New(store storage.Store, fetcher fetch.Fetcher, opts ...Option) *Importer {
	i := &Importer{
		store:   store,
		fetcher: fetcher,
		now:     time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportFromURL fetches url and replaces whatever is cached for it. Unless
// opts.Force is set, an existing cache entry is returned without fetching.
func (i *Importer) ImportFromURL(ctx context.Context, url string, opts Options) (*Result, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	opts = opts.withDefaults()
	logger := i.logger.WithField("url", url)

	if !opts.Force {
		existing, err := i.store.GetDatasetMeta(ctx, url)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logger.WithField("from_cache", true).Debug("Dataset already cached")
			return &Result{FromCache: true, Meta: existing}, nil
		}
	}

	res, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	table, err := csvparse.Parse(res.Text, csvparse.Options{})
	if err != nil {
		return nil, err
	}
	if isEmptyTable(table) {
		return nil, &EmptyDatasetError{URL: url}
	}

	headers := make([]string, len(table[0]))
	for n, h := range table[0] {
		headers[n] = strings.TrimSpace(h)
	}
	dataRows := table[1:]
	columns := schema.Infer(headers, dataRows, opts.SampleSize)

	if err := i.store.ClearDataset(ctx, url); err != nil {
		return nil, err
	}

	chunkCount := 0
	for start := 0; start < len(dataRows); start += opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+opts.ChunkSize, len(dataRows))
		chunk := &storage.Chunk{
			URL:        url,
			ChunkIndex: chunkCount,
			Headers:    headers,
			Rows:       dataRows[start:end],
		}
		if err := i.store.PutChunk(ctx, chunk); err != nil {
			return nil, err
		}
		chunkCount++
	}

	meta := &storage.DatasetMeta{
		URL:          url,
		FetchedAt:    i.now().UTC().Truncate(time.Millisecond),
		ETag:         res.ETag,
		LastModified: res.LastModified,
		ContentType:  res.ContentType,
		RowCount:     len(dataRows),
		ChunkSize:    opts.ChunkSize,
		ChunkCount:   chunkCount,
		Schema:       columns,
	}
	if err := i.store.PutDatasetMeta(ctx, meta); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"rows":       meta.RowCount,
		"chunks":     meta.ChunkCount,
		"from_cache": false,
	}).Info("Dataset imported")

	return &Result{FromCache: false, Meta: meta}, nil
}

// LoadFromCache returns the metadata and headers of url, or nil when the
// metadata or its first chunk is missing.
func (i *Importer) LoadFromCache(ctx context.Context, url string) (*Cached, error) {
	meta, err := i.store.GetDatasetMeta(ctx, url)
	if err != nil || meta == nil {
		return nil, err
	}
	first, err := i.store.GetChunk(ctx, url, 0)
	if err != nil || first == nil {
		return nil, err
	}
	return &Cached{URL: url, Meta: meta, Headers: first.Headers}, nil
}

// ListCached returns every cached dataset ordered by URL.
func (i *Importer) ListCached(ctx context.Context) ([]*storage.DatasetMeta, error) {
	all, err := i.store.ListAllDatasets(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(a, b int) bool { return all[a].URL < all[b].URL })
	return all, nil
}

// Clear removes the cached metadata and chunks of url.
func (i *Importer) Clear(ctx context.Context, url string) error {
	if url == "" {
		return ErrMissingURL
	}
	if err := i.store.ClearDataset(ctx, url); err != nil {
		return err
	}
	i.logger.WithField("url", url).Info("Dataset cleared")
	return nil
}

// Chunk returns one stored chunk, or nil when it does not exist.
func (i *Importer) Chunk(ctx context.Context, url string, index int) (*storage.Chunk, error) {
	return i.store.GetChunk(ctx, url, index)
}

// ReadRows returns up to limit data rows starting at offset, reading only
// the chunks that cover the range. It returns nil rows when url is not cached.
func (i *Importer) ReadRows(ctx context.Context, url string, offset, limit int) ([]csvparse.Row, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("offset and limit must be >= 0, got %d and %d", offset, limit)
	}
	meta, err := i.store.GetDatasetMeta(ctx, url)
	if err != nil || meta == nil {
		return nil, err
	}
	if limit == 0 || offset >= meta.RowCount || meta.ChunkSize <= 0 {
		return []csvparse.Row{}, nil
	}

	end := min(offset+limit, meta.RowCount)
	out := make([]csvparse.Row, 0, end-offset)
	for idx := offset / meta.ChunkSize; idx*meta.ChunkSize < end; idx++ {
		chunk, err := i.store.GetChunk(ctx, url, idx)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			return nil, fmt.Errorf("chunk %d of %s is missing", idx, url)
		}
		base := idx * meta.ChunkSize
		from := max(offset-base, 0)
		to := min(end-base, len(chunk.Rows))
		if from < to {
			out = append(out, chunk.Rows[from:to]...)
		}
	}
	return out, nil
}

// isEmptyTable reports a parse with no header: the parser yields a single
// empty field for empty input.
func isEmptyTable(table []csvparse.Row) bool {
	if len(table) == 0 {
		return true
	}
	return len(table) == 1 && len(table[0]) == 1 && strings.TrimSpace(table[0][0]) == ""
}
