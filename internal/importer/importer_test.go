package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brainless/csvexplorer/internal/csvparse"
	"github.com/brainless/csvexplorer/internal/fetch"
	"github.com/brainless/csvexplorer/internal/log"
	"github.com/brainless/csvexplorer/internal/schema"
	"github.com/brainless/csvexplorer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: make(map[string]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, &fetch.FetchError{URL: url, Status: 404, StatusText: "Not Found", Detail: fetch.Detail{Error: "Not Found"}}
	}
	return &fetch.Result{Text: body, ETag: `"e1"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT", ContentType: "text/csv"}, nil
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// failingStore fails PutChunk once failAfter chunks have been written.
type failingStore struct {
	*storage.MemoryStore
	failAfter int
	written   int
}

func (f *failingStore) PutChunk(ctx context.Context, chunk *storage.Chunk) error {
	if f.written >= f.failAfter {
		return &storage.StorageError{Op: "put chunk", Key: chunk.URL, Err: errors.New("quota exceeded")}
	}
	f.written++
	return f.MemoryStore.PutChunk(ctx, chunk)
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)

func newTestImporter(store storage.Store, fetcher fetch.Fetcher) *Importer {
	return New(store, fetcher,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(log.Discard()),
	)
}

func csvWithRows(n int) string {
	var sb strings.Builder
	sb.WriteString("id,name\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d,name%d\n", i, i)
	}
	return sb.String()
}

func TestImportFromURL_Chunking(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/big.csv"
	fetcher.set(url, csvWithRows(2500))
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	res, err := imp.ImportFromURL(ctx, url, Options{ChunkSize: 1000})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2500, res.Meta.RowCount)
	assert.Equal(t, 3, res.Meta.ChunkCount)
	assert.Equal(t, 1000, res.Meta.ChunkSize)
	assert.Equal(t, fixedNow.Truncate(time.Millisecond), res.Meta.FetchedAt)
	assert.Equal(t, `"e1"`, res.Meta.ETag)
	assert.Equal(t, "text/csv", res.Meta.ContentType)

	sizes := []int{}
	for idx := 0; idx < 3; idx++ {
		chunk, err := store.GetChunk(ctx, url, idx)
		require.NoError(t, err)
		require.NotNil(t, chunk)
		assert.Equal(t, []string{"id", "name"}, chunk.Headers)
		sizes = append(sizes, len(chunk.Rows))
	}
	assert.Equal(t, []int{1000, 1000, 500}, sizes)

	missing, err := store.GetChunk(ctx, url, 3)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.Len(t, res.Meta.Schema, 2)
	assert.Equal(t, schema.TypeNumber, res.Meta.Schema[0].Type)
	assert.Equal(t, schema.TypeString, res.Meta.Schema[1].Type)
}

func TestImportFromURL_DefaultChunkSize(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/d.csv"
	fetcher.set(url, csvWithRows(1001))

	res, err := newTestImporter(store, fetcher).ImportFromURL(context.Background(), url, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, res.Meta.ChunkSize)
	assert.Equal(t, 2, res.Meta.ChunkCount)
}

func TestImportFromURL_CacheHitSkipsFetch(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/d.csv"
	fetcher.set(url, csvWithRows(3))
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	first, err := imp.ImportFromURL(ctx, url, Options{})
	require.NoError(t, err)

	fetcher.set(url, csvWithRows(10))
	second, err := imp.ImportFromURL(ctx, url, Options{})
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.Meta, second.Meta)
	assert.Equal(t, 3, second.Meta.RowCount)
	assert.Equal(t, 1, fetcher.callCount(url))
}

func TestImportFromURL_ForceReplacesStaleChunks(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/d.csv"
	fetcher.set(url, csvWithRows(2500))
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	old, err := imp.ImportFromURL(ctx, url, Options{ChunkSize: 1000})
	require.NoError(t, err)
	require.Equal(t, 3, old.Meta.ChunkCount)

	fetcher.set(url, csvWithRows(10))
	res, err := imp.ImportFromURL(ctx, url, Options{ChunkSize: 1000, Force: true})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, res.Meta.ChunkCount)
	assert.Equal(t, 2, fetcher.callCount(url))

	stale, err := store.GetChunk(ctx, url, old.Meta.ChunkCount-1)
	require.NoError(t, err)
	assert.Nil(t, stale)
	assert.Equal(t, 1, store.ChunkCount(url))
}

func TestImportFromURL_MissingURL(t *testing.T) {
	imp := newTestImporter(storage.NewMemoryStore(), newFakeFetcher())
	_, err := imp.ImportFromURL(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestImportFromURL_FetchErrorPropagates(t *testing.T) {
	store := storage.NewMemoryStore()
	imp := newTestImporter(store, newFakeFetcher())
	url := "https://example.com/missing.csv"

	_, err := imp.ImportFromURL(context.Background(), url, Options{})
	var fe *fetch.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.Status)

	meta, err := store.GetDatasetMeta(context.Background(), url)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestImportFromURL_EmptyBody(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "https://example.com/empty.csv"
	fetcher.set(url, "")
	imp := newTestImporter(storage.NewMemoryStore(), fetcher)

	_, err := imp.ImportFromURL(context.Background(), url, Options{})
	var empty *EmptyDatasetError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, url, empty.URL)
}

func TestImportFromURL_InvalidInput(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "https://example.com/binary.csv"
	fetcher.set(url, "a\x00b")
	imp := newTestImporter(storage.NewMemoryStore(), fetcher)

	_, err := imp.ImportFromURL(context.Background(), url, Options{})
	var invalid *csvparse.InvalidInputError
	assert.True(t, errors.As(err, &invalid))
}

func TestImportFromURL_Latin1Body(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/declared.csv" {
			w.Header().Set("Content-Type", "text/csv; charset=ISO-8859-1")
		} else {
			w.Header().Set("Content-Type", "text/csv")
		}
		w.Write([]byte("name,city\nJos\xe9,M\xe9rida\n"))
	}))
	defer upstream.Close()

	client := fetch.NewClient(fetch.Config{RestrictedDomains: []string{}})
	defer client.Close()
	store := storage.NewMemoryStore()
	imp := newTestImporter(store, client)
	ctx := context.Background()

	for _, path := range []string{"/declared.csv", "/undeclared.csv"} {
		url := upstream.URL + path
		res, err := imp.ImportFromURL(ctx, url, Options{})
		require.NoError(t, err, path)
		assert.Equal(t, 1, res.Meta.RowCount, path)

		chunk, err := store.GetChunk(ctx, url, 0)
		require.NoError(t, err)
		require.NotNil(t, chunk)
		assert.Equal(t, []csvparse.Row{{"José", "Mérida"}}, chunk.Rows, path)
	}
}

func TestImportFromURL_HeaderOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/header.csv"
	fetcher.set(url, " a , b \n")
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	res, err := imp.ImportFromURL(ctx, url, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Meta.RowCount)
	assert.Equal(t, 0, res.Meta.ChunkCount)
	assert.Equal(t, []string{"a", "b"}, res.Meta.Headers())

	// No chunk 0 exists, so there is nothing to load.
	cached, err := imp.LoadFromCache(ctx, url)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestImportFromURL_MetadataWrittenLast(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), failAfter: 1}
	fetcher := newFakeFetcher()
	url := "https://example.com/d.csv"
	fetcher.set(url, csvWithRows(25))
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	_, err := imp.ImportFromURL(ctx, url, Options{ChunkSize: 10})
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))

	meta, err := store.GetDatasetMeta(ctx, url)
	require.NoError(t, err)
	assert.Nil(t, meta, "metadata must not exist when a chunk write failed")
	assert.Equal(t, 1, store.ChunkCount(url))
}

func TestLoadFromCache(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/d.csv"
	fetcher.set(url, "x,y\n1,2\n")
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	cached, err := imp.LoadFromCache(ctx, url)
	require.NoError(t, err)
	assert.Nil(t, cached)

	_, err = imp.ImportFromURL(ctx, url, Options{})
	require.NoError(t, err)

	cached, err = imp.LoadFromCache(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, url, cached.URL)
	assert.Equal(t, []string{"x", "y"}, cached.Headers)
	assert.Equal(t, 1, cached.Meta.RowCount)
}

func TestListCachedAndClear(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	urls := []string{"https://c.example/3.csv", "https://a.example/1.csv", "https://b.example/2.csv"}
	for _, u := range urls {
		fetcher.set(u, csvWithRows(2))
	}
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	for _, u := range urls {
		_, err := imp.ImportFromURL(ctx, u, Options{})
		require.NoError(t, err)
	}

	list, err := imp.ListCached(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "https://a.example/1.csv", list[0].URL)
	assert.Equal(t, "https://c.example/3.csv", list[2].URL)

	require.NoError(t, imp.Clear(ctx, "https://a.example/1.csv"))
	meta, err := store.GetDatasetMeta(ctx, "https://a.example/1.csv")
	require.NoError(t, err)
	assert.Nil(t, meta)
	chunk, err := imp.Chunk(ctx, "https://a.example/1.csv", 0)
	require.NoError(t, err)
	assert.Nil(t, chunk)

	assert.ErrorIs(t, imp.Clear(ctx, ""), ErrMissingURL)
}

func TestReadRows(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	url := "https://example.com/d.csv"
	fetcher.set(url, csvWithRows(25))
	imp := newTestImporter(store, fetcher)
	ctx := context.Background()

	_, err := imp.ImportFromURL(ctx, url, Options{ChunkSize: 10})
	require.NoError(t, err)

	rows, err := imp.ReadRows(ctx, url, 8, 5)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "8", rows[0][0])
	assert.Equal(t, "12", rows[4][0])

	rows, err = imp.ReadRows(ctx, url, 20, 100)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "24", rows[4][0])

	rows, err = imp.ReadRows(ctx, url, 25, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = imp.ReadRows(ctx, "https://example.com/none.csv", 0, 10)
	require.NoError(t, err)
	assert.Nil(t, rows)

	_, err = imp.ReadRows(ctx, url, -1, 10)
	assert.Error(t, err)
}

func TestImportBatch(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := newFakeFetcher()
	good := []string{"https://a.example/1.csv", "https://b.example/2.csv", "https://c.example/3.csv"}
	for _, u := range good {
		fetcher.set(u, csvWithRows(5))
	}
	bad := "https://d.example/missing.csv"
	imp := newTestImporter(store, fetcher)

	urls := append([]string{good[0]}, good...)
	urls = append(urls, bad, good[1])

	batch := imp.ImportBatch(context.Background(), urls, Options{}, 2)
	require.NotEmpty(t, batch.ID)
	require.Len(t, batch.Outcomes, 4)
	assert.Equal(t, 1, batch.Failed())

	for n, u := range append(good, bad) {
		assert.Equal(t, u, batch.Outcomes[n].URL)
		assert.Equal(t, 1, fetcher.callCount(u), u)
	}
	assert.Error(t, batch.Outcomes[3].Err)
	assert.NotEmpty(t, batch.Outcomes[3].Error)
	assert.Equal(t, 5, batch.Outcomes[0].Result.Meta.RowCount)

	list, err := imp.ListCached(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestImportBatch_CancelledContext(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("https://a.example/1.csv", csvWithRows(1))
	imp := newTestImporter(storage.NewMemoryStore(), fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := imp.ImportBatch(ctx, []string{"https://a.example/1.csv"}, Options{}, 1)
	require.Len(t, batch.Outcomes, 1)
	assert.ErrorIs(t, batch.Outcomes[0].Err, context.Canceled)
	assert.Equal(t, 0, fetcher.callCount("https://a.example/1.csv"))
}

func TestImportBatchFunc_ReportsEachOutcome(t *testing.T) {
	fetcher := newFakeFetcher()
	urls := []string{"https://a.example/1.csv", "https://b.example/2.csv"}
	for _, u := range urls {
		fetcher.set(u, csvWithRows(1))
	}
	imp := newTestImporter(storage.NewMemoryStore(), fetcher)

	var mu sync.Mutex
	seen := map[string]bool{}
	imp.ImportBatchFunc(context.Background(), urls, Options{}, 2, func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[o.URL] = o.Err == nil
	})

	assert.Equal(t, map[string]bool{urls[0]: true, urls[1]: true}, seen)
}
