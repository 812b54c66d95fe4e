package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently read metadata and chunks in memory in front
// of another Store. Writes go to the backend first and then drop the
// affected keys. A value read from the backend is only cached when no write
// completed while the read was in flight.
// Returned values are shared with the cache and must not be modified.
type CachedStore struct {
	backend Store
	metas   *lru.Cache[string, *DatasetMeta]
	chunks  *lru.Cache[string, *Chunk]

	// mu guards generation together with the fill and invalidate steps
	mu         sync.Mutex
	generation uint64
}

// NewCachedStore wraps backend with LRU caches holding up to size entries each.
func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	metas, err := lru.New[string, *DatasetMeta](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	chunks, err := lru.New[string, *Chunk](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}
	return &CachedStore{backend: backend, metas: metas, chunks: chunks}, nil
}

func (c *CachedStore) GetDatasetMeta(ctx context.Context, url string) (*DatasetMeta, error) {
	if meta, ok := c.metas.Get(url); ok {
		return meta, nil
	}
	gen := c.currentGeneration()
	meta, err := c.backend.GetDatasetMeta(ctx, url)
	if err != nil || meta == nil {
		return meta, err
	}
	c.fill(gen, func() { c.metas.Add(url, meta) })
	return meta, nil
}

func (c *CachedStore) PutDatasetMeta(ctx context.Context, meta *DatasetMeta) error {
	err := c.backend.PutDatasetMeta(ctx, meta)
	if meta != nil {
		c.invalidate(func() { c.metas.Remove(meta.URL) })
	}
	return err
}

func (c *CachedStore) GetChunk(ctx context.Context, url string, index int) (*Chunk, error) {
	key := ChunkKey(url, index)
	if chunk, ok := c.chunks.Get(key); ok {
		return chunk, nil
	}
	gen := c.currentGeneration()
	chunk, err := c.backend.GetChunk(ctx, url, index)
	if err != nil || chunk == nil {
		return chunk, err
	}
	c.fill(gen, func() { c.chunks.Add(key, chunk) })
	return chunk, nil
}

func (c *CachedStore) PutChunk(ctx context.Context, chunk *Chunk) error {
	err := c.backend.PutChunk(ctx, chunk)
	if chunk != nil {
		c.invalidate(func() { c.chunks.Remove(ChunkKey(chunk.URL, chunk.ChunkIndex)) })
	}
	return err
}

// ClearDataset drops the cached entries of url even when the backend fails,
// since part of the dataset may already be gone.
func (c *CachedStore) ClearDataset(ctx context.Context, url string) error {
	err := c.backend.ClearDataset(ctx, url)
	c.invalidate(func() {
		c.metas.Remove(url)
		prefix := ChunkPrefix(url)
		for _, key := range c.chunks.Keys() {
			if strings.HasPrefix(key, prefix) {
				if chunk, ok := c.chunks.Peek(key); ok && chunk.URL == url {
					c.chunks.Remove(key)
				}
			}
		}
	})
	return err
}

func (c *CachedStore) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// fill runs add only if no write finished since gen was read.
func (c *CachedStore) fill(gen uint64, add func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		add()
	}
}

func (c *CachedStore) invalidate(remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	remove()
}

// ListAllDatasets always reads the backend.
func (c *CachedStore) ListAllDatasets(ctx context.Context) ([]*DatasetMeta, error) {
	return c.backend.ListAllDatasets(ctx)
}

// Purge drops every cached entry without touching the backend.
func (c *CachedStore) Purge() {
	c.metas.Purge()
	c.chunks.Purge()
}

func (c *CachedStore) Close() error {
	c.Purge()
	return c.backend.Close()
}
