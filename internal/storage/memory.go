package storage

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used by tests and by --ephemeral
// runs that should not touch the SQLite cache. Records are stored by value; row slices
// are shared with the caller.
type MemoryStore struct {
	mu     sync.RWMutex
	metas  map[string]DatasetMeta
	chunks map[string]Chunk
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metas:  make(map[string]DatasetMeta),
		chunks: make(map[string]Chunk),
	}
}

var errMemoryClosed = &StorageError{Op: "access", Err: errClosed}

func (m *MemoryStore) GetDatasetMeta(ctx context.Context, url string) (*DatasetMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemoryClosed
	}
	meta, ok := m.metas[url]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (m *MemoryStore) PutDatasetMeta(ctx context.Context, meta *DatasetMeta) error {
	if meta == nil || meta.URL == "" {
		return storageErr("put dataset", "", errMissingURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemoryClosed
	}
	m.metas[meta.URL] = *meta
	return nil
}

func (m *MemoryStore) GetChunk(ctx context.Context, url string, index int) (*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemoryClosed
	}
	chunk, ok := m.chunks[ChunkKey(url, index)]
	if !ok {
		return nil, nil
	}
	return &chunk, nil
}

func (m *MemoryStore) PutChunk(ctx context.Context, chunk *Chunk) error {
	if chunk == nil || chunk.URL == "" {
		return storageErr("put chunk", "", errMissingURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemoryClosed
	}
	chunk.Key = ChunkKey(chunk.URL, chunk.ChunkIndex)
	m.chunks[chunk.Key] = *chunk
	return nil
}

func (m *MemoryStore) ClearDataset(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemoryClosed
	}
	delete(m.metas, url)
	for key, chunk := range m.chunks {
		if chunk.URL == url {
			delete(m.chunks, key)
		}
	}
	return nil
}

func (m *MemoryStore) ListAllDatasets(ctx context.Context) ([]*DatasetMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemoryClosed
	}
	out := make([]*DatasetMeta, 0, len(m.metas))
	for _, meta := range m.metas {
		meta := meta
		out = append(out, &meta)
	}
	return out, nil
}

// ChunkCount reports how many chunks are held for url.
func (m *MemoryStore) ChunkCount(url string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, chunk := range m.chunks {
		if chunk.URL == url {
			n++
		}
	}
	return n
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
