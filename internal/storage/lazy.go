package storage

import (
	"context"
	"errors"
	"sync"
)

// Opener creates the underlying store on first use.
type Opener func() (Store, error)

// LazyStore is a shared handle that opens its backend the first time any
// method is called. A failed open is remembered and returned on every call.
type LazyStore struct {
	open  Opener
	once  sync.Once
	store Store
	err   error
}

func NewLazyStore(open Opener) *LazyStore {
	return &LazyStore{open: open}
}

// Get opens the backend if needed and returns it.
func (l *LazyStore) Get() (Store, error) {
	l.once.Do(func() {
		l.store, l.err = l.open()
		if l.err != nil {
			l.err = storageErr("open", "", l.err)
		}
	})
	return l.store, l.err
}

func (l *LazyStore) GetDatasetMeta(ctx context.Context, url string) (*DatasetMeta, error) {
	s, err := l.Get()
	if err != nil {
		return nil, err
	}
	return s.GetDatasetMeta(ctx, url)
}

func (l *LazyStore) PutDatasetMeta(ctx context.Context, meta *DatasetMeta) error {
	s, err := l.Get()
	if err != nil {
		return err
	}
	return s.PutDatasetMeta(ctx, meta)
}

func (l *LazyStore) GetChunk(ctx context.Context, url string, index int) (*Chunk, error) {
	s, err := l.Get()
	if err != nil {
		return nil, err
	}
	return s.GetChunk(ctx, url, index)
}

func (l *LazyStore) PutChunk(ctx context.Context, chunk *Chunk) error {
	s, err := l.Get()
	if err != nil {
		return err
	}
	return s.PutChunk(ctx, chunk)
}

func (l *LazyStore) ClearDataset(ctx context.Context, url string) error {
	s, err := l.Get()
	if err != nil {
		return err
	}
	return s.ClearDataset(ctx, url)
}

func (l *LazyStore) ListAllDatasets(ctx context.Context) ([]*DatasetMeta, error) {
	s, err := l.Get()
	if err != nil {
		return nil, err
	}
	return s.ListAllDatasets(ctx)
}

// Close closes the backend if it was ever opened. A handle closed before
// first use refuses to open afterwards.
func (l *LazyStore) Close() error {
	l.once.Do(func() {
		l.err = storageErr("open", "", errors.New("store closed before first use"))
	})
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
