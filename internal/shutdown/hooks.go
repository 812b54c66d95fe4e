package shutdown

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Priorities of the built-in hooks. The server stops accepting requests
// before jobs are cancelled, and the store closes last.
const (
	PriorityServer = 10
	PriorityJobs   = 20
	PriorityStore  = 50
)

// FuncHook adapts a function to Hook
type FuncHook struct {
	name     string
	priority int
	timeout  time.Duration
	fn       func(ctx context.Context) error
}

// NewFuncHook creates a hook that calls fn. A zero timeout uses the
// manager's HookTimeout.
func NewFuncHook(name string, priority int, timeout time.Duration, fn func(ctx context.Context) error) *FuncHook {
	return &FuncHook{name: name, priority: priority, timeout: timeout, fn: fn}
}

func (h *FuncHook) Name() string                       { return h.name }
func (h *FuncHook) Priority() int                      { return h.priority }
func (h *FuncHook) Timeout() time.Duration             { return h.timeout }
func (h *FuncHook) Shutdown(ctx context.Context) error { return h.fn(ctx) }

// Stopper is anything with a context-bounded Stop, like the API server.
type Stopper interface {
	Stop(ctx context.Context) error
}

// ServerHook stops an HTTP server
func ServerHook(server Stopper, timeout time.Duration) *FuncHook {
	return NewFuncHook("api-server", PriorityServer, timeout, server.Stop)
}

// JobsHook cancels and waits for background jobs via stop
func JobsHook(stop func(), timeout time.Duration) *FuncHook {
	return NewFuncHook("jobs", PriorityJobs, timeout, func(ctx context.Context) error {
		stop()
		return nil
	})
}

// StoreHook closes the dataset store
func StoreHook(store io.Closer) *FuncHook {
	return NewFuncHook("store", PriorityStore, 0, func(ctx context.Context) error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
		return nil
	})
}
