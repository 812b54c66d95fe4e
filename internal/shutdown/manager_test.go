package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brainless/csvexplorer/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(graceful time.Duration) *Manager {
	config := DefaultManagerConfig()
	config.Signals = nil
	if graceful > 0 {
		config.GracefulTimeout = graceful
	}
	m := NewManager(config)
	m.SetLogger(log.Discard())
	return m
}

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) hook(name string, priority int, err error) *FuncHook {
	return NewFuncHook(name, priority, time.Second, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)
		return err
	})
}

func TestManager_Register(t *testing.T) {
	m := newTestManager(0)
	var r recorder

	require.NoError(t, m.Register(r.hook("a", 1, nil)))
	assert.Error(t, m.Register(r.hook("a", 2, nil)), "duplicate name")
	assert.Error(t, m.Register(r.hook("", 1, nil)), "empty name")
	assert.Error(t, m.Register(nil))
}

func TestManager_RunsHooksInPriorityOrder(t *testing.T) {
	m := newTestManager(0)
	var r recorder

	require.NoError(t, m.Register(r.hook("store", PriorityStore, nil)))
	require.NoError(t, m.Register(r.hook("server", PriorityServer, nil)))
	require.NoError(t, m.Register(r.hook("jobs", PriorityJobs, nil)))

	require.NoError(t, m.Shutdown("test"))
	assert.Equal(t, []string{"server", "jobs", "store"}, r.order)

	status := m.GetStatus()
	assert.True(t, status.InProgress)
	assert.Equal(t, "test", status.Reason)
	assert.Len(t, status.CompletedHooks, 3)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done should be closed after shutdown")
	}
	assert.ErrorIs(t, m.Shutdown("again"), ErrInProgress)
}

func TestManager_FailingHookDoesNotStopOthers(t *testing.T) {
	m := newTestManager(0)
	var r recorder
	boom := errors.New("boom")

	require.NoError(t, m.Register(r.hook("first", 1, boom)))
	require.NoError(t, m.Register(r.hook("second", 2, nil)))

	err := m.Shutdown("test")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, r.order)
	assert.Len(t, m.GetStatus().Errors, 1)
}

func TestManager_HookTimeout(t *testing.T) {
	m := newTestManager(0)
	slow := NewFuncHook("slow", 1, 50*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	require.NoError(t, m.Register(slow))

	start := time.Now()
	err := m.Shutdown("timeout test")
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestManager_WaitReturnsOnContextDone(t *testing.T) {
	m := newTestManager(0)
	var r recorder
	require.NoError(t, m.Register(r.hook("only", 1, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Wait(ctx) }()

	assert.False(t, m.IsShuttingDown())
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
	assert.Equal(t, "context done", m.GetStatus().Reason)
	assert.Equal(t, []string{"only"}, r.order)
}

type fakeServer struct{ stopped bool }

func (f *fakeServer) Stop(ctx context.Context) error {
	f.stopped = true
	return nil
}

type fakeCloser struct{ err error }

func (f fakeCloser) Close() error { return f.err }

func TestBuiltinHooks(t *testing.T) {
	m := newTestManager(0)
	server := &fakeServer{}
	jobsStopped := false

	require.NoError(t, m.Register(ServerHook(server, time.Second)))
	require.NoError(t, m.Register(JobsHook(func() { jobsStopped = true }, time.Second)))
	require.NoError(t, m.Register(StoreHook(fakeCloser{err: errors.New("disk gone")})))

	err := m.Shutdown("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close store")
	assert.True(t, server.stopped)
	assert.True(t, jobsStopped)
	assert.Equal(t, []string{"api-server", "jobs", "store"}, m.GetStatus().CompletedHooks)
}
