// Package shutdown runs registered cleanup hooks in priority order when the
// process receives SIGINT or SIGTERM, or when asked to directly.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/brainless/csvexplorer/internal/log"
	"github.com/sirupsen/logrus"
)

// ErrInProgress is returned by Shutdown when a shutdown already ran or is running.
var ErrInProgress = errors.New("shutdown already in progress")

// Hook is a component that needs to be stopped gracefully
type Hook interface {
	Name() string
	// Priority orders hooks; lower numbers shut down first.
	Priority() int
	Timeout() time.Duration
	Shutdown(ctx context.Context) error
}

// Status describes a shutdown in progress or finished
type Status struct {
	InProgress     bool      `json:"in_progress"`
	StartTime      time.Time `json:"start_time"`
	CompletedHooks []string  `json:"completed_hooks"`
	Errors         []string  `json:"errors"`
	Reason         string    `json:"reason"`
}

// ManagerConfig holds configuration for the shutdown manager
type ManagerConfig struct {
	GracefulTimeout time.Duration
	// HookTimeout applies to hooks reporting a zero Timeout.
	HookTimeout time.Duration
	Signals     []os.Signal
}

// DefaultManagerConfig returns default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		GracefulTimeout: 30 * time.Second,
		HookTimeout:     10 * time.Second,
		Signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Manager collects hooks and runs them once
type Manager struct {
	mu     sync.Mutex
	hooks  map[string]Hook
	status Status
	done   chan struct{}
	config ManagerConfig
	logger logrus.FieldLogger
}

// NewManager creates a new shutdown manager
func NewManager(config ManagerConfig) *Manager {
	if config.GracefulTimeout <= 0 {
		config.GracefulTimeout = 30 * time.Second
	}
	if config.HookTimeout <= 0 {
		config.HookTimeout = 10 * time.Second
	}
	return &Manager{
		hooks:  make(map[string]Hook),
		done:   make(chan struct{}),
		config: config,
		logger: log.Logger,
	}
}

// SetLogger replaces the logger used for hook progress
func (m *Manager) SetLogger(logger logrus.FieldLogger) {
	m.logger = logger
}

// Register adds a hook under its name
func (m *Manager) Register(hook Hook) error {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}
	name := hook.Name()
	if name == "" {
		return fmt.Errorf("hook name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.hooks[name]; exists {
		return fmt.Errorf("hook %s already registered", name)
	}
	m.hooks[name] = hook
	m.logger.Debugf("Registered shutdown hook: %s (priority: %d)", name, hook.Priority())
	return nil
}

// Wait blocks until ctx is done or one of the configured signals arrives,
// then runs the shutdown sequence.
func (m *Manager) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	if len(m.config.Signals) > 0 {
		signal.Notify(sigChan, m.config.Signals...)
		defer signal.Stop(sigChan)
	}

	reason := "context done"
	select {
	case sig := <-sigChan:
		reason = sig.String() + " received"
	case <-ctx.Done():
	case <-m.done:
		return nil
	}
	return m.Shutdown(reason)
}

// Done is closed once the shutdown sequence has finished
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown runs every hook in priority order. A failing or slow hook does
// not stop the ones after it; all failures are joined in the result.
func (m *Manager) Shutdown(reason string) error {
	m.mu.Lock()
	if m.status.InProgress {
		m.mu.Unlock()
		return ErrInProgress
	}
	m.status = Status{InProgress: true, StartTime: time.Now(), Reason: reason}
	hooks := m.sortedHooksLocked()
	m.mu.Unlock()
	defer close(m.done)

	m.logger.Infof("Initiating graceful shutdown: %s", reason)

	ctx, cancel := context.WithTimeout(context.Background(), m.config.GracefulTimeout)
	defer cancel()

	var errs []error
	for _, hook := range hooks {
		err := m.runHook(ctx, hook)

		m.mu.Lock()
		m.status.CompletedHooks = append(m.status.CompletedHooks, hook.Name())
		if err != nil {
			err = fmt.Errorf("hook %s failed: %w", hook.Name(), err)
			m.status.Errors = append(m.status.Errors, err.Error())
			errs = append(errs, err)
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Errorf("Shutdown hook %s failed: %v", hook.Name(), err)
		}
	}

	m.logger.Info("Graceful shutdown completed")
	return errors.Join(errs...)
}

// IsShuttingDown returns true once Shutdown has started
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.InProgress
}

// GetStatus returns a copy of the current status
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.status
	status.CompletedHooks = append([]string(nil), m.status.CompletedHooks...)
	status.Errors = append([]string(nil), m.status.Errors...)
	return status
}

func (m *Manager) runHook(parent context.Context, hook Hook) error {
	timeout := hook.Timeout()
	if timeout <= 0 {
		timeout = m.config.HookTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	m.logger.Debugf("Executing shutdown hook: %s (timeout: %v)", hook.Name(), timeout)

	done := make(chan error, 1)
	go func() {
		done <- hook.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out after %v", timeout)
	}
}

func (m *Manager) sortedHooksLocked() []Hook {
	hooks := make([]Hook, 0, len(m.hooks))
	for _, hook := range m.hooks {
		hooks = append(hooks, hook)
	}
	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].Priority() != hooks[j].Priority() {
			return hooks[i].Priority() < hooks[j].Priority()
		}
		return hooks[i].Name() < hooks[j].Name()
	})
	return hooks
}
