package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brainless/csvexplorer/internal/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrManagerStopped = errors.New("job manager stopped")
)

// ManagerConfig holds configuration for the job manager
type ManagerConfig struct {
	// MaxWorkers bounds how many jobs run at once.
	MaxWorkers int
	// MaxHistory is how many finished jobs are remembered.
	MaxHistory int
}

// DefaultManagerConfig returns default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxWorkers: 2,
		MaxHistory: 100,
	}
}

type jobEntry struct {
	status *JobStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs tasks in the background and keeps their status in memory.
type Manager struct {
	config  ManagerConfig
	jobs    map[string]*jobEntry
	jobsMux sync.RWMutex
	slots   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logrus.FieldLogger
	stopped bool
}

// NewManager creates a new job manager
func NewManager(config ManagerConfig) *Manager {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultManagerConfig().MaxWorkers
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultManagerConfig().MaxHistory
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config: config,
		jobs:   make(map[string]*jobEntry),
		slots:  make(chan struct{}, config.MaxWorkers),
		ctx:    ctx,
		cancel: cancel,
		logger: log.Logger,
	}
}

// SetLogger replaces the logger used for job lifecycle messages.
func (m *Manager) SetLogger(logger logrus.FieldLogger) {
	m.logger = logger
}

// Submit queues task and returns its job ID.
func (m *Manager) Submit(typ JobType, description string, total int64, task Task) (string, error) {
	m.jobsMux.Lock()
	defer m.jobsMux.Unlock()
	if m.stopped {
		return "", ErrManagerStopped
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(m.ctx)
	entry := &jobEntry{
		status: &JobStatus{
			ID:          id,
			Type:        typ,
			State:       JobStateQueued,
			Progress:    JobProgress{Total: total},
			CreatedAt:   time.Now(),
			Description: description,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.jobs[id] = entry
	m.pruneLocked()

	m.wg.Add(1)
	go m.run(ctx, entry, task)

	m.logger.WithFields(logrus.Fields{"job": id, "type": typ}).Info("Job submitted")
	return id, nil
}

func (m *Manager) run(ctx context.Context, entry *jobEntry, task Task) {
	defer m.wg.Done()
	defer close(entry.done)
	defer entry.cancel()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(entry, nil, ctx.Err())
		return
	}

	now := time.Now()
	m.jobsMux.Lock()
	entry.status.State = JobStateRunning
	entry.status.StartTime = &now
	m.jobsMux.Unlock()

	report := func(p JobProgress) {
		m.jobsMux.Lock()
		entry.status.Progress = p
		m.jobsMux.Unlock()
	}

	meta, err := task(ctx, report)
	m.finish(entry, meta, err)
}

func (m *Manager) finish(entry *jobEntry, meta JobMetadata, err error) {
	now := time.Now()
	m.jobsMux.Lock()
	defer m.jobsMux.Unlock()

	s := entry.status
	s.EndTime = &now
	s.Metadata = meta
	switch {
	case errors.Is(err, context.Canceled):
		s.State = JobStateCancelled
		s.ErrorMessage = err.Error()
	case err != nil:
		s.State = JobStateFailed
		s.ErrorMessage = err.Error()
	default:
		s.State = JobStateCompleted
	}

	logger := m.logger.WithFields(logrus.Fields{"job": s.ID, "state": s.State})
	if err != nil {
		logger.WithError(err).Warn("Job finished with error")
	} else {
		logger.Info("Job completed")
	}
}

// GetJob returns a copy of the job's status.
func (m *Manager) GetJob(id string) (*JobStatus, error) {
	m.jobsMux.RLock()
	defer m.jobsMux.RUnlock()

	entry, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	s := *entry.status
	return &s, nil
}

// ListJobs returns matching jobs, oldest first.
func (m *Manager) ListJobs(filter JobFilter) []*JobStatus {
	m.jobsMux.RLock()
	defer m.jobsMux.RUnlock()

	out := make([]*JobStatus, 0, len(m.jobs))
	for _, entry := range m.jobs {
		if filter.matches(entry.status) {
			s := *entry.status
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CancelJob cancels a queued or running job. Writes already issued by the
// task still complete.
func (m *Manager) CancelJob(id string) error {
	m.jobsMux.RLock()
	entry, ok := m.jobs[id]
	m.jobsMux.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	entry.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx ends, then returns its status.
func (m *Manager) Wait(ctx context.Context, id string) (*JobStatus, error) {
	m.jobsMux.RLock()
	entry, ok := m.jobs[id]
	m.jobsMux.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	select {
	case <-entry.done:
		return m.GetJob(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetStats counts jobs by state.
func (m *Manager) GetStats() ManagerStats {
	m.jobsMux.RLock()
	defer m.jobsMux.RUnlock()

	stats := ManagerStats{
		TotalJobs:   len(m.jobs),
		JobsByState: make(map[JobState]int),
		MaxWorkers:  m.config.MaxWorkers,
	}
	for _, entry := range m.jobs {
		stats.JobsByState[entry.status.State]++
		if !entry.status.State.IsFinished() {
			stats.ActiveJobs++
		}
	}
	return stats
}

// Stop cancels every job and waits for them to return.
func (m *Manager) Stop() {
	m.jobsMux.Lock()
	if m.stopped {
		m.jobsMux.Unlock()
		return
	}
	m.stopped = true
	m.jobsMux.Unlock()

	m.logger.Info("Stopping job manager...")
	m.cancel()
	m.wg.Wait()
}

// pruneLocked drops the oldest finished jobs beyond MaxHistory.
func (m *Manager) pruneLocked() {
	var finished []*jobEntry
	for _, entry := range m.jobs {
		if entry.status.State.IsFinished() {
			finished = append(finished, entry)
		}
	}
	if len(finished) <= m.config.MaxHistory {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].status.CreatedAt.Before(finished[j].status.CreatedAt)
	})
	for _, entry := range finished[:len(finished)-m.config.MaxHistory] {
		delete(m.jobs, entry.status.ID)
	}
}
