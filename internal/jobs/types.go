package jobs

import (
	"context"
	"time"
)

// JobState represents the current state of a job
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsFinished returns true if the job state has completed execution
func (js JobState) IsFinished() bool {
	return js == JobStateCompleted || js == JobStateFailed || js == JobStateCancelled
}

// JobType names what a job does.
type JobType string

const (
	JobTypeImport JobType = "import"
	JobTypeClear  JobType = "clear"
)

// JobProgress counts finished units of work.
type JobProgress struct {
	Current int64  `json:"current"`
	Total   int64  `json:"total"`
	Message string `json:"message"`
}

// Percentage returns the completion percentage (0-100)
func (jp JobProgress) Percentage() float64 {
	if jp.Total == 0 {
		return 0
	}
	return float64(jp.Current) / float64(jp.Total) * 100
}

// JobMetadata holds job-specific results.
type JobMetadata map[string]any

// JobStatus is a snapshot of one job.
type JobStatus struct {
	ID           string      `json:"id"`
	Type         JobType     `json:"type"`
	State        JobState    `json:"state"`
	Progress     JobProgress `json:"progress"`
	CreatedAt    time.Time   `json:"created_at"`
	StartTime    *time.Time  `json:"start_time,omitempty"`
	EndTime      *time.Time  `json:"end_time,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Description  string      `json:"description"`
	Metadata     JobMetadata `json:"metadata,omitempty"`
}

// Duration returns the job execution duration
func (js *JobStatus) Duration() time.Duration {
	if js.StartTime == nil {
		return 0
	}
	if js.EndTime != nil {
		return js.EndTime.Sub(*js.StartTime)
	}
	return time.Since(*js.StartTime)
}

// ProgressCallback is called to report job progress
type ProgressCallback func(progress JobProgress)

// Task is the body of a job. The returned metadata is attached to the
// job status whether or not the task fails.
type Task func(ctx context.Context, report ProgressCallback) (JobMetadata, error)

// JobFilter selects jobs by state and type; empty fields match everything.
type JobFilter struct {
	States []JobState
	Types  []JobType
}

func (f JobFilter) matches(s *JobStatus) bool {
	if len(f.States) > 0 && !containsState(f.States, s.State) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, s.Type) {
		return false
	}
	return true
}

func containsState(states []JobState, s JobState) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(types []JobType, t JobType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

// ManagerStats provides statistics about the job manager
type ManagerStats struct {
	TotalJobs   int              `json:"total_jobs"`
	ActiveJobs  int              `json:"active_jobs"`
	JobsByState map[JobState]int `json:"jobs_by_state"`
	MaxWorkers  int              `json:"max_workers"`
}
