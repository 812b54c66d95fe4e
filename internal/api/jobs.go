package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/brainless/csvexplorer/internal/jobs"
)

type importJobRequest struct {
	URLs      []string `json:"urls"`
	ChunkSize int      `json:"chunk_size"`
	Force     bool     `json:"force"`
	Workers   int      `json:"workers"`
}

// getJobsHandler handles requests to list jobs
func (s *Server) getJobsHandler(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{}
	if state := r.URL.Query().Get("state"); state != "" {
		filter.States = []jobs.JobState{jobs.JobState(state)}
	}
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs(filter))
}

// startImportJobHandler queues a background batch import.
func (s *Server) startImportJobHandler(w http.ResponseWriter, r *http.Request) {
	var req importJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}
	for _, u := range req.URLs {
		if u == "" {
			writeError(w, http.StatusBadRequest, "urls must not contain empty entries")
			return
		}
	}

	workers := req.Workers
	if workers <= 0 {
		workers = s.config.Workers
	}
	task := jobs.ImportTask(s.importer, req.URLs, s.importOptions(req.ChunkSize, req.Force), workers)
	id, err := s.jobManager.Submit(jobs.JobTypeImport, fmt.Sprintf("Import %d dataset(s)", len(req.URLs)), int64(len(req.URLs)), task)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	status, err := s.jobManager.GetJob(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobManager.GetJob(r.PathValue("job_id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) cancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if err := s.jobManager.CancelJob(jobID); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Job %s cancelled", jobID),
		"job_id":  jobID,
	})
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// requireJobs answers 503 when the server runs without a job manager.
func (s *Server) requireJobs(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jobManager == nil {
			writeError(w, http.StatusServiceUnavailable, "background jobs are disabled")
			return
		}
		next(w, r)
	}
}

// registerJobsRoutes registers the jobs-related routes
func (s *Server) registerJobsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs", s.requireJobs(s.getJobsHandler))
	mux.HandleFunc("POST /api/jobs/import", s.requireJobs(s.startImportJobHandler))
	mux.HandleFunc("GET /api/jobs/{job_id}", s.requireJobs(s.getJobHandler))
	mux.HandleFunc("POST /api/jobs/{job_id}/cancel", s.requireJobs(s.cancelJobHandler))
}
