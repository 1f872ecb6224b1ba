package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/scheduler"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// Validation gates the store write: an invalid cron expression never
	// reaches the registry, because the job is never created.
	if err := s.validateJobData(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	next, err := s.calculateNextRunTime(req.CronSchedule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := s.store.Create(r.Context(), store.CreateJob{
		Name:         req.Name,
		Description:  req.Description,
		CronSchedule: req.CronSchedule,
		Type:         req.Type,
		Data:         req.Data,
		NextRun:      &next,
	})
	if err != nil {
		s.log.Error("create job failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	// Register immediately; discovery is only the safety net. A scheduler
	// mid-shutdown still created the job, so surface that plainly.
	if err := s.sched.ScheduleJob(j); err != nil {
		if errors.Is(err, scheduler.ErrShuttingDown) || errors.Is(err, scheduler.ErrNotRunning) {
			writeError(w, http.StatusServiceUnavailable, "job created but scheduler unavailable: "+err.Error())
			return
		}
		s.log.Error("schedule job failed", logx.String("job_id", j.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "job created but scheduling failed")
		return
	}

	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.FindAll(r.Context())
	if err != nil {
		s.log.Error("list jobs failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, err := s.store.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.log.Error("get job failed", logx.String("job_id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "could not read job")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
