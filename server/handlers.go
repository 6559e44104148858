package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/jobs"
	"github.com/prensadata/rotativa/pipeline"
)

// asyncAck is the response for requests dispatched to a background job.
type asyncAck struct {
	RequestID string `json:"request_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

// handleProcessArticle accepts an article and dispatches it by payload size:
// small bodies run inline under the sync deadline, large ones become jobs.
func (s *Server) handleProcessArticle(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var article domain.Article
	if err := json.Unmarshal(body, &article); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, errorBody{Error: errBadPayload})
		return
	}

	if fieldErrs := s.processor.ValidateArticle(&article); len(fieldErrs) > 0 {
		s.writeError(w, r, http.StatusBadRequest, errorBody{
			Error:    errValidation,
			Detalles: fieldErrs,
		})
		return
	}

	if len(body) <= s.cfg.SyncMaxBytesArticle {
		s.runSync(w, r, func(ctx context.Context) (any, error) {
			return s.processor.ProcessArticle(ctx, &article)
		})
		return
	}

	s.runAsync(w, r, func(ctx context.Context) (any, error) {
		return s.processor.ProcessArticle(ctx, &article)
	})
}

// handleProcessFragment is the fragment twin of handleProcessArticle, with
// its own, smaller sync threshold.
func (s *Server) handleProcessFragment(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var fragment domain.Fragment
	if err := json.Unmarshal(body, &fragment); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, errorBody{Error: errBadPayload})
		return
	}

	if fieldErrs := s.processor.ValidateFragment(&fragment); len(fieldErrs) > 0 {
		s.writeError(w, r, http.StatusBadRequest, errorBody{
			Error:    errValidation,
			Detalles: fieldErrs,
		})
		return
	}

	if len(body) <= s.cfg.SyncMaxBytesFragment {
		s.runSync(w, r, func(ctx context.Context) (any, error) {
			return s.processor.ProcessFragment(ctx, &fragment)
		})
		return
	}

	s.runAsync(w, r, func(ctx context.Context) (any, error) {
		return s.processor.ProcessFragment(ctx, &fragment)
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || len(body) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errorBody{
			Error:    errValidation,
			Detalles: []pipeline.FieldError{{Field: "body", Error: "empty or unreadable"}},
		})
		return nil, false
	}
	return body, true
}

// runSync runs the controller inline under the sync deadline and returns the
// full result. The deadline propagates into the chain; a cancelled phase
// falls back and the response carries what was produced.
func (s *Server) runSync(w http.ResponseWriter, r *http.Request, process func(context.Context) (any, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SyncDeadline)
	defer cancel()

	if err := s.workers.Acquire(ctx, 1); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errorBody{
			Error:       errUnavailable,
			SupportCode: supportCode("HTTP"),
			RetryAfter:  int(s.cfg.SyncDeadline.Seconds()),
		})
		return
	}
	defer s.workers.Release(1)

	result, err := process(ctx)
	if err != nil {
		s.writeProcessingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// runAsync registers a job, acknowledges immediately, and runs the
// controller in the background. Async work has no wall-clock deadline; it is
// bounded by the per-phase adapter timeouts.
func (s *Server) runAsync(w http.ResponseWriter, r *http.Request, process func(context.Context) (any, error)) {
	requestID := reqID(r.Context())
	jobID := s.tracker.Register(requestID)

	go func() {
		ctx := context.Background()

		if err := s.workers.Acquire(ctx, 1); err != nil {
			// Acquire only fails on context cancellation. The job never
			// started, so walk it through RUNNING to FAILED instead of
			// leaving it PENDING forever.
			s.failPending(jobID, "worker pool unavailable")
			return
		}
		defer s.workers.Release(1)

		if err := s.tracker.Start(jobID); err != nil {
			s.logger.Error("job start failed", "job_id", jobID, "error", err)
			return
		}

		result, err := process(ctx)
		if err != nil {
			s.logger.Error("async job failed",
				"job_id", jobID,
				"request_id", requestID,
				"error", err)
			s.tracker.Fail(jobID, err.Error())
			return
		}
		s.tracker.Complete(jobID, result)
	}()

	writeJSON(w, http.StatusOK, asyncAck{
		RequestID: requestID,
		JobID:     jobID,
		Status:    "processing",
	})
}

// failPending marks a job that never reached a worker as failed. The tracker
// only accepts Fail on RUNNING jobs, so the job is started first.
func (s *Server) failPending(jobID, msg string) {
	if err := s.tracker.Start(jobID); err != nil {
		s.logger.Error("job start failed", "job_id", jobID, "error", err)
		return
	}
	if err := s.tracker.Fail(jobID, msg); err != nil {
		s.logger.Error("job fail transition rejected", "job_id", jobID, "error", err)
	}
}

// jobStatusBody is the /status/{job_id} response.
type jobStatusBody struct {
	JobID     string      `json:"job_id"`
	Status    jobs.Status `json:"status"`
	Data      any         `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, found := s.tracker.Get(jobID)
	if !found {
		s.writeError(w, r, http.StatusNotFound, errorBody{Error: errNotFound})
		return
	}

	writeJSON(w, http.StatusOK, jobStatusBody{
		JobID:     job.ID,
		Status:    job.Status,
		Data:      job.Result,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	report, ok := s.health.Run(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
