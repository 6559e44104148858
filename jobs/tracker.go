// Package jobs owns the lifecycle of asynchronous processing jobs. The job
// table is in-memory only; finished jobs expire after a retention window.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job lifecycle state. Transitions are monotonic:
// PENDING → RUNNING → (COMPLETED | FAILED).
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Job is one asynchronous processing request. Mutated exclusively by the
// owning background task through the tracker; readers get copies.
type Job struct {
	ID        string    `json:"job_id"`
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Result holds the processing summary once COMPLETED.
	Result any `json:"data,omitempty"`
	// Error holds the failure message once FAILED.
	Error string `json:"error,omitempty"`
}

// terminal reports whether no further transitions are allowed.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Tracker is the job table. All mutations serialize through one mutex.
type Tracker struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	retention time.Duration
	logger    *slog.Logger

	// onActive, when set, receives the active (non-terminal) job count after
	// every mutation. Wired to the active_jobs gauge.
	onActive func(int)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithActiveCallback registers a callback observing the active job count.
func WithActiveCallback(fn func(int)) Option {
	return func(t *Tracker) {
		t.onActive = fn
	}
}

// NewTracker creates a tracker that retains finished jobs for retention.
func NewTracker(retention time.Duration, opts ...Option) *Tracker {
	if retention == 0 {
		retention = 24 * time.Hour
	}
	t := &Tracker{
		jobs:      make(map[string]*Job),
		retention: retention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register inserts a new PENDING job and returns its ID. IDs are V7 UUIDs:
// globally unique and lexicographically time-sortable.
func (t *Tracker) Register(requestID string) string {
	now := time.Now()
	job := &Job{
		ID:        uuid.Must(uuid.NewV7()).String(),
		RequestID: requestID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.notifyActiveLocked()
	t.mu.Unlock()

	return job.ID
}

// Start transitions PENDING→RUNNING. Idempotent when already RUNNING;
// any other predecessor is rejected.
func (t *Tracker) Start(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	switch job.Status {
	case StatusRunning:
		return nil
	case StatusPending:
		job.Status = StatusRunning
		job.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("job %s cannot start from %s", jobID, job.Status)
	}
}

// Complete transitions RUNNING→COMPLETED with a result summary.
func (t *Tracker) Complete(jobID string, summary any) error {
	return t.finish(jobID, StatusCompleted, summary, "")
}

// Fail transitions RUNNING→FAILED with an error message.
func (t *Tracker) Fail(jobID string, errMsg string) error {
	return t.finish(jobID, StatusFailed, nil, errMsg)
}

func (t *Tracker) finish(jobID string, status Status, summary any, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != StatusRunning {
		return fmt.Errorf("job %s cannot finish from %s", jobID, job.Status)
	}

	job.Status = status
	job.Result = summary
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	t.notifyActiveLocked()
	return nil
}

// Get returns a copy of the job, or false when unknown or expired.
func (t *Tracker) Get(jobID string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ActiveCount returns the number of non-terminal jobs.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

func (t *Tracker) activeLocked() int {
	n := 0
	for _, job := range t.jobs {
		if !job.Status.terminal() {
			n++
		}
	}
	return n
}

func (t *Tracker) notifyActiveLocked() {
	if t.onActive != nil {
		t.onActive(t.activeLocked())
	}
}

// StartSweeper launches the background eviction loop. It stops when ctx is
// cancelled.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep(time.Now())
			}
		}
	}()
}

// sweep evicts jobs older than the retention window.
func (t *Tracker) sweep(now time.Time) {
	cutoff := now.Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, job := range t.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(t.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		t.logger.Debug("evicted expired jobs", "count", evicted)
		t.notifyActiveLocked()
	}
}
