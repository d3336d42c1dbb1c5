package jobs

import (
	"time"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/media"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job represents the analysis of one media file
type Job struct {
	ID          string           `json:"id"`
	Path        string           `json:"path"`
	MediaType   media.Type       `json:"media_type"`
	Status      Status           `json:"status"`
	Error       string           `json:"error,omitempty"`
	FileSize    int64            `json:"file_size"`
	Result      *analysis.Result `json:"result,omitempty"` // Set on completion
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
}

// Candidate is a file discovered for analysis.
type Candidate struct {
	Path      string     `json:"path"`
	MediaType media.Type `json:"media_type"`
	Size      int64      `json:"size"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed || j.Status == StatusCancelled
}

// Elapsed returns how long the job ran, or zero if it never started.
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// Copy returns a snapshot safe to hand to subscribers. The result is
// shared; it is never mutated after completion.
func (j *Job) Copy() *Job {
	c := *j
	return &c
}

// JobEvent represents an event for SSE streaming
type JobEvent struct {
	Type   string `json:"type"` // "added", "started", "complete", "failed", "cancelled", "requeued", "removed", "jobs_added", "discovery_progress"
	Job    *Job   `json:"job,omitempty"`
	Count  int    `json:"count,omitempty"`  // jobs_added
	Probed int    `json:"probed,omitempty"` // discovery_progress
	Total  int    `json:"total,omitempty"`  // discovery_progress
}
