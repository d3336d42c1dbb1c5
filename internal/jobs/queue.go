package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/logger"
)

// Store defines the persistence interface for job data.
// This interface is implemented by internal/store.SQLiteStore.
type Store interface {
	SaveJob(job *Job) error
	GetJob(id string) (*Job, error)
	DeleteJob(id string) error
	SaveJobs(jobs []*Job) error
	GetAllJobs() ([]*Job, []string, error)
	AppendToOrder(id string) error
	SetOrder(order []string) error
	ResetRunningJobs() (int, error)
	Close() error
}

// Queue manages the job queue with persistence
type Queue struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // Job IDs in order of creation
	store Store    // Persistence store (nil = in-memory only)

	// Subscribers for job events
	subsMu      sync.RWMutex
	subscribers map[chan JobEvent]struct{}
}

// NewQueue creates a new in-memory job queue (for testing).
// Use NewQueueWithStore for production use with persistence.
func NewQueue() *Queue {
	return &Queue{
		jobs:        make(map[string]*Job),
		order:       make([]string, 0),
		subscribers: make(map[chan JobEvent]struct{}),
	}
}

// NewQueueWithStore creates a job queue backed by a persistent store.
// The store should already be initialized and have running jobs reset.
func NewQueueWithStore(store Store) (*Queue, error) {
	q := NewQueue()
	q.store = store

	if store != nil {
		jobs, order, err := store.GetAllJobs()
		if err != nil {
			return nil, fmt.Errorf("load jobs from store: %w", err)
		}
		for _, job := range jobs {
			q.jobs[job.ID] = job
		}
		q.order = order
	}

	return q, nil
}

// persist saves a job to the store (if configured).
// Called with lock held.
func (q *Queue) persist(job *Job) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(job); err != nil {
		logger.Warn("Failed to persist job", "job_id", job.ID, "error", err)
	}
}

// persistOrder adds a job ID to the store's order (if configured).
// Called with lock held.
func (q *Queue) persistOrder(id string) {
	if q.store == nil {
		return
	}
	if err := q.store.AppendToOrder(id); err != nil {
		logger.Warn("Failed to persist job order", "job_id", id, "error", err)
	}
}

// persistDelete removes a job from the store (if configured).
// Called with lock held.
func (q *Queue) persistDelete(id string) {
	if q.store == nil {
		return
	}
	if err := q.store.DeleteJob(id); err != nil {
		logger.Warn("Failed to delete job from store", "job_id", id, "error", err)
	}
}

func newJob(c Candidate) *Job {
	return &Job{
		ID:        generateID(),
		Path:      c.Path,
		MediaType: c.MediaType,
		Status:    StatusPending,
		FileSize:  c.Size,
		CreatedAt: time.Now(),
	}
}

// Add adds a new job to the queue
func (q *Queue) Add(c Candidate) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := newJob(c)
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)

	q.persist(job)
	q.persistOrder(job.ID)

	q.broadcast(JobEvent{Type: "added", Job: job.Copy()})

	return job
}

// AddMultiple adds multiple jobs at once with batched persistence and a
// single jobs_added event
func (q *Queue) AddMultiple(candidates []Candidate) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobList := make([]*Job, 0, len(candidates))
	for _, c := range candidates {
		job := newJob(c)
		q.jobs[job.ID] = job
		q.order = append(q.order, job.ID)
		jobList = append(jobList, job)
	}

	if q.store != nil && len(jobList) > 0 {
		if err := q.store.SaveJobs(jobList); err != nil {
			logger.Warn("Failed to persist jobs batch", "error", err)
		}
		for _, job := range jobList {
			q.persistOrder(job.ID)
		}
	}

	if len(jobList) > 0 {
		q.broadcast(JobEvent{Type: "jobs_added", Count: len(jobList)})
	}

	return jobList
}

// Get returns a snapshot of a job by ID, or nil
func (q *Queue) Get(id string) *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if job, ok := q.jobs[id]; ok {
		return job.Copy()
	}
	return nil
}

// GetAll returns snapshots of all jobs in order
func (q *Queue) GetAll() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*Job, 0, len(q.order))
	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok {
			jobs = append(jobs, job.Copy())
		}
	}
	return jobs
}

// GetNext returns the next pending job (for workers to pick up)
func (q *Queue) GetNext() *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok && job.Status == StatusPending {
			return job.Copy()
		}
	}
	return nil
}

// StartJob marks a job as running
func (q *Queue) StartJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusPending {
		return jobStateError(ErrJobNotPending, id, job.Status)
	}

	job.Status = StatusRunning
	job.StartedAt = time.Now()

	q.persist(job)
	q.broadcast(JobEvent{Type: "started", Job: job.Copy()})

	return nil
}

// CompleteJob marks a running job as complete with its analysis result
func (q *Queue) CompleteJob(id string, result *analysis.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusRunning {
		return jobStateError(ErrJobNotRunning, id, job.Status)
	}

	job.Status = StatusComplete
	job.Result = result
	job.Error = ""
	job.CompletedAt = time.Now()

	q.persist(job)
	q.broadcast(JobEvent{Type: "complete", Job: job.Copy()})

	return nil
}

// FailJob marks a job as failed
func (q *Queue) FailJob(id string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.IsTerminal() {
		return jobStateError(ErrJobTerminal, id, job.Status)
	}

	job.Status = StatusFailed
	job.Error = errMsg
	job.CompletedAt = time.Now()

	q.persist(job)
	q.broadcast(JobEvent{Type: "failed", Job: job.Copy()})

	return nil
}

// CancelJob cancels a job
func (q *Queue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.IsTerminal() {
		return jobStateError(ErrJobTerminal, id, job.Status)
	}

	job.Status = StatusCancelled
	job.CompletedAt = time.Now()

	q.persist(job)
	q.broadcast(JobEvent{Type: "cancelled", Job: job.Copy()})

	return nil
}

// Requeue resets a running job back to pending and moves it to the front of the queue.
// Used when pausing or reducing worker count to return jobs to the queue.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusRunning {
		return jobStateError(ErrJobNotRunning, id, job.Status)
	}

	job.Status = StatusPending
	job.StartedAt = time.Time{}

	newOrder := []string{id}
	for _, oid := range q.order {
		if oid != id {
			newOrder = append(newOrder, oid)
		}
	}
	q.order = newOrder

	q.persist(job)
	if q.store != nil {
		if err := q.store.SetOrder(q.order); err != nil {
			logger.Warn("Failed to persist job order", "error", err)
		}
	}

	q.broadcast(JobEvent{Type: "requeued", Job: job.Copy()})

	return nil
}

// Retry replaces a failed or cancelled job with a fresh pending job for
// the same file. The new job goes to the back of the queue.
func (q *Queue) Retry(id string) (*Job, error) {
	q.mu.Lock()
	old, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return nil, jobNotFoundError(id)
	}
	if old.Status != StatusFailed && old.Status != StatusCancelled {
		status := old.Status
		q.mu.Unlock()
		return nil, fmt.Errorf("can only retry failed or cancelled jobs (status: %s): %s", status, id)
	}
	c := Candidate{Path: old.Path, MediaType: old.MediaType, Size: old.FileSize}
	q.mu.Unlock()

	q.Remove(id)
	return q.Add(c), nil
}

// Clear removes jobs from the queue. If filterStatus is empty, clears all
// non-running jobs. If specified, clears only jobs matching that status.
// Running jobs are never cleared.
func (q *Queue) Clear(filterStatus Status) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	newOrder := make([]string, 0, len(q.order))
	for _, id := range q.order {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		if job.Status == StatusRunning {
			newOrder = append(newOrder, id)
			continue
		}
		if filterStatus != "" && job.Status != filterStatus {
			newOrder = append(newOrder, id)
			continue
		}
		q.persistDelete(id)
		delete(q.jobs, id)
		count++
	}
	q.order = newOrder

	return count
}

// Remove removes a single job from the queue
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.persistDelete(id)
	delete(q.jobs, id)

	newOrder := make([]string, 0, len(q.order))
	for _, jid := range q.order {
		if jid != id {
			newOrder = append(newOrder, jid)
		}
	}
	q.order = newOrder

	q.broadcast(JobEvent{Type: "removed", Job: &Job{ID: id}})
}

// Subscribe returns a channel that receives job events
func (q *Queue) Subscribe() chan JobEvent {
	ch := make(chan JobEvent, 100)

	q.subsMu.Lock()
	q.subscribers[ch] = struct{}{}
	q.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription
func (q *Queue) Unsubscribe(ch chan JobEvent) {
	q.subsMu.Lock()
	delete(q.subscribers, ch)
	q.subsMu.Unlock()

	close(ch)
}

// broadcast sends an event to all subscribers
func (q *Queue) broadcast(event JobEvent) {
	q.subsMu.RLock()
	defer q.subsMu.RUnlock()

	for ch := range q.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// BroadcastProgress sends a discovery progress event to all subscribers
func (q *Queue) BroadcastProgress(probed, total int) {
	q.broadcast(JobEvent{
		Type:   "discovery_progress",
		Probed: probed,
		Total:  total,
	})
}

// Stats returns queue statistics
type Stats struct {
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Complete       int `json:"complete"`
	Failed         int `json:"failed"`
	Cancelled      int `json:"cancelled"`
	Total          int `json:"total"`
	Fallbacks      int `json:"fallbacks"`       // Completed jobs scored with the fallback value
	AverageQuality int `json:"average_quality"` // Mean percentage over completed jobs
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats Stats
	sum := 0
	for _, job := range q.jobs {
		stats.Total++
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusComplete:
			stats.Complete++
			if job.Result != nil {
				sum += job.Result.Percentage
				if job.Result.Fallback {
					stats.Fallbacks++
				}
			}
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	if stats.Complete > 0 {
		stats.AverageQuality = sum / stats.Complete
	}

	return stats
}

// idCounter ensures unique IDs even when called in quick succession
var idCounter int64
var idMu sync.Mutex

// generateID creates a unique job ID
func generateID() string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounter++
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), idCounter)
}
