package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/logger"
	"github.com/gwlsn/mediagrade/internal/metrics"
)

// DefaultPollInterval is how long an idle or paused worker waits before
// checking the queue again.
const DefaultPollInterval = 500 * time.Millisecond

// Pool size bounds.
const (
	MinWorkers = 1
	MaxWorkers = 16
)

// ClampWorkerCount forces n into [MinWorkers, MaxWorkers].
func ClampWorkerCount(n int) int {
	return max(MinWorkers, min(n, MaxWorkers))
}

// IsValidWorkerCount reports whether n can be used as a pool size as-is.
func IsValidWorkerCount(n int) bool {
	return n >= MinWorkers && n <= MaxWorkers
}

// Analyzer scores one media file. Implemented by analysis.Service.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*analysis.Result, error)
}

// Recorder persists a completed analysis. Implemented by store.HistoryRecorder.
type Recorder interface {
	Record(result *analysis.Result) error
}

// Worker processes analysis jobs from the queue
type Worker struct {
	id       int
	pool     *WorkerPool
	queue    *Queue
	analyzer Analyzer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Currently running job (for cancellation)
	currentJobMu sync.Mutex
	currentJob   *Job
	jobCancel    context.CancelFunc
	jobDone      chan struct{} // Closed when current job finishes
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	mu           sync.Mutex
	workers      []*Worker
	queue        *Queue
	analyzer     Analyzer
	recorder     Recorder
	nextWorkerID int

	// PollInterval overrides DefaultPollInterval when set before Start.
	PollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// Pause state - when true, workers won't pick up new jobs
	paused   bool
	pausedMu sync.RWMutex
}

// runningJob tracks a job being processed by a worker.
// Used by Resize and Pause to collect and manage running jobs.
type runningJob struct {
	worker *Worker
	jobID  string
}

// NewWorkerPool creates a new worker pool. recorder may be nil.
func NewWorkerPool(queue *Queue, analyzer Analyzer, recorder Recorder, workers int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	workers = ClampWorkerCount(workers)

	pool := &WorkerPool{
		workers:      make([]*Worker, 0, workers),
		queue:        queue,
		analyzer:     analyzer,
		recorder:     recorder,
		PollInterval: DefaultPollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < workers; i++ {
		pool.workers = append(pool.workers, pool.createWorker())
	}

	return pool
}

// createWorker creates a new worker with the next available ID
func (p *WorkerPool) createWorker() *Worker {
	worker := &Worker{
		id:       p.nextWorkerID,
		pool:     p,
		queue:    p.queue,
		analyzer: p.analyzer,
	}
	p.nextWorkerID++
	return worker
}

func (p *WorkerPool) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return p.PollInterval
}

// Start starts all workers
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		w.Start(p.ctx)
	}
}

// Stop stops all workers gracefully. Jobs interrupted by shutdown stay
// running in the store and are reset to pending on the next start.
func (p *WorkerPool) Stop() {
	p.cancel()

	p.mu.Lock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

// CancelJob cancels a specific job if it's currently running
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.Lock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	for _, w := range workers {
		if done := w.CancelCurrentJob(jobID); done != nil {
			<-done
			return true
		}
	}
	return false
}

// collectRunning returns the jobs currently held by workers.
// Called with p.mu held.
func (p *WorkerPool) collectRunning() []runningJob {
	var running []runningJob
	for _, w := range p.workers {
		w.currentJobMu.Lock()
		if w.currentJob != nil {
			running = append(running, runningJob{worker: w, jobID: w.currentJob.ID})
		}
		w.currentJobMu.Unlock()
	}
	return running
}

// Resize changes the number of workers in the pool
// If n > current, new workers are started immediately
// If n < current, excess workers are stopped immediately
// Jobs are requeued in reverse order (most recently added jobs first)
func (p *WorkerPool) Resize(n int) {
	n = ClampWorkerCount(n)

	p.mu.Lock()
	defer p.mu.Unlock()

	current := len(p.workers)

	if n > current {
		for i := current; i < n; i++ {
			worker := p.createWorker()
			worker.Start(p.ctx)
			p.workers = append(p.workers, worker)
		}
	} else if n < current {
		workersToStop := current - n
		runningJobs := p.collectRunning()

		// Job IDs are timestamp-based, so lexicographically larger = more recent
		sort.Slice(runningJobs, func(i, j int) bool {
			return runningJobs[i].jobID > runningJobs[j].jobID
		})

		stopped := 0
		for _, rj := range runningJobs {
			if stopped >= workersToStop {
				break
			}

			// CancelAndStop waits for the worker to exit; the job is left
			// running by the shutdown path and is safe to requeue.
			rj.worker.CancelAndStop()
			if err := p.queue.Requeue(rj.jobID); err != nil {
				logger.Warn("Failed to requeue job during resize", "job_id", rj.jobID, "error", err)
			}

			for j, w := range p.workers {
				if w == rj.worker {
					p.workers = append(p.workers[:j], p.workers[j+1:]...)
					break
				}
			}
			stopped++
		}

		// Remaining removals are idle workers, taken from the end
		for len(p.workers) > n {
			w := p.workers[len(p.workers)-1]
			p.workers = p.workers[:len(p.workers)-1]
			w.CancelAndStop()
		}
	}

	if n != current {
		logger.Info("Worker pool resized", "old", current, "new", n)
	}
}

// WorkerCount returns the current number of workers
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsPaused returns whether job processing is paused
func (p *WorkerPool) IsPaused() bool {
	p.pausedMu.RLock()
	defer p.pausedMu.RUnlock()
	return p.paused
}

// Pause stops all running jobs and prevents new jobs from starting.
// Returns the number of jobs that were requeued.
func (p *WorkerPool) Pause() int {
	p.pausedMu.Lock()
	p.paused = true
	p.pausedMu.Unlock()

	p.mu.Lock()
	runningJobs := p.collectRunning()
	p.mu.Unlock()

	sort.Slice(runningJobs, func(i, j int) bool {
		return runningJobs[i].jobID < runningJobs[j].jobID
	})

	// Requeue adds to the front, so go newest first to keep the oldest at the head
	count := 0
	for i := len(runningJobs) - 1; i >= 0; i-- {
		rj := runningJobs[i]
		// Requeue while the job is still running so the worker sees a
		// pending job and leaves it alone when its context ends
		if err := p.queue.Requeue(rj.jobID); err != nil {
			logger.Warn("Failed to requeue job during pause", "job_id", rj.jobID, "error", err)
			continue
		}
		count++

		if done := rj.worker.CancelCurrentJob(rj.jobID); done != nil {
			<-done
		}
	}

	logger.Info("Queue paused", "requeued", count)
	return count
}

// Unpause allows workers to pick up jobs again
func (p *WorkerPool) Unpause() {
	p.pausedMu.Lock()
	p.paused = false
	p.pausedMu.Unlock()
	logger.Info("Queue resumed")
}

// Start starts the worker's processing loop
func (w *Worker) Start(parentCtx context.Context) {
	w.ctx, w.cancel = context.WithCancel(parentCtx)
	w.wg.Add(1)

	go w.run()
}

// Stop stops the worker. A worker that was never started has nothing to stop.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// run is the main worker loop
func (w *Worker) run() {
	defer w.wg.Done()

	interval := w.pool.pollInterval()
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		var job *Job
		if !w.pool.IsPaused() {
			job = w.queue.GetNext()
		}
		if job == nil {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(interval):
				continue
			}
		}

		w.processJob(job)
	}
}

// processJob handles a single analysis job
func (w *Worker) processJob(job *Job) {
	jobCtx, jobCancel := context.WithCancel(w.ctx)
	defer jobCancel()

	w.currentJobMu.Lock()
	w.currentJob = job
	w.jobCancel = jobCancel
	w.jobDone = make(chan struct{})
	w.currentJobMu.Unlock()

	defer func() {
		w.currentJobMu.Lock()
		w.currentJob = nil
		w.jobCancel = nil
		if w.jobDone != nil {
			close(w.jobDone)
			w.jobDone = nil
		}
		w.currentJobMu.Unlock()
	}()

	// First worker to call this wins
	if err := w.queue.StartJob(job.ID); err != nil {
		return
	}

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	logger.Info("Job started", "job_id", job.ID, "worker", w.id, "path", job.Path)

	result, err := w.analyzer.Analyze(jobCtx, job.Path)

	if jobCtx.Err() != nil {
		switch {
		case w.ctx.Err() != nil:
			// Shutdown or resize: leave running so it is requeued
			logger.Info("Job interrupted by shutdown", "job_id", job.ID)
		default:
			// User cancel. After Pause requeues, the job is already pending
			// and CancelJob moves it to cancelled only if still running.
			if current := w.queue.Get(job.ID); current != nil && current.Status == StatusRunning {
				logger.Info("Job cancelled", "job_id", job.ID)
				_ = w.queue.CancelJob(job.ID)
			}
		}
		return
	}

	if err != nil {
		logger.Error("Job failed", "job_id", job.ID, "path", job.Path, "error", err)
		_ = w.queue.FailJob(job.ID, err.Error())
		return
	}

	if w.pool.recorder != nil {
		if err := w.pool.recorder.Record(result); err != nil {
			logger.Warn("Failed to record analysis history", "job_id", job.ID, "error", err)
		}
	}

	logger.Info("Job complete",
		"job_id", job.ID,
		"percentage", result.Percentage,
		"grade", result.Grade,
		"fallback", result.Fallback,
		"elapsed_ms", result.ElapsedMs,
	)
	_ = w.queue.CompleteJob(job.ID, result)
}

// CancelCurrentJob cancels the job if it matches the given ID.
// Returns a channel that will be closed when the job finishes, or nil if job not found.
func (w *Worker) CancelCurrentJob(jobID string) <-chan struct{} {
	w.currentJobMu.Lock()
	defer w.currentJobMu.Unlock()

	if w.currentJob != nil && w.currentJob.ID == jobID && w.jobCancel != nil {
		w.jobCancel()
		return w.jobDone
	}
	return nil
}

// CancelAndStop cancels any current job and stops the worker immediately
// The worker context is cancelled first so the job observes a shutdown
// rather than a user cancel.
func (w *Worker) CancelAndStop() {
	if w.cancel != nil {
		w.cancel()
	}

	w.currentJobMu.Lock()
	if w.jobCancel != nil {
		w.jobCancel()
	}
	w.currentJobMu.Unlock()

	w.wg.Wait()
}
