package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/browse"
	"github.com/gwlsn/mediagrade/internal/config"
	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/logger"
	"github.com/gwlsn/mediagrade/internal/quality"
	"github.com/gwlsn/mediagrade/internal/store"
)

// analyzeTimeout bounds a synchronous POST /api/analyze call.
const analyzeTimeout = 2 * time.Minute

// Deps are the services a Handler serves over HTTP.
type Deps struct {
	Browser  *browse.Browser
	Queue    *jobs.Queue
	Pool     *jobs.WorkerPool
	Analyzer jobs.Analyzer
	Recorder jobs.Recorder // optional, records synchronous analyses
	History  store.HistoryStore
	Config   *config.Config
	CfgPath  string
}

// Handler provides HTTP API handlers
type Handler struct {
	browser    *browse.Browser
	queue      *jobs.Queue
	workerPool *jobs.WorkerPool
	analyzer   jobs.Analyzer
	recorder   jobs.Recorder
	history    store.HistoryStore

	cfgMu   sync.RWMutex // Guards cfg against concurrent PUT /api/config
	cfg     *config.Config
	cfgPath string
}

// NewHandler creates a new API handler
func NewHandler(d Deps) *Handler {
	return &Handler{
		browser:    d.Browser,
		queue:      d.Queue,
		workerPool: d.Pool,
		analyzer:   d.Analyzer,
		recorder:   d.Recorder,
		history:    d.History,
		cfg:        d.Config,
		cfgPath:    d.CfgPath,
	}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Browse handles GET /api/browse?path=...
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = h.browser.MediaRoot()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.browser.Browse(ctx, path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateJobsRequest is the request body for creating jobs
type CreateJobsRequest struct {
	Paths []string `json:"paths"`
}

// CreateJobs handles POST /api/jobs
// Responds immediately and discovers files in the background; jobs appear via SSE.
func (h *Handler) CreateJobs(w http.ResponseWriter, r *http.Request) {
	var req CreateJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "no paths provided")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "processing",
		"message": fmt.Sprintf("Processing %d paths in background...", len(req.Paths)),
	})

	go h.enqueue(req.Paths)
}

// enqueue walks paths and adds every media file found as a pending job.
func (h *Handler) enqueue(paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	files, err := h.browser.GetMediaFilesWithProgress(ctx, paths, h.queue.BroadcastProgress)
	if err != nil {
		logger.Error("Failed to collect media files", "paths", len(paths), "error", err)
		return
	}
	if len(files) == 0 {
		logger.Info("No media files found", "paths", len(paths))
		return
	}

	candidates := make([]jobs.Candidate, 0, len(files))
	for _, f := range files {
		candidates = append(candidates, jobs.Candidate{Path: f.Path, MediaType: f.MediaType, Size: f.Size})
	}
	added := h.queue.AddMultiple(candidates)
	logger.Info("Queued media files", "count", len(added))
}

// ListJobs handles GET /api/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.queue.GetAll(),
		"stats": h.queue.Stats(),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	job := h.queue.Get(id)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/jobs/{id}
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	job := h.queue.Get(id)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	// A running job is cancelled by its worker once the analysis returns
	if job.Status == jobs.StatusRunning && h.workerPool.CancelJob(id) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	if err := h.queue.CancelJob(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RetryJob handles POST /api/jobs/{id}/retry
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.queue.Retry(id)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, jobs.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ClearQueue handles POST /api/jobs/clear?status=...
// Without a status every non-running job is removed.
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	filter := jobs.Status(r.URL.Query().Get("status"))
	switch filter {
	case "", jobs.StatusPending, jobs.StatusComplete, jobs.StatusFailed, jobs.StatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot clear jobs with status %q", filter))
		return
	}

	count := h.queue.Clear(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": count,
		"message": fmt.Sprintf("Cleared %d jobs", count),
	})
}

// PauseQueue handles POST /api/queue/pause
func (h *Handler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	requeued := h.workerPool.Pause()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paused":   true,
		"requeued": requeued,
	})
}

// ResumeQueue handles POST /api/queue/resume
func (h *Handler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	h.workerPool.Unpause()
	writeJSON(w, http.StatusOK, map[string]interface{}{"paused": false})
}

// AnalyzeRequest is the request body for a synchronous analysis
type AnalyzeRequest struct {
	Path string `json:"path"`
}

// Analyze handles POST /api/analyze, scoring one file inside the media root.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}

	path, err := h.browser.Resolve(req.Path)
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()

	result, err := h.analyzer.Analyze(ctx, path)
	if err != nil {
		writeError(w, analyzeErrorStatus(err), err.Error())
		return
	}

	if h.recorder != nil {
		if err := h.recorder.Record(result); err != nil {
			logger.Warn("Failed to record analysis", "path", path, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func analyzeErrorStatus(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrUnsupportedMedia), errors.Is(err, analysis.ErrNotAFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quality.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Advice handles GET /api/advice?percentage=N
func (h *Handler) Advice(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("percentage")
	percentage, err := strconv.Atoi(raw)
	if err != nil || percentage < 0 || percentage > quality.MaxScore {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid percentage %q", raw))
		return
	}

	writeJSON(w, http.StatusOK, analysis.AdviceFor(percentage))
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"media_path":             h.cfg.MediaPath,
		"workers":                h.workerPool.WorkerCount(),
		"log_level":              h.cfg.LogLevel,
		"sample_stride":          h.cfg.SampleStride,
		"max_analysis_dimension": h.cfg.MaxAnalysisDimension,
		"fallback_score":         h.cfg.FallbackScore,
		"cache_enabled":          h.cfg.CacheEnabled,
		"history_retention_days": h.cfg.HistoryRetentionDays,
		"username":               h.cfg.Username,
		"paused":                 h.workerPool.IsPaused(),
	})
}

// UpdateConfigRequest is the request body for updating config
type UpdateConfigRequest struct {
	Workers              *int    `json:"workers,omitempty"`
	LogLevel             *string `json:"log_level,omitempty"`
	HistoryRetentionDays *int    `json:"history_retention_days,omitempty"`
	Username             *string `json:"username,omitempty"`
}

// UpdateConfig handles PUT /api/config
// Only fields that take effect without a restart can be changed.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Workers != nil && !jobs.IsValidWorkerCount(*req.Workers) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("workers must be between %d and %d", jobs.MinWorkers, jobs.MaxWorkers))
		return
	}
	if req.LogLevel != nil {
		switch *req.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			writeError(w, http.StatusBadRequest, "log_level must be one of debug, info, warn, error")
			return
		}
	}
	if req.HistoryRetentionDays != nil && *req.HistoryRetentionDays < 0 {
		writeError(w, http.StatusBadRequest, "history_retention_days cannot be negative")
		return
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	if req.Workers != nil {
		h.cfg.Workers = *req.Workers
		h.workerPool.Resize(*req.Workers)
	}
	if req.LogLevel != nil {
		h.cfg.LogLevel = *req.LogLevel
		logger.SetLevel(*req.LogLevel)
	}
	if req.HistoryRetentionDays != nil {
		h.cfg.HistoryRetentionDays = *req.HistoryRetentionDays
	}
	if req.Username != nil {
		h.cfg.Username = *req.Username
		if rec, ok := h.recorder.(*store.HistoryRecorder); ok {
			rec.SetUsername(*req.Username)
		}
	}

	// Persist config to disk
	if h.cfgPath != "" {
		if err := h.cfg.Save(h.cfgPath); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save config: %v", err))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue":   h.queue.Stats(),
		"workers": h.workerPool.WorkerCount(),
		"paused":  h.workerPool.IsPaused(),
	})
}

// ClearCache handles POST /api/cache/clear
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.browser.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

// RetentionDays returns the current history retention setting.
func (h *Handler) RetentionDays() int {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.cfg.HistoryRetentionDays
}
