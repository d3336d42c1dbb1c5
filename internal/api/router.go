package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerAPIRoutes registers all API endpoints on the given mux
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	// Browse and one-off scoring
	mux.HandleFunc("GET /api/browse", h.Browse)
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	mux.HandleFunc("GET /api/advice", h.Advice)

	// Job management
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("POST /api/jobs", h.CreateJobs)
	mux.HandleFunc("GET /api/jobs/stream", h.JobStream)
	mux.HandleFunc("POST /api/jobs/clear", h.ClearQueue)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.CancelJob)
	mux.HandleFunc("POST /api/jobs/{id}/retry", h.RetryJob)

	// Queue control (stop/resume)
	mux.HandleFunc("POST /api/queue/pause", h.PauseQueue)
	mux.HandleFunc("POST /api/queue/resume", h.ResumeQueue)

	// History
	mux.HandleFunc("GET /api/history", h.ListHistory)
	mux.HandleFunc("DELETE /api/history", h.PurgeHistory)
	mux.HandleFunc("GET /api/history/stats", h.HistoryStats)
	mux.HandleFunc("GET /api/history/export", h.ExportHistory)
	mux.HandleFunc("GET /api/history/{id}", h.GetHistory)
	mux.HandleFunc("DELETE /api/history/{id}", h.DeleteHistory)

	// Configuration
	mux.HandleFunc("GET /api/config", h.GetConfig)
	mux.HandleFunc("PUT /api/config", h.UpdateConfig)

	// Misc
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("POST /api/cache/clear", h.ClearCache)
}

// NewRouter creates a new HTTP router with all API endpoints and /metrics
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, h)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("mediagrade API - see /api/jobs, /api/history and /metrics\n"))
	})

	return mux
}
