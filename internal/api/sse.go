package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/logger"
)

// sseKeepAlive is how often an idle stream gets a comment frame so proxies
// do not drop the connection.
const sseKeepAlive = 15 * time.Second

// sseWriter frames values as named server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) send(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// JobStream handles GET /api/jobs/stream?job=<id>
// Every frame is named after its jobs.JobEvent type. With job set, only
// events about that job are sent and the init frame lists just that job.
func (h *Handler) JobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	jobID := r.URL.Query().Get("job")
	if jobID != "" && h.queue.Get(jobID) == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Subscribe before the snapshot so no event falls between the two
	eventCh := h.queue.Subscribe()
	defer h.queue.Unsubscribe(eventCh)

	snapshot := h.queue.GetAll()
	if jobID != "" {
		snapshot = []*jobs.Job{h.queue.Get(jobID)}
	}

	stream := &sseWriter{w: w, flusher: flusher}
	if err := stream.send("init", map[string]interface{}{
		"type":   "init",
		"jobs":   snapshot,
		"stats":  h.queue.Stats(),
		"paused": h.workerPool.IsPaused(),
	}); err != nil {
		logger.Debug("Failed to write initial stream state", "error", err)
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if err := stream.comment("keepalive"); err != nil {
				return
			}
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if jobID != "" && (event.Job == nil || event.Job.ID != jobID) {
				continue
			}
			if err := stream.send(event.Type, event); err != nil {
				logger.Debug("Job stream closed", "error", err)
				return
			}
		}
	}
}
