package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gwlsn/mediagrade/internal/media"
	"github.com/gwlsn/mediagrade/internal/store"
)

const defaultHistoryLimit = 100

// ListHistory handles GET /api/history?limit=N&type=image|video
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	var (
		records []*store.Record
		err     error
	)
	switch mediaType := media.Type(r.URL.Query().Get("type")); mediaType {
	case "":
		records, err = h.history.ListRecords(limit)
	case media.TypeImage, media.TypeVideo:
		records, err = h.history.ListRecordsByType(mediaType, limit)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid media type %q", mediaType))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// GetHistory handles GET /api/history/{id}
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := historyID(w, r)
	if !ok {
		return
	}

	rec, err := h.history.GetRecord(id)
	if err != nil {
		writeError(w, historyErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DeleteHistory handles DELETE /api/history/{id}
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := historyID(w, r)
	if !ok {
		return
	}

	if err := h.history.DeleteRecord(id); err != nil {
		writeError(w, historyErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PurgeHistory handles DELETE /api/history?older_than_days=N
// Without older_than_days, all=true is required to wipe the table.
func (h *Handler) PurgeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		deleted int
		err     error
	)
	switch raw := q.Get("older_than_days"); {
	case raw != "":
		days, convErr := strconv.Atoi(raw)
		if convErr != nil || days < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid older_than_days %q", raw))
			return
		}
		deleted, err = h.history.DeleteRecordsOlderThan(time.Now().AddDate(0, 0, -days))
	case q.Get("all") == "true":
		deleted, err = h.history.DeleteAllRecords()
	default:
		writeError(w, http.StatusBadRequest, "older_than_days or all=true required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
		"message": fmt.Sprintf("Deleted %d records", deleted),
	})
}

// HistoryStats handles GET /api/history/stats
func (h *Handler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.history.HistoryStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ExportHistory handles GET /api/history/export
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="mediagrade-history.json"`)
	if _, err := store.ExportHistory(h.history, w); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func historyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid history ID %q", raw))
		return 0, false
	}
	return id, true
}

func historyErrorStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
