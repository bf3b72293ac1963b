package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"mosaic/internal/store"
	"mosaic/pkg/api"
)

// GetRunLogs handles GET /runs/{id}/logs.
// Entries are returned oldest first; after_id pages through them.
func (h *Handlers) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := pathRunID(r)
	if !ok {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	limit := 1000 // default limit
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 10000 {
			limit = parsed
		}
	}

	var afterID int64 = 0
	if after := query.Get("after_id"); after != "" {
		if parsed, err := strconv.ParseInt(after, 10, 64); err == nil {
			afterID = parsed
		}
	}

	if _, err := h.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Run not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to fetch run", http.StatusInternalServerError)
		return
	}

	logs, err := h.store.GetLogs(ctx, runID, afterID, limit)
	if err != nil {
		h.httpError(w, "Failed to fetch logs", http.StatusInternalServerError)
		return
	}

	apiLogs := make([]api.LogEntry, len(logs))
	for i, log := range logs {
		apiLogs[i] = api.LogEntry{
			ID:          log.ID,
			Timestamp:   log.Timestamp,
			Action:      log.Action,
			StationCode: log.StationCode,
			BinCode:     log.BinCode,
		}
	}

	h.respondJson(w, http.StatusOK, api.GetLogsResponse{Logs: apiLogs})
}
