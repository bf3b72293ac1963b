package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"mosaic/internal/report"
	"mosaic/internal/store"
	"mosaic/internal/worker"
	"mosaic/pkg/api"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ListRuns handles GET /runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 50
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	runs, err := h.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.httpError(w, "Failed to fetch runs", http.StatusInternalServerError)
		return
	}

	out := make([]api.RunResponse, len(runs))
	for i, run := range runs {
		out[i] = api.RunResponse{
			ID:             run.ID,
			Name:           run.Name,
			ServerNumber:   run.ServerNumber,
			DurationString: run.DurationString,
			StartTime:      run.StartTime,
			EndTime:        run.EndTime,
			State:          h.runState(run),
		}
	}

	h.respondJson(w, http.StatusOK, api.ListRunsResponse{Runs: out})
}

// runState combines the persisted timestamps with what the runner holds.
func (h *Handlers) runState(run store.SimulationRun) string {
	if run.EndTime != nil {
		return api.RunStateCompleted
	}
	id := run.ID
	if status, err := h.runner.Status(&id); err == nil {
		return string(status.State)
	}
	if run.StartTime != nil {
		// Started by an earlier controller process that never recorded an end.
		return api.RunStateFailed
	}
	return api.RunStateUnknown
}

// GetRunSummary handles GET /runs/{id}/summary.
// With format=xlsx the summary is returned as a spreadsheet.
func (h *Handlers) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := pathRunID(r)
	if !ok {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	normalOnly := false
	if v := query.Get("normal_only"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.httpError(w, "Invalid normal_only", http.StatusBadRequest)
			return
		}
		normalOnly = parsed
	}

	summary, err := report.Generate(ctx, h.store, runID, normalOnly)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.httpError(w, "Run not found", http.StatusNotFound)
		case errors.Is(err, report.ErrNotStarted):
			h.httpError(w, "Run has not started", http.StatusConflict)
		default:
			h.config.Logger.ErrorContext(ctx, "Failed to build summary", "run_id", runID, "error", err)
			h.httpError(w, "Failed to build summary", http.StatusInternalServerError)
		}
		return
	}

	switch query.Get("format") {
	case "", "json":
		h.respondJson(w, http.StatusOK, summary)
	case "xlsx":
		data, err := report.BuildSummaryXLSX(summary)
		if err != nil {
			h.httpError(w, "Failed to render summary", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%d-summary.xlsx"`, runID))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	default:
		h.httpError(w, "Unsupported format", http.StatusBadRequest)
	}
}

// activeRun reports a server's running run for the health endpoint.
func (h *Handlers) activeRun(server int) api.BackendHealth {
	status, ok := h.runner.ActiveRun(server)
	if !ok || status.State != worker.StateRunning {
		return api.BackendHealth{}
	}
	return api.BackendHealth{
		SimulationRunning: true,
		SimulationName:    status.Name,
		RunID:             status.RunID,
	}
}
