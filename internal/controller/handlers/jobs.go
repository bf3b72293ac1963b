package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mosaic/internal/logger"
	"mosaic/internal/simulation"
	"mosaic/internal/worker"
	"mosaic/pkg/api"
)

const (
	messageStarted = "Job creation process has been started"
	messageStopped = "Job creation process has been stopped"
)

// CreateJobs handles POST /jobs/create.
// It validates the request, saves the run and starts the scheduler in the
// background.
func (h *Handlers) CreateJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.config.Logger)

	var req api.JobsCreationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.httpErrorDetails(w, "Invalid request", http.StatusBadRequest, err)
		return
	}

	plan, err := simulation.NewPlan(req)
	if err != nil {
		h.httpErrorDetails(w, "Invalid request", http.StatusBadRequest, err)
		return
	}

	if _, err := h.runner.Start(ctx, plan); err != nil {
		switch {
		case errors.Is(err, worker.ErrRunActive), errors.Is(err, worker.ErrServerBusy):
			h.httpErrorDetails(w, "Simulation already running", http.StatusConflict, err)
		case errors.Is(err, worker.ErrUnknownServer):
			h.httpErrorDetails(w, "Unknown server number", http.StatusBadRequest, err)
		case errors.Is(err, worker.ErrShuttingDown):
			h.httpError(w, "Controller is shutting down", http.StatusServiceUnavailable)
		default:
			log.ErrorContext(ctx, "Failed to start run", "run_id", plan.RunID, "error", err)
			h.httpError(w, "Failed to start simulation", http.StatusInternalServerError)
		}
		return
	}

	h.respondJson(w, http.StatusAccepted, api.CreateRunResponse{
		Message: messageStarted,
		RunID:   plan.RunID,
	})
}

// StopJobs handles POST /jobs/stop.
// The scheduler stops at its next tick.
func (h *Handlers) StopJobs(w http.ResponseWriter, r *http.Request) {
	runID, ok := optionalRunID(r)
	if !ok {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	if _, err := h.runner.Stop(runID); err != nil {
		h.httpError(w, "No active simulation", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, api.MessageResponse{Message: messageStopped})
}

// Status handles GET /status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	runID, ok := optionalRunID(r)
	if !ok {
		h.httpError(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	status, err := h.runner.Status(runID)
	if err != nil {
		h.httpError(w, "No simulation found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, api.StatusResponse{
		RunID:          status.RunID,
		Attempt:        status.Attempt,
		SimulationName: status.Name,
		ServerNumber:   status.ServerNumber,
		StartTime:      status.StartTime,
		StopRequested:  status.StopRequested,
		StopTime:       status.StopTime,
		State:          string(status.State),
		Error:          status.Error,
	})
}

// Time handles GET /time.
func (h *Handlers) Time(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.TimeResponse{
		CurrentTime: h.config.Clock.Now().Format("2006-01-02 15:04:05"),
	})
}
