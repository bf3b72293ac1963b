// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"mosaic/internal/clock"
	"mosaic/internal/gateway"
	"mosaic/internal/simulation"
	"mosaic/internal/store"
	"mosaic/internal/worker"
	"mosaic/pkg/api"

	"github.com/go-playground/validator/v10"
)

// StoreFactory combines the persistence the handlers read from.
type StoreFactory interface {
	Ping(ctx context.Context) error
	store.RunStore
	store.LogStore
}

// Runner starts and tracks scheduler runs.
type Runner interface {
	Start(ctx context.Context, plan *simulation.Plan) (*worker.Run, error)
	Stop(runID *int64) (worker.Status, error)
	Status(runID *int64) (worker.Status, error)
	ActiveRun(server int) (worker.Status, bool)
	Backend(server int) (*worker.Backend, error)
}

// HealthProber checks the external services of a server.
type HealthProber interface {
	StorageManager(ctx context.Context, sm *gateway.StorageManager, zone string) gateway.Probe
	TrafficControl(ctx context.Context, tc *gateway.TrafficControl) gateway.Probe
}

// HandlerConfig holds settings for the handlers.
type HandlerConfig struct {
	// ZoneName selects the order dispatcher setting probed on the SM.
	ZoneName string
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    StoreFactory
	runner   Runner
	prober   HealthProber
	config   HandlerConfig
	validate *validator.Validate
}

// New creates a new Handlers instance.
func New(s StoreFactory, runner Runner, prober HealthProber, config HandlerConfig) *Handlers {
	if config.ZoneName == "" {
		config.ZoneName = "Zone1"
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handlers{
		store:    s,
		runner:   runner,
		prober:   prober,
		config:   config,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func (h *Handlers) httpErrorDetails(w http.ResponseWriter, message string, code int, err error) {
	h.respondJson(w, code, api.ErrorResponse{
		Error:   message,
		Code:    strconv.Itoa(code),
		Details: err.Error(),
	})
}

// optionalRunID reads the run_id query parameter. A missing value yields nil.
func optionalRunID(r *http.Request) (*int64, bool) {
	raw := r.URL.Query().Get("run_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// pathRunID reads the {id} path value.
func pathRunID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}
