package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"mosaic/internal/worker"
	"mosaic/pkg/api"
)

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// It checks if the service is ready to accept traffic (e.g., DB is connected).
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.httpError(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}

// SystemHealth handles GET /system/health.
// Probe failures are reported in the body; the endpoint itself succeeds.
func (h *Handlers) SystemHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	server := 1
	if s := r.URL.Query().Get("server"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.httpError(w, "Invalid server number", http.StatusBadRequest)
			return
		}
		server = parsed
	}

	backend, err := h.runner.Backend(server)
	if err != nil {
		if errors.Is(err, worker.ErrUnknownServer) {
			h.httpError(w, "Unknown server number", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to resolve server", http.StatusInternalServerError)
		return
	}

	sm := h.prober.StorageManager(ctx, backend.StorageManager, h.config.ZoneName)
	tc := h.prober.TrafficControl(ctx, backend.TrafficControl)

	h.respondJson(w, http.StatusOK, api.SystemHealthResponse{
		ServerNumber:   server,
		Healthy:        sm.Reachable && sm.Active && tc.Reachable && tc.Error == "",
		StorageManager: api.ProbeResponse(sm),
		TrafficControl: api.ProbeResponse(tc),
		Backend:        h.activeRun(server),
	})
}
