package handlers

import (
	"net/http"
	"strconv"

	"mosaic/internal/pareto"
	"mosaic/pkg/api"
)

// Pareto handles GET /pareto.
// It returns the per-layer bin probabilities for a p/q rule, e.g. 80/20.
func (h *Handlers) Pareto(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	layers, err := strconv.Atoi(query.Get("layers"))
	if err != nil || layers < 1 {
		h.httpError(w, "Invalid layers", http.StatusBadRequest)
		return
	}
	p, err := strconv.ParseFloat(query.Get("p"), 64)
	if err != nil {
		h.httpError(w, "Invalid p", http.StatusBadRequest)
		return
	}
	q, err := strconv.ParseFloat(query.Get("q"), 64)
	if err != nil {
		h.httpError(w, "Invalid q", http.StatusBadRequest)
		return
	}

	dist, err := pareto.LayerProbabilities(layers, p, q)
	if err != nil {
		h.httpErrorDetails(w, "Invalid pareto parameters", http.StatusBadRequest, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.ParetoResponse{
		Layers:        layers,
		P:             p,
		Q:             q,
		Alpha:         dist.Alpha,
		X0:            dist.X0,
		TopLayers:     min(int(dist.X0), layers),
		TopShare:      dist.TopShare(),
		Probabilities: dist.Probabilities,
	})
}
