// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mosaic/internal/controller/handlers"
	"mosaic/internal/controller/middleware"
)

// Options configures the routes of a Server.
type Options struct {
	// OperatorToken guards start and stop. Empty disables the check.
	OperatorToken string
	// CreateRateLimit is the requests per second allowed per client on
	// POST /jobs/create, with CreateRateBurst as the bucket size.
	CreateRateLimit float64
	CreateRateBurst int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      Routes(h, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Routes builds the controller's handler tree.
func Routes(h *handlers.Handlers, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	operator := middleware.RequireOperatorToken(opts.OperatorToken)
	limit := middleware.NewRateLimiter(opts.CreateRateLimit, opts.CreateRateBurst).Middleware()

	mux := http.NewServeMux()

	// Run control
	mux.Handle("POST /jobs/create", operator(limit(http.HandlerFunc(h.CreateJobs))))
	mux.Handle("POST /jobs/stop", operator(http.HandlerFunc(h.StopJobs)))
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /time", h.Time)

	// History
	mux.HandleFunc("GET /runs", h.ListRuns)
	mux.HandleFunc("GET /runs/{id}/logs", h.GetRunLogs)
	mux.HandleFunc("GET /runs/{id}/summary", h.GetRunSummary)

	mux.HandleFunc("GET /system/health", h.SystemHealth)
	mux.HandleFunc("GET /pareto", h.Pareto)

	// Probes
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return middleware.RequestID(opts.Logger)(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
