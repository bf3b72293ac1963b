// Package main is the entry point for the mosaic controller.
// The controller serves the run control API and executes scheduler runs in
// the same process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mosaic/internal/config"
	"mosaic/internal/controller"
	"mosaic/internal/controller/handlers"
	"mosaic/internal/gateway"
	"mosaic/internal/logger"
	"mosaic/internal/observability"
	"mosaic/internal/store/postgres"
	"mosaic/internal/worker"
)

// runDrainTimeout bounds how long shutdown waits for runs to finish their
// exit path.
const runDrainTimeout = 30 * time.Second

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: mosaic.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		version, err := postgres.Migrate(store.DB())
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Migrations completed successfully (version %d)", version)
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "mosaic-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	servers := make(map[int]worker.Endpoints, len(cfg.Servers))
	for n, s := range cfg.Servers {
		servers[n] = worker.Endpoints{
			StorageManagerURL: s.StorageManagerURL,
			TrafficControlURL: s.TrafficControlURL,
		}
	}

	agent := worker.New(store, worker.AgentConfig{
		Servers:             servers,
		RequestTimeout:      cfg.RequestTimeout,
		TickInterval:        cfg.TickInterval,
		CheckInterval:       cfg.CheckInterval,
		LayerFetchDelay:     cfg.LayerFetchDelay,
		SubmitDelay:         cfg.SubmitDelay,
		MaxInventoryRetries: cfg.MaxInventoryRetries,
	}, slogger)

	if err := observability.RegisterActiveRuns(agent.ActiveRuns); err != nil {
		log.Printf("Failed to register active runs metric: %v", err)
	}

	prober := gateway.NewProber(cfg.HealthTimeout, gateway.BreakerSettings{}, slogger)
	h := handlers.New(store, agent, prober, handlers.HandlerConfig{
		ZoneName: cfg.ZoneName,
		Logger:   slogger,
	})

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, controller.Options{
		OperatorToken:   cfg.OperatorToken,
		CreateRateLimit: cfg.CreateRateLimit,
		CreateRateBurst: cfg.CreateRateBurst,
		Metrics:         metricsHandler,
		Logger:          slogger,
	})

	go func() {
		slogger.Info("Mosaic controller starting", "addr", addr, "servers", cfg.ServerNumbers())
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), runDrainTimeout)
	defer cancelDrain()
	if err := agent.Shutdown(drainCtx); err != nil {
		log.Printf("Runs did not finish in time: %v", err)
	}
	log.Println("Controller exited properly")
}
