// Package main is the entry point for the Atlas indexer and query API.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/permaweb/atlas/internal/config"
	"github.com/permaweb/atlas/internal/database"
	"github.com/permaweb/atlas/internal/gateway"
	"github.com/permaweb/atlas/internal/handler"
	"github.com/permaweb/atlas/internal/indexer"
	"github.com/permaweb/atlas/internal/middleware"
	"github.com/permaweb/atlas/internal/repository"
)

func main() {
	// Setup structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting Atlas",
		slog.Int("port", cfg.Server.Port),
		slog.String("gateway", cfg.Gateway.Primary),
	)

	// Connect to ClickHouse
	db, err := database.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to clickhouse: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to ClickHouse")

	// Create the database and tables if missing
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), time.Minute)
	if err := db.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	cancelSchema()
	logger.Info("Schema ready")

	store := repository.New(db.DB())
	gw := gateway.New(cfg.Gateway.Primary, cfg.Gateway.Mainnet)

	// Start the indexer workers; they stop with the process.
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisor := indexer.NewSupervisor(*cfg, gw, store, logger)
	go func() {
		if err := supervisor.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("supervisor stopped", slog.Any("error", err))
		}
	}()

	// Setup router
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Timeout(30 * time.Second))

	// Health check endpoints
	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(db))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Query API
	r.Mount("/", handler.New(store, gw, cfg, logger).Routes())

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-runCtx.Done()
	logger.Info("Shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}

// healthHandler returns a simple health check that always succeeds if the
// server is running.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// readyHandler returns a readiness check that verifies the ClickHouse
// connection.
func readyHandler(db *database.ClickHouse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","component":"clickhouse"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","clickhouse":"connected"}`))
	}
}
