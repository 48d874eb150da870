package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scribeflow/scribeflow/backend/internal/adapters/cache"
	"github.com/scribeflow/scribeflow/backend/internal/adapters/database"
	"github.com/scribeflow/scribeflow/backend/internal/adapters/events"
	"github.com/scribeflow/scribeflow/backend/internal/adapters/providers/llm"
	"github.com/scribeflow/scribeflow/backend/internal/api/handlers"
	"github.com/scribeflow/scribeflow/backend/internal/api/middleware"
	"github.com/scribeflow/scribeflow/backend/internal/api/routes"
	"github.com/scribeflow/scribeflow/backend/internal/application/services"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/postgres"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/clients/redis"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
)

func main() {

	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration

	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var shutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Printf("Warning: Failed to set up OpenTelemetry: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Error shutting down OpenTelemetry: %v", err)
				}
			}()
			log.Println("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()
	log.Println("PostgreSQL client initialized successfully")

	// Initialize Redis client
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to initialize Redis client: %v", err)
		// Continue without Redis - catalog caching and live updates degrade gracefully
	} else {
		defer redisClient.Close()
		log.Println("Redis client initialized successfully")
	}

	var cacheProvider providers.CacheProvider
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	}

	// Initialize event bus for real-time updates
	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
		log.Println("Event bus initialized successfully")
	} else {
		log.Println("Event bus disabled (Redis not available)")
	}

	// Initialize adapters

	modelRegistryAdapter := database.NewModelRegistryAdapter(pgClient)
	creditLedgerAdapter := database.NewCreditLedgerAdapter(pgClient)
	transcriptionAdapter := database.NewTranscriptionAdapter(pgClient)
	errorLogAdapter := database.NewErrorLogAdapter(pgClient)
	jobAdapter := database.NewJobAdapter(pgClient)

	// Initialize vendor adapters; vendors without an API key are skipped
	factory := llm.NewFactory(cfg.Providers)
	log.Printf("LLM providers configured: %v", factory.Providers())

	// Initialize services

	registryService := services.NewRegistryService(
		modelRegistryAdapter,
		cacheProvider,
		factory,
		cfg.Enhancer.CatalogCacheSeconds,
	)
	billingService := services.NewBillingService(creditLedgerAdapter, cfg.Billing)
	estimator := services.NewTokenEstimator(cfg.Tokenizer)
	planner := services.NewTokenBudgetPlanner(estimator, cfg.Enhancer)

	orchestrator := services.NewOrchestrator(services.OrchestratorDeps{
		Registry:       registryService,
		Billing:        billingService,
		Estimator:      estimator,
		Planner:        planner,
		Chunker:        services.NewChunker(),
		Factory:        factory,
		Transcriptions: transcriptionAdapter,
		ErrorLog:       errorLogAdapter,
		Jobs:           jobAdapter,
		Bus:            eventBus,
	}, cfg.Enhancer)

	// Start background workers that drain the job queue
	dispatcher := services.NewDispatcher(orchestrator, jobAdapter, cfg.Enhancer)
	dispatcher.Start(ctx)
	log.Printf("Dispatcher started with %d workers", cfg.Enhancer.Workers)

	// Initialize handlers

	enhancementHandler := handlers.NewEnhancementHandler(orchestrator)

	modelHandler := handlers.NewModelHandler(registryService)

	var sseHandler *handlers.SSEHandler
	if eventBus != nil {
		sseHandler = handlers.NewSSEHandler(eventBus)
	}

	// Initialize cache middleware
	var cacheMiddleware *middleware.CacheMiddleware
	if cacheProvider != nil {
		cacheMiddleware = middleware.NewCacheMiddleware(cacheProvider)
		log.Println("Cache middleware initialized successfully")
	}

	// Set up router

	router := routes.NewRouter(
		enhancementHandler,
		modelHandler,
		sseHandler,
		cacheMiddleware,
		metrics,
	)

	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE streaming
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	// Stop workers; in-flight jobs finish or fail, queued jobs wait for restart
	cancel()
	dispatcher.Wait()

	// Close event bus
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Printf("Error closing event bus: %v", err)
		}
	}

	log.Println("Server stopped")
}
