package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	catalogevents "github.com/stockflow/stockflow-backend/internal/catalog/events"
	cataloghandler "github.com/stockflow/stockflow-backend/internal/catalog/handler"
	catalogrepo "github.com/stockflow/stockflow-backend/internal/catalog/repository"
	catalogservice "github.com/stockflow/stockflow-backend/internal/catalog/service"
	"github.com/stockflow/stockflow-backend/internal/stock/consumers"
	"github.com/stockflow/stockflow-backend/internal/stock/events"
	"github.com/stockflow/stockflow-backend/internal/stock/handler"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/cache"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Connect to Redis (reorder suggestion cache). The cache is an
	// optimization; the service runs degraded without it.
	stockCache, err := cache.New(&cfg.Redis, log)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, reorder suggestions uncached")
		stockCache = nil
	} else {
		defer stockCache.Close()
	}

	// Initialize event publishers
	catalogPublisher, err := catalogevents.NewCatalogEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog event publisher")
	}
	stockPublisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stock event publisher")
	}

	// Initialize repositories
	productRepo := catalogrepo.NewProductRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	levelRepo := repository.NewStockLevelRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	tenantRepo := repository.NewTenantRepository(db)

	// Initialize services
	catalogService := catalogservice.NewCatalogService(productRepo, catalogPublisher, log)
	reconciler := catalogservice.NewReconciler(db, productRepo, catalogPublisher, log)
	stockService := service.NewStockService(db, productRepo, locationRepo, levelRepo, batchRepo, movementRepo, stockPublisher, stockCache, &cfg.Stock, log)

	// Initialize handlers
	productHandler := cataloghandler.NewProductHandler(catalogService, log)
	reconcileHandler := cataloghandler.NewReconcileHandler(reconciler, catalogService, log)
	locationHandler := handler.NewLocationHandler(stockService, log)
	stockHandler := handler.NewStockHandler(stockService, log)
	batchHandler := handler.NewBatchHandler(stockService, log)
	allocationHandler := handler.NewAllocationHandler(stockService, log)
	advisorHandler := handler.NewAdvisorHandler(stockService, log)

	// Start stock event consumer
	stockConsumer, err := consumers.NewStockEventConsumer(rmq, levelRepo, stockCache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stock event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stockConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start stock event consumer")
	}

	// Start expiry sweeper
	sweeper := service.NewExpirySweeper(tenantRepo, batchRepo, stockPublisher, &cfg.Stock, log)
	go sweeper.Run(ctx)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Tenant-Slug", "X-Tenant-Schema", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		}
		if stockCache != nil {
			health["redis"] = stockCache.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.TenantMiddleware) // Extract tenant context from headers

		// Catalog routes
		r.Route("/catalog", func(r chi.Router) {
			r.Route("/products", func(r chi.Router) {
				r.Get("/", productHandler.List)
				r.Post("/", productHandler.Create)
				r.Get("/sku/{sku}", productHandler.GetBySKU)
				r.Get("/{id}", productHandler.Get)
				r.Put("/{id}", productHandler.Update)
				r.Post("/{id}/deactivate", productHandler.Deactivate)
				r.Delete("/{id}", productHandler.Delete)
			})
			r.Post("/reconcile", reconcileHandler.Reconcile)
			r.Get("/reconcile/runs", reconcileHandler.ListRuns)
		})

		// Location routes
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", locationHandler.List)
			r.Post("/", locationHandler.Create)
			r.Get("/{id}", locationHandler.Get)
			r.Put("/{id}", locationHandler.Update)
			r.Get("/{id}/stock", stockHandler.ListByLocation)
		})

		// Stock ledger routes
		r.Route("/stock", func(r chi.Router) {
			r.Post("/movements", stockHandler.RecordMovement)
			r.Post("/transfers", stockHandler.Transfer)
			r.Route("/{productID}/{locationID}", func(r chi.Router) {
				r.Get("/", stockHandler.Get)
				r.Put("/thresholds", stockHandler.UpdateThresholds)
				r.Get("/history", stockHandler.History)
				r.Post("/reserve", stockHandler.Reserve)
				r.Post("/release", stockHandler.Release)
				r.Get("/suggestion", advisorHandler.Suggest)
			})
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Post("/", batchHandler.Receive)
			r.Get("/{id}", batchHandler.Get)
			r.Put("/{id}/status", batchHandler.SetStatus)
		})

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/propose", allocationHandler.Propose)
			r.Post("/", allocationHandler.Commit)
		})

		// Reorder advisor
		r.Get("/reorder-suggestions", advisorHandler.List)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers and the sweeper
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
