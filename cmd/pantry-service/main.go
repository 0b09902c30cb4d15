package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/internal/pantry/consumers"
	"github.com/larder/larder-backend/internal/pantry/events"
	"github.com/larder/larder-backend/internal/pantry/handler"
	"github.com/larder/larder-backend/internal/pantry/service"
	"github.com/larder/larder-backend/pkg/auth"
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
)

const serviceName = "pantry-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Pantry Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the item store (file or SQL, optionally mirrored to Redis)
	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open pantry store")
	}
	defer stores.Close()

	// Connect to RabbitMQ
	var rmq *messaging.RabbitMQ
	var publisher *events.PantryEventPublisher
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}

		publisher, err = events.NewPantryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("rabbitmq disabled, pantry events will not be published")
	}

	// Initialize ledger and service
	l := ledger.New(ledger.WithEditExpiryPolicy(ledger.EditExpiryPolicy(cfg.Ledger.EditExpiryPolicy)))
	pantryService := service.NewPantryService(
		l,
		stores.store,
		publisher,
		cfg.Ledger.ExpiringWithinDays,
		cfg.Ledger.QueueTimeout,
		log,
	)
	if err := pantryService.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start pantry service")
	}
	defer pantryService.Close()

	// Start recognition consumer
	if rmq != nil {
		recognitionConsumer, err := consumers.NewRecognitionConsumer(rmq, pantryService, stores.redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create recognition consumer")
		}
		if err := recognitionConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start recognition consumer")
		}
	}

	// Start expiry scheduler
	scanner := service.NewExpiryScanner(pantryService, publisher, log)
	scheduler := service.NewExpiryScheduler(scanner, cfg.Ledger.ScanInterval, log)
	scheduler.Start(ctx)

	// Initialize handlers
	itemHandler := handler.NewItemHandler(pantryService, log)
	batchHandler := handler.NewBatchHandler(pantryService, log)

	if cfg.Server.IsProductionLike() && slices.Contains(cfg.CORS.AllowedOrigins, "*") {
		log.Warn().Msg("cors allows any origin with credentials in " + cfg.Server.Environment)
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"store":   pantryService.StoreName(),
		}
		for name, status := range stores.Health(r.Context()) {
			health[name] = status
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	verifier := auth.NewVerifier(&cfg.JWT)
	if !verifier.Enabled() {
		log.Warn().Str("environment", cfg.Server.Environment).Msg("jwt secret not set, API requests are not authenticated")
	}
	r.Route("/api/v1/pantry", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		handler.Routes(itemHandler, batchHandler)(r)
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

	// Stop background work before draining HTTP
	scheduler.Stop()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
