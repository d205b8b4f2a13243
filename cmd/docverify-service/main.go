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

	"github.com/docverify/docverify-backend/internal/docprocessing/handler"
	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/internal/docprocessing/orientation"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/processor"
	"github.com/docverify/docverify-backend/internal/docprocessing/service"
	"github.com/docverify/docverify-backend/internal/docprocessing/storage"
	"github.com/docverify/docverify-backend/pkg/config"
	"github.com/docverify/docverify-backend/pkg/httputil"
	"github.com/docverify/docverify-backend/pkg/logger"
	"github.com/docverify/docverify-backend/pkg/messaging"
)

const serviceName = "docverify-service"

func main() {
	// Load configuration with validation (fails fast when the model credential is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting DocVerify Service")

	// Model client
	client, err := modelclient.New(&cfg.Model, log.WithComponent("modelclient"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create model client")
	}

	// Connect to RabbitMQ when configured
	var rmq *messaging.RabbitMQ
	var publisher service.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = messaging.NewPublisher(rmq, cfg.RabbitMQ.Exchange, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Info().Msg("rabbitmq url not set, extraction events are disabled")
	}

	// Pipeline and drivers
	codec := imagecodec.New(cfg.Pipeline.JPEGQuality).WithMaxPixels(cfg.Pipeline.MaxImagePixels)
	pipe := pipeline.New(client, codec, pipeline.SettingsFromConfig(&cfg.Model, &cfg.Pipeline), log.WithComponent("pipeline"))
	registry := processor.NewRegistry(
		processor.NewLicenseProcessor(pipe, log),
		processor.NewPassportProcessor(pipe, log),
	)
	advisor := orientation.NewAdvisor(client, codec, orientation.SettingsFromConfig(&cfg.Model, &cfg.Pipeline), log.WithComponent("orientation"))

	store := storage.NewTempStorage(cfg.Storage.JobTTL)
	defer store.Close()

	// Initialize service and handler
	docService := service.NewService(registry, store, advisor, codec, publisher, cfg.Storage.TempDir, log)
	docHandler := handler.NewHandler(docService, cfg.Server.MaxUploadBytes, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"jobs":    store.Len(),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1/documents", docHandler.Routes)

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

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
