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
	"github.com/redis/go-redis/v9"

	"github.com/campusgate/campusgate-backend/internal/verification/capture"
	"github.com/campusgate/campusgate-backend/internal/verification/client"
	"github.com/campusgate/campusgate-backend/internal/verification/events"
	"github.com/campusgate/campusgate-backend/internal/verification/handler"
	"github.com/campusgate/campusgate-backend/internal/verification/repository"
	"github.com/campusgate/campusgate-backend/internal/verification/service"
	"github.com/campusgate/campusgate-backend/internal/verification/session"
	"github.com/campusgate/campusgate-backend/internal/verification/token"
	"github.com/campusgate/campusgate-backend/pkg/config"
	"github.com/campusgate/campusgate-backend/pkg/database"
	"github.com/campusgate/campusgate-backend/pkg/httputil"
	"github.com/campusgate/campusgate-backend/pkg/logger"
	"github.com/campusgate/campusgate-backend/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("verification-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("verification-service", cfg.Server.Environment)
	log.Info().Msg("starting Verification Service")

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

	// Connect to Redis for session snapshots
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	snapshots := session.NewRedisStore(redisClient, cfg.Redis.Namespace, cfg.Capture.SessionTTL)

	// Initialize event publisher
	publisher, err := events.NewVerificationEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize collaborators
	auditRepo := repository.NewAuditRepository(db)
	recognizer := capture.NewOCRRecognizer(&cfg.OCR)
	portal := client.NewPortalClient(&cfg.Portal, log)
	tokens := token.NewManager(&cfg.JWT)

	// Initialize services
	verificationService := service.NewVerificationService(cfg, recognizer, snapshots, portal, auditRepo, publisher, log)
	defer verificationService.Shutdown()

	// Initialize handlers
	verificationHandler := handler.NewVerificationHandler(verificationService, auditRepo, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for the portal frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "verification-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"redis":    redisHealth(r.Context(), redisClient),
		})
	})

	// Verification API (recovery token required)
	r.Route("/api/v1/verification", func(r chi.Router) {
		r.Use(handler.RequireRecoveryToken(tokens))
		verificationHandler.Routes(r)
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

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func redisHealth(ctx context.Context, client *redis.Client) map[string]string {
	if err := client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "unhealthy", "error": err.Error()}
	}
	return map[string]string{"status": "healthy"}
}
