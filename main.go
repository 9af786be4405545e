package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"

	"stillness-api/internal/config"
	"stillness-api/internal/handler"
	"stillness-api/internal/middleware"
	"stillness-api/internal/ratelimit"
	"stillness-api/internal/security"
	"stillness-api/internal/service"
	"stillness-api/internal/store"
	"stillness-api/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	server         *http.Server
	sessionService service.SessionService
	eventLog       *security.EventLog
	redisClient    *goredis.Client
	log            *logger.Logger
	mu             sync.Mutex
	closed         bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	// Stop session service (writes the final snapshot)
	if r.sessionService != nil {
		if err := r.sessionService.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop session service")
			errs = append(errs, fmt.Errorf("session service shutdown: %w", err))
		}
	}

	if r.eventLog != nil {
		if err := r.eventLog.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close security event log")
			errs = append(errs, fmt.Errorf("event log close: %w", err))
		}
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errs = append(errs, fmt.Errorf("Redis close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":         cfg.Port,
		"log_level":    cfg.LogLevel,
		"environment":  cfg.Environment,
		"data_file":    cfg.DataFile,
		"security_log": cfg.SecurityLog,
	}).Info("Starting stillness API server")

	// Security event log and violation tracking
	eventLog, err := security.NewEventLog(cfg.SecurityLog, log, nil)
	if err != nil {
		log.WithError(err).Fatal("Failed to open security event log")
	}

	alerter := security.NewAlerter(cfg, log, nil)
	tracker := security.NewTracker(eventLog, alerter, log, nil)

	// Rate limiter storage: in-process by default, Redis when configured
	var redisClient *goredis.Client
	var limiterStorage ratelimit.Storage
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to parse Redis URL")
		}
		redisClient = goredis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		cancel()

		limiterStorage = ratelimit.NewRedisStorage(redisClient, ratelimit.Window)
		log.Info("Rate limiter using Redis sliding window storage")
	} else {
		limiterStorage = ratelimit.NewMemoryStorage(ratelimit.Window)
	}
	limiter := ratelimit.New(limiterStorage, ratelimit.MaxRequestsPerWindow, nil)

	// Session store and service
	sessionStore := store.New()
	sessionService := service.NewSessionService(sessionStore, tracker, log, cfg.DataFile, nil)

	ctx := context.Background()
	if err := sessionService.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start session service")
	}

	// Setup router
	router := setupRouter(cfg, log, sessionService, limiter, tracker)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Create resources manager for cleanup
	resources := &Resources{
		server:         server,
		sessionService: sessionService,
		eventLog:       eventLog,
		redisClient:    redisClient,
		log:            log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(cfg *config.Config, log *logger.Logger, sessionService service.SessionService, limiter *ratelimit.Limiter, tracker *security.Tracker) *chi.Mux {
	r := chi.NewRouter()

	corsConfig := &middleware.CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	sessionHandler := handler.NewSessionHandler(sessionService, limiter, tracker, log)
	sessionHandler.RegisterRoutes(r)

	r.NotFound(handler.NotFound)

	log.Info("Router configured successfully")
	return r
}
