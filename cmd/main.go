package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"flowbackend/config"
	"flowbackend/db"
	"flowbackend/handlers"
	"flowbackend/middleware"
	"flowbackend/ratelimit"
	"flowbackend/services/events"
	"flowbackend/services/oauth"
	"flowbackend/services/subscriptions"
	"flowbackend/services/tokenmanager"
	"flowbackend/services/txmanager"
	"flowbackend/services/webhooks"
)

const (
	webhookRetryInterval    = 5 * time.Second
	rateLimitCleanupEvery   = 5 * time.Minute
	expiredCodeCleanupEvery = 1 * time.Hour
)

func main() {
	if err := run(); err != nil {
		log.Printf("❌ Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize error alert middleware
	alertMiddleware := middleware.NewErrorAlertMiddleware(middleware.SlackAlertConfig{
		WebhookURL:  cfg.AlertConfig.SlackWebhookURL,
		Environment: cfg.Environment,
		AppName:     "flowbackend",
		LogsURL:     cfg.ServerLogsURL,
	})

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Initialize repositories with shared connection
	clientsRepo := db.NewPostgresOAuthClientsRepository(dbConn, cfg.DatabaseSchema)
	codesRepo := db.NewPostgresAuthorizationCodesRepository(dbConn, cfg.DatabaseSchema)
	tokensRepo := db.NewPostgresTokensRepository(dbConn, cfg.DatabaseSchema)
	subscriptionsRepo := db.NewPostgresSubscriptionsRepository(dbConn, cfg.DatabaseSchema)
	deliveriesRepo := db.NewPostgresWebhookDeliveriesRepository(dbConn, cfg.DatabaseSchema)

	// Initialize transaction manager
	txManager := txmanager.NewTransactionManager(dbConn)

	tokenManager := tokenmanager.NewTokenManager(cfg.OAuthConfig.JWTSecret, cfg.OAuthConfig.Issuer, tokensRepo)
	oauthService := oauth.NewOAuthService(clientsRepo, codesRepo, tokensRepo, tokenManager, txManager)
	subscriptionsService := subscriptions.NewSubscriptionsService(subscriptionsRepo)
	webhookService := webhooks.NewWebhookService(
		deliveriesRepo,
		subscriptionsRepo,
		cfg.WebhookConfig.SharedSecret,
		cfg.WebhookConfig.UserAgent,
		0,
	)
	defer webhookService.Stop()
	eventsService := events.NewEventsService(subscriptionsRepo, webhookService)

	limiter := ratelimit.NewLimiter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter, tokenManager)
	authMiddleware := middleware.NewAuthMiddleware(tokenManager)

	oauthHandler := handlers.NewOAuthHTTPHandler(oauthService, nil)
	subscriptionsHandler := handlers.NewSubscriptionsHTTPHandler(subscriptionsService)
	contactsHandler := handlers.NewContactsHTTPHandler(eventsService)

	// Create a new router
	router := mux.NewRouter()

	// Setup endpoints with the new router
	oauthHandler.SetupEndpoints(router, rateLimitMiddleware)
	subscriptionsHandler.SetupEndpoints(router, rateLimitMiddleware, authMiddleware)
	contactsHandler.SetupEndpoints(router, rateLimitMiddleware, authMiddleware)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.Printf("❌ Failed to write health check response: %v", err)
		}
	}).Methods("GET")

	// Webhook retry sweep
	retryTicker := time.NewTicker(webhookRetryInterval)
	go func() {
		for range retryTicker.C {
			_ = alertMiddleware.WrapBackgroundTask("ProcessWebhookRetries", func() error {
				return webhookService.ProcessRetries(context.Background())
			})()
		}
	}()
	defer retryTicker.Stop()

	// Periodic cleanup of rate-limit entries and expired authorization codes
	cleanupTicker := time.NewTicker(rateLimitCleanupEvery)
	go func() {
		for range cleanupTicker.C {
			if removed := limiter.Cleanup(); removed > 0 {
				log.Printf("🧹 Rate limiter cleanup removed %d stale entries", removed)
			}
		}
	}()
	defer cleanupTicker.Stop()

	codeCleanupTicker := time.NewTicker(expiredCodeCleanupEvery)
	go func() {
		for range codeCleanupTicker.C {
			_ = alertMiddleware.WrapBackgroundTask("DeleteExpiredAuthorizationCodes", func() error {
				removed, err := codesRepo.DeleteExpiredAuthorizationCodes(context.Background())
				if err != nil {
					return err
				}
				if removed > 0 {
					log.Printf("🧹 Removed %d expired authorization codes", removed)
				}
				return nil
			})()
		}
	}()
	defer codeCleanupTicker.Stop()

	// Setup CORS middleware
	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Setup and handle graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           alertMiddleware.HTTPMiddleware(c.Handler(router)),
		ReadHeaderTimeout: 30 * time.Second,
	}

	return handleGracefulShutdown(server)
}

func handleGracefulShutdown(server *http.Server) error {
	// Channel to listen for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("✅ Listening on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-stop
	log.Printf("🛑 Shutdown signal received, cleaning up...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
		return err
	}

	log.Printf("✅ Server stopped gracefully")
	return nil
}
