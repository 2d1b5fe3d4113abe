package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"gorm.io/gorm/logger"

	"github.com/alarmdeck/alarmdeck/internal/alarms/adapters"
	"github.com/alarmdeck/alarmdeck/internal/config"
	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/handlers"
	"github.com/alarmdeck/alarmdeck/internal/jobs"
	"github.com/alarmdeck/alarmdeck/internal/middleware"
	"github.com/alarmdeck/alarmdeck/internal/services"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().Msg("starting alarmdeck")

	if cfg.AdminPassword == "" {
		log.Fatal().Msg("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash admin password")
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/webhook/*",
			"/ws/*",
			"/auth/login",
		},
	})
	log.Info().Str("user", cfg.AdminUsername).Msg("JWT authentication enabled")

	// Database
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}
	if err := database.InitializeDefaults(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database defaults")
	}
	db := database.GetDB()
	log.Info().Msg("database ready")

	// Fingerprint cache: redis when configured, in-memory otherwise
	var fpCache services.FingerprintCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		fpCache = services.NewRedisFingerprintCache(client)
		log.Info().Msg("using redis fingerprint cache")
	} else {
		fpCache = services.NewMemoryFingerprintCache()
		log.Info().Msg("using in-memory fingerprint cache")
	}

	// Services
	var notifier services.Notifier = services.NewLogNotifier()
	if cfg.SlackToken != "" {
		notifier = services.NewSlackNotifier(slack.New(cfg.SlackToken), cfg.SlackChannel, notifier)
		log.Info().Str("channel", cfg.SlackChannel).Msg("slack notifications enabled")
	}
	oncall := services.NewDBOncallResolver(db)
	lifecycleService := services.NewLifecycleService(db, notifier, oncall)
	escalationService := services.NewEscalationService(db, oncall, notifier, lifecycleService)
	lifecycleService.SetEscalator(escalationService)

	dedupService := services.NewDedupService(db, fpCache)
	noiseService := services.NewNoiseService(db)
	ingestService := services.NewIngestService(db, dedupService, noiseService, lifecycleService)
	statsService := services.NewStatsService(db)

	// Escalation policy seed file
	if cfg.PolicyFile != "" {
		if err := services.LoadPolicyFile(db, cfg.PolicyFile); err != nil {
			log.Fatal().Err(err).Str("path", cfg.PolicyFile).Msg("failed to apply escalation policy file")
		}
	}

	// Handlers
	eventsHandler := handlers.NewEventsHandler()
	ingestService.SetBroadcaster(eventsHandler)

	webhookHandler := handlers.NewWebhookHandler(db, ingestService)
	webhookHandler.RegisterAdapter(adapters.NewAlertmanagerAdapter())
	webhookHandler.RegisterAdapter(adapters.NewGrafanaAdapter())
	webhookHandler.RegisterAdapter(adapters.NewZabbixAdapter())
	webhookHandler.RegisterAdapter(adapters.NewGenericAdapter())

	httpHandler := handlers.NewHTTPHandler(webhookHandler)
	apiHandler := handlers.NewAPIHandler(db, dedupService, noiseService, lifecycleService, escalationService, statsService)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	eventsHandler.SetupRoutes(mux)

	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Background jobs
	stop := make(chan struct{})

	sweeper := jobs.NewLifecycleSweeper(lifecycleService)
	go sweeper.Start(time.Duration(cfg.SweepIntervalSeconds)*time.Second, stop)

	escalationLoop := jobs.NewEscalationLoop(escalationService)
	go escalationLoop.Start(time.Duration(cfg.EscalationPollSeconds)*time.Second, stop)

	log.Info().
		Str("webhook", fmt.Sprintf("http://localhost:%d/webhook/alarm/{source_uuid}", cfg.HTTPPort)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.HTTPPort)).
		Msg("alarmdeck is running")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("received shutdown signal, cleaning up")
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down HTTP server")
	}

	log.Info().Msg("shutdown complete")
}
