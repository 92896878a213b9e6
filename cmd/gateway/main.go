package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/strayline/llm-gateway/internal/gateway/archive"
	"github.com/strayline/llm-gateway/internal/gateway/auth"
	"github.com/strayline/llm-gateway/internal/gateway/handlers"
	"github.com/strayline/llm-gateway/internal/gateway/providers"
	"github.com/strayline/llm-gateway/internal/gateway/ratelimit"
	"github.com/strayline/llm-gateway/internal/gateway/registry"
	"github.com/strayline/llm-gateway/internal/gateway/usage"
	"github.com/strayline/llm-gateway/internal/shared/config"
	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/logging"
	"github.com/strayline/llm-gateway/internal/shared/redis"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	logging.Setup(cfg.LogLevel, cfg.Env, cfg.LogFile)
	log.WithFields(log.Fields{
		"port":    cfg.Port,
		"env":     cfg.Env,
		"version": version,
	}).Info("starting llm-gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the key and usage store
	store, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer store.Close()

	// Rate limit counters: shared via Redis when configured, otherwise
	// process-local.
	var counters ratelimit.CounterStore
	if cfg.RedisURL != "" {
		redisClient, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
		counters = redisClient
		log.Info("rate limit counters backed by redis")
	} else {
		counters = ratelimit.NewMemoryCounters()
		log.Warn("rate limit counters are in-memory; limits are per instance")
	}

	// Model catalog
	reg := registry.Default()
	if cfg.ModelsFile != "" {
		reg, err = registry.LoadFile(cfg.ModelsFile)
		if err != nil {
			log.WithError(err).WithField("path", cfg.ModelsFile).Fatal("failed to load model catalog")
		}
	}
	log.WithField("models", len(reg.List())).Info("model catalog loaded")

	dispatcher := providers.NewDispatcher(cfg.RuntimeEndpoint, cfg.RuntimeAPIKey)
	validator := auth.NewValidator(store, cfg.DefaultRateLimit)
	limiter := ratelimit.New(counters)

	tracker := usage.NewTracker(store, cfg.UsageRetentionDays)
	tracker.StartRetentionSweep(ctx)

	// Request archiving is optional.
	var archiver *archive.Archiver
	if cfg.ArchiveEndpoint != "" {
		archiver, err = archive.New(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveUseSSL)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize request archive")
		}
		log.WithField("bucket", cfg.ArchiveBucket).Info("request archiving enabled")
	}

	if cfg.AdminAPIKey == "" {
		log.Warn("ADMIN_API_KEY not set; admin endpoints are disabled")
	}

	router := handlers.NewRouter(handlers.Deps{
		Config:     cfg,
		Registry:   reg,
		Dispatcher: dispatcher,
		Validator:  validator,
		Limiter:    limiter,
		Tracker:    tracker,
		Keys:       store,
		Archiver:   archiver,
		Version:    version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	log.Info("server stopped")
}
