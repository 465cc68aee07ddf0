// Command dashboard-api serves paginated indexer data, derived statistics
// and CSV exports for the dashboard views.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/indexer-dashboard/pkg/cache"
	"github.com/Sternrassler/indexer-dashboard/pkg/client"
	"github.com/Sternrassler/indexer-dashboard/pkg/config"
	"github.com/Sternrassler/indexer-dashboard/pkg/fetch"
	"github.com/Sternrassler/indexer-dashboard/pkg/logging"
	"github.com/Sternrassler/indexer-dashboard/pkg/pagination"
	"github.com/Sternrassler/indexer-dashboard/pkg/ratelimit"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Pretty = cfg.LogPretty
	logging.Setup(logCfg)
	logger := logging.NewLogger("dashboard-api")

	sources, err := cfg.Sources()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load sources")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rate limit state is shared through Redis when configured
	var (
		store       ratelimit.Store
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		store = ratelimit.NewRedisStore(redisClient)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	}
	tracker := ratelimit.NewTracker(store, logging.NewLogger("ratelimit"))

	clientCfg := client.DefaultConfig(cfg.UpstreamBaseURL, cfg.UserAgent)
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.RateLimit = cfg.RateLimit
	clientCfg.Burst = cfg.Burst
	clientCfg.Tracker = tracker
	indexer, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create indexer client")
	}

	pages := cache.New(cache.Options{TTL: cfg.CacheTTL, Capacity: cfg.CacheCapacity})

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Timeout = cfg.RequestTimeout
	fetchCfg.MaxAttempts = cfg.MaxRetries
	registry, err := fetch.NewRegistry(sources, indexer, pages, fetchCfg, logging.NewLogger("fetch"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create source registry")
	}

	batch := pagination.DefaultConfig()
	batch.MaxConcurrency = max(1, min(batch.MaxConcurrency, cfg.Burst))

	srv := &server{
		registry: registry,
		tracker:  tracker,
		redis:    redisClient,
		batch:    batch,
		prefetch: 1,
		logger:   logger,
	}

	rf := &refresher{registry: registry, timeout: time.Minute, logger: logging.NewLogger("refresh")}
	scheduler, err := rf.schedule(cfg.RefreshSchedule)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule refresh")
	}
	if scheduler != nil {
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Server shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("upstream", cfg.UpstreamBaseURL).
		Int("sources", len(sources)).
		Dur("cache_ttl", cfg.CacheTTL).
		Str("refresh", cfg.RefreshSchedule).
		Msg("Starting dashboard API")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}
