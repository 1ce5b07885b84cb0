package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/config"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/handlers"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/workers"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/database"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

func main() {
	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if len(cfg.APIKeys) == 0 {
		log.Fatal().Msg("No API keys configured (set YOUTUBE_API_KEYS)")
	}

	log.Info().Str("environment", cfg.Environment).Int("keys", len(cfg.APIKeys)).Msg("Starting collector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger persistence backend
	store, db, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger store")
	}
	if db != nil {
		defer db.Close()
	}

	ledger, err := quota.NewLedger(ctx, store, cfg.APIKeys, cfg.DailyQuota)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize quota ledger")
	}

	// Request pipeline: limiter -> client -> executor -> planner
	limiter, err := ytapi.NewRateLimiter(cfg.RedisURL, cfg.RateLimitPerMinute, "ytapi:rate_limit")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize rate limiter")
	}
	defer limiter.Close()

	client := ytapi.NewClient(limiter)
	executor := ytapi.NewExecutor(ledger, client)
	executor.SetMaxRetries(cfg.MaxRetries)
	planner := ytapi.NewPlanner(executor, ledger)

	// Background harvest of tracked channels
	harvester := workers.NewHarvester(planner, nil, cfg)
	go harvester.Start(ctx)

	// Operator-facing HTTP surface
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	quotaHandler := handlers.NewQuotaHandler(ledger, planner)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/quota/summary", quotaHandler.GetSummary)
		r.Get("/quota/afford", quotaHandler.GetAfford)
		r.Get("/quota/events", quotaHandler.GetEvents)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := ledger.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush quota ledger")
	}
	log.Info().Msg("Shutdown complete")
}

func buildStore(ctx context.Context, cfg *config.Config) (quota.Store, *database.DB, error) {
	switch cfg.LedgerStore {
	case "postgres":
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return quota.NewPostgresStore(db), db, nil
	case "memory":
		return quota.NewMemoryStore(), nil, nil
	default:
		store, err := quota.NewFileStore(cfg.LedgerPath)
		return store, nil, err
	}
}
