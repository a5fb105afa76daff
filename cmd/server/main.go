// Package main is the entry point for the nestegg portfolio server.
// It wires the price providers, the two-tier price cache, the portfolio
// ledger, and the background jobs, then serves the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nestegg-io/nestegg/internal/clientdata"
	"github.com/nestegg-io/nestegg/internal/clients/coingecko"
	"github.com/nestegg-io/nestegg/internal/clients/openexchange"
	"github.com/nestegg-io/nestegg/internal/clients/yahoo"
	"github.com/nestegg-io/nestegg/internal/config"
	"github.com/nestegg-io/nestegg/internal/database"
	"github.com/nestegg-io/nestegg/internal/modules/insights"
	insightshandlers "github.com/nestegg-io/nestegg/internal/modules/insights/handlers"
	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
	portfoliohandlers "github.com/nestegg-io/nestegg/internal/modules/portfolio/handlers"
	"github.com/nestegg-io/nestegg/internal/notify"
	"github.com/nestegg-io/nestegg/internal/pricing"
	"github.com/nestegg-io/nestegg/internal/reliability"
	"github.com/nestegg-io/nestegg/internal/retry"
	"github.com/nestegg-io/nestegg/internal/scheduler"
	"github.com/nestegg-io/nestegg/internal/server"
	"github.com/nestegg-io/nestegg/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting nestegg")

	// Databases: durable user state and the expendable price cache.
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	databases := []*database.DB{portfolioDB, cacheDB}
	for _, db := range databases {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Price plumbing: durable cache tier behind the memory cache, retry
	// policy, and one provider per asset class behind the router.
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	priceCache := pricing.NewCache(cacheRepo, cfg.PriceCacheTTL, log)

	priceRouter := pricing.NewRouter(priceCache, retry.DefaultPolicy(log), log)
	quoteClient := yahoo.NewClient(log)
	priceRouter.Register(pricing.ClassEquity, quoteClient)
	priceRouter.Register(pricing.ClassFund, quoteClient)
	priceRouter.Register(pricing.ClassCrypto, coingecko.NewClient(log))
	priceRouter.Register(pricing.ClassFiat, openexchange.NewClient(cfg.OpenExchangeRatesAppID, log))

	// Portfolio ledger with push notifications on large price moves.
	positionRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	tokenRepo := notify.NewTokenRepository(portfolioDB.Conn(), log)
	alerter := notify.NewPriceAlerter(notify.NewClient(log), tokenRepo, log)
	sessions := portfolio.NewSessionManager(positionRepo, priceRouter, alerter, log)

	// AI insights are optional. Without an API key the endpoints are absent.
	var insightsHandlers *insightshandlers.Handler
	if cfg.GeminiAPIKey != "" {
		generator, err := insights.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize insights generator, insights disabled")
		} else {
			insightsService := insights.NewService(generator, log)
			insightsHandlers = insightshandlers.NewHandler(insightsService, sessions, log)
			log.Info().Str("model", cfg.GeminiModel).Msg("Insights enabled")
		}
	}

	// Cloud backups are optional. Without credentials the data stays local.
	var backupService *reliability.BackupService
	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(context.Background(),
			cfg.Backup.Endpoint, cfg.Backup.Region, cfg.Backup.Bucket,
			cfg.Backup.AccessKey, cfg.Backup.SecretKey, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize object storage, backups disabled")
		} else {
			backupService = reliability.NewBackupService(s3Client, databases, cfg.DataDir, cfg.Backup.Retain, log)
			log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
		}
	}

	sched := scheduler.New(log)
	registerJob := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}
	registerJob("@every "+cfg.RefreshInterval.String(), scheduler.NewPriceRefreshJob(sessions, log))
	registerJob("0 4 * * *", clientdata.NewCleanupJob(cacheRepo, log))
	registerJob("0 2 * * *", reliability.NewMaintenanceJob(databases, log))
	if backupService != nil {
		registerJob(cfg.Backup.Schedule, scheduler.NewBackupJob(backupService.CreateAndUploadBackup, log))
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:               log,
		Cfg:               cfg,
		Databases:         databases,
		PriceRouter:       priceRouter,
		PortfolioHandlers: portfoliohandlers.NewHandler(sessions, log),
		InsightsHandlers:  insightsHandlers,
		Tokens:            tokenRepo,
		Backup:            backupService,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
