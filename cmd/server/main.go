package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelldo/papertrader/internal/clients/yahoo"
	"github.com/avelldo/papertrader/internal/config"
	"github.com/avelldo/papertrader/internal/database"
	"github.com/avelldo/papertrader/internal/modules/accounts"
	"github.com/avelldo/papertrader/internal/modules/portfolio"
	"github.com/avelldo/papertrader/internal/modules/trading"
	"github.com/avelldo/papertrader/internal/quotes"
	"github.com/avelldo/papertrader/internal/scheduler"
	"github.com/avelldo/papertrader/internal/server"
	"github.com/avelldo/papertrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := logger.New(logger.Config{Level: "error"})
		errLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting paper trader")

	// Ledger store
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Quote gateway: the executor quotes live, the valuation path goes
	// through the TTL cache.
	yahooClient := yahoo.NewClient(log)
	quoteCache := quotes.NewCache(yahooClient, cfg.QuoteCacheTTL, log)
	if err := quoteCache.Restore(cfg.QuoteCachePath); err != nil {
		log.Warn().Err(err).Msg("Failed to restore quote snapshot")
	}

	// Repositories
	accountRepo := accounts.NewRepository(db.Conn(), cfg.StartingBalance, log)
	positionRepo := trading.NewPositionRepository(db.Conn(), log)
	transactionRepo := trading.NewTransactionRepository(db.Conn(), log)

	// Core services
	executor := trading.NewExecutor(db, yahooClient, accountRepo, positionRepo, transactionRepo, log)
	valuator := portfolio.NewValuator(positionRepo, accountRepo, quoteCache, cfg.QuoteTimeout, log)

	// Background jobs
	sched := scheduler.New(log)
	refreshJob := quotes.NewRefreshJob(quoteCache, positionRepo, cfg.QuoteTimeout, log)
	if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register quote refresh job")
	}
	maintenanceJob := scheduler.NewMaintenanceJob(db, quoteCache, cfg.QuoteCachePath, log)
	if err := sched.AddJob("@every 6h", maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Log:       log,
		Accounts:  accounts.NewHandlers(accountRepo, log),
		Trading:   trading.NewHandlers(executor, transactionRepo, log),
		Portfolio: portfolio.NewHandlers(valuator, quoteCache, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := quoteCache.Snapshot(cfg.QuoteCachePath); err != nil {
		log.Warn().Err(err).Msg("Failed to write quote snapshot")
	}

	log.Info().Msg("Server stopped")
}
