// Package main is the entry point for the Kono market data and portfolio valuation service.
// It streams ticker prices, values the wallet holdings against them and serves the
// result over HTTP and Server-Sent Events.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/config"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/di"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/observer"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/server"
	"github.com/100-hours-a-week/7-team-kono-fe/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("feed_mode", cfg.Feed.Mode).
		Msg("Starting Kono valuation service")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Holdings are loaded inside Observe; an empty watch list follows the holdings
	watch := make([]domain.Symbol, 0, len(cfg.Feed.WatchSymbols))
	for _, s := range cfg.Feed.WatchSymbols {
		watch = append(watch, domain.NormalizeSymbol(s))
	}
	sub, err := container.Engine.Observe(context.Background(), watch, func(v observer.View) {
		log.Debug().
			Str("total_asset", v.Summary.TotalAsset.String()).
			Float64("total_profit_rate", v.Summary.TotalProfitRate).
			Int("pending", v.Summary.PendingCount).
			Uint64("cache_version", v.CacheVersion).
			Msg("Portfolio valued")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start market data subscription")
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		TopN:    cfg.Portfolio.TopN,
		Source:  sub,
		Bus:     container.EventBus,
		DB:      container.ClientDataDB,
		DataDir: cfg.DataDir,
	})
	srv.SetJobs(jobs.All()...)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()

	// persists the latest ticks, then releases the subscription
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close client data database")
	}

	log.Info().Msg("Server stopped")
}
