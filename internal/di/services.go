package di

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/clientdata"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/clients/wallet"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/config"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/events"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/market"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/observer"
)

// InitializeServices creates repositories, clients and the valuation engine
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.ClientDataDB == nil {
		return fmt.Errorf("container with client data database is required")
	}

	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	walletProvider, err := newWalletProvider(cfg, container.ClientDataRepo, log)
	if err != nil {
		return err
	}
	container.Wallet = walletProvider

	container.Engine = observer.NewEngine(
		EngineConfig(cfg),
		walletProvider,
		observer.WithLogger(log),
		observer.WithEventManager(container.EventManager),
		observer.WithTickStore(container.ClientDataRepo),
	)

	log.Info().
		Str("feed_mode", cfg.Feed.Mode).
		Int("fallback_after_failures", cfg.Feed.FallbackAfterFailures).
		Msg("Valuation engine initialized")

	return nil
}

// EngineConfig maps application configuration onto the engine
func EngineConfig(cfg *config.Config) observer.Config {
	seeds := make(map[domain.Symbol]float64, len(cfg.Feed.SyntheticSeeds))
	for symbol, price := range cfg.Feed.SyntheticSeeds {
		seeds[domain.NormalizeSymbol(symbol)] = price
	}

	return observer.Config{
		Stream: market.StreamConfig{
			URL:               cfg.Feed.URL,
			Mode:              market.Mode(cfg.Feed.Mode),
			MarketPrefix:      cfg.Feed.MarketPrefix,
			ReconnectDelay:    cfg.Feed.ReconnectDelay,
			MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
			SyntheticInterval: cfg.Feed.SyntheticInterval,
			SyntheticMaxStep:  cfg.Feed.SyntheticMaxStep,
			SyntheticSeeds:    seeds,
		},
		TickEpsilon:           cfg.Feed.TickEpsilon,
		TopN:                  cfg.Portfolio.TopN,
		FallbackAfterFailures: cfg.Feed.FallbackAfterFailures,
		DevMode:               cfg.DevMode,
	}
}

// newWalletProvider picks the wallet API, a static holdings file, or an empty portfolio
func newWalletProvider(cfg *config.Config, repo *clientdata.Repository, log zerolog.Logger) (observer.WalletProvider, error) {
	switch {
	case cfg.Wallet.APIURL != "":
		log.Info().Str("url", cfg.Wallet.APIURL).Msg("Using wallet API for holdings")
		return wallet.NewClient(cfg.Wallet.APIURL, cfg.Wallet.APIToken, repo, log), nil

	case cfg.Wallet.HoldingsFile != "":
		provider, err := wallet.LoadStaticProvider(cfg.Wallet.HoldingsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load holdings file: %w", err)
		}
		log.Info().Str("file", cfg.Wallet.HoldingsFile).Msg("Using static holdings file")
		return provider, nil

	default:
		log.Warn().Msg("No wallet API or holdings file configured, portfolio is empty")
		return wallet.NewStaticProvider(nil, decimal.Zero), nil
	}
}
