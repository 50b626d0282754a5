package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/clients/wallet"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/config"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/market"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/observer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:  t.TempDir(),
		LogLevel: "info",
		Feed: config.FeedConfig{
			Mode:                config.FeedModeSynthetic,
			MarketPrefix:        "KRW",
			ReconnectDelay:      time.Second,
			MaxReconnectDelay:   time.Second,
			SyntheticInterval:   time.Hour,
			SyntheticMaxStep:    0.01,
			SyntheticSeeds:      map[string]float64{"btc": 60000000},
			TickEpsilon:         0.001,
			TickPersistInterval: time.Minute,
		},
		Portfolio: config.PortfolioConfig{
			TopN:            4,
			HoldingsRefresh: "@every 1m",
		},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.ClientDataDB)
	assert.NotNil(t, container.ClientDataRepo)
	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.Engine)
	assert.NotNil(t, container.Scheduler)
	assert.IsType(t, &wallet.StaticProvider{}, container.Wallet)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "client_data.db"))

	names := make([]string, 0)
	for _, job := range jobs.All() {
		names = append(names, job.Name())
	}
	assert.ElementsMatch(t, []string{"holdings_refresh", "tick_persist", "client_data_cleanup", "check_wal_checkpoints", "check_databases"}, names)

	for _, job := range jobs.All() {
		assert.NoError(t, job.Run(), job.Name())
	}
}

func TestWire_TickPersistDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.TickPersistInterval = 0

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.Nil(t, jobs.TickPersist)
	assert.Len(t, jobs.All(), 4)
}

func TestWire_InvalidHoldingsSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Portfolio.HoldingsRefresh = "not a schedule"

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire_WalletSelection(t *testing.T) {
	t.Run("wallet api", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer api.Close()

		cfg := testConfig(t)
		cfg.Wallet.APIURL = api.URL
		container, _, err := Wire(cfg, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Close() })
		assert.IsType(t, &wallet.Client{}, container.Wallet)
	})

	t.Run("holdings file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Wallet.HoldingsFile = filepath.Join(cfg.DataDir, "holdings.json")
		require.NoError(t, os.WriteFile(cfg.Wallet.HoldingsFile, []byte(`{
			"coins":[{"ticker":"BTC","coinName":"Bitcoin","holdingQuantity":0.01,"holdingPrice":500000}],
			"cash":100000
		}`), 0o644))

		container, _, err := Wire(cfg, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Close() })

		holdings, err := container.Wallet.Holdings(context.Background())
		require.NoError(t, err)
		require.Len(t, holdings, 1)
		assert.Equal(t, domain.Symbol("BTC"), holdings[0].Symbol)
	})

	t.Run("missing holdings file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Wallet.HoldingsFile = filepath.Join(cfg.DataDir, "missing.json")
		_, _, err := Wire(cfg, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.FallbackAfterFailures = 3
	cfg.DevMode = true

	ec := EngineConfig(cfg)
	assert.Equal(t, market.ModeSynthetic, ec.Stream.Mode)
	assert.Equal(t, "KRW", ec.Stream.MarketPrefix)
	assert.Equal(t, map[domain.Symbol]float64{"BTC": 60000000}, ec.Stream.SyntheticSeeds)
	assert.Equal(t, 3, ec.FallbackAfterFailures)
	assert.Equal(t, 4, ec.TopN)
	assert.True(t, ec.DevMode)
}

func TestWire_EngineObservesSyntheticFeed(t *testing.T) {
	cfg := testConfig(t)
	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	got := make(chan observer.View, 16)
	sub, err := container.Engine.Observe(context.Background(), []domain.Symbol{"BTC"}, func(v observer.View) {
		select {
		case got <- v:
		default:
		}
	})
	require.NoError(t, err)
	defer sub.Release()

	require.Eventually(t, func() bool {
		v, ok := sub.View()
		return ok && len(v.LatestTicks) == 1
	}, 2*time.Second, 5*time.Millisecond)
}
