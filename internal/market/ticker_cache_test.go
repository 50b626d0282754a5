package market

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

func tick(symbol string, price int64, rate float64) domain.Tick {
	return domain.Tick{
		Symbol:           domain.Symbol(symbol),
		TradePrice:       decimal.NewFromInt(price),
		SignedChangeRate: rate,
		Change:           domain.ChangeEven,
		ReceivedAt:       testNow,
	}
}

func TestTickerCache_FirstTickAlwaysAccepted(t *testing.T) {
	cache := NewTickerCache(DefaultEpsilon)

	assert.True(t, cache.Ingest(tick("BTC", 60000000, 0)))
	assert.True(t, cache.Ingest(tick("ETH", 0, 0)))
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, uint64(2), cache.Version())
}

func TestTickerCache_NoiseSuppression(t *testing.T) {
	testCases := []struct {
		name     string
		next     domain.Tick
		accepted bool
	}{
		{"identical", tick("BTC", 1000000, 0.01), false},
		{"price move below epsilon", tick("BTC", 1000999, 0.01), false},
		{"price move exactly epsilon", tick("BTC", 1001000, 0.01), false},
		{"price move above epsilon", tick("BTC", 1001001, 0.01), true},
		{"price drop above epsilon", tick("BTC", 998999, 0.01), true},
		{"rate move below epsilon", tick("BTC", 1000000, 0.0105), false},
		{"rate move above epsilon", tick("BTC", 1000000, 0.0125), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cache := NewTickerCache(DefaultEpsilon)
			require.True(t, cache.Ingest(tick("BTC", 1000000, 0.01)))
			before, version := cache.VersionedSnapshot()

			assert.Equal(t, tc.accepted, cache.Ingest(tc.next))

			after, newVersion := cache.VersionedSnapshot()
			if tc.accepted {
				assert.Equal(t, version+1, newVersion)
				assert.True(t, after["BTC"].TradePrice.Equal(tc.next.TradePrice))
			} else {
				assert.Equal(t, version, newVersion)
				assert.Equal(t, before, after)
			}
		})
	}
}

func TestTickerCache_ZeroPreviousPrice(t *testing.T) {
	cache := NewTickerCache(DefaultEpsilon)
	cache.Ingest(tick("NEW", 0, 0))

	assert.False(t, cache.Ingest(tick("NEW", 0, 0)))
	assert.True(t, cache.Ingest(tick("NEW", 1, 0)))
}

func TestTickerCache_SnapshotIsCopy(t *testing.T) {
	cache := NewTickerCache(DefaultEpsilon)
	cache.Ingest(tick("BTC", 100, 0))

	snap := cache.Snapshot()
	snap["ETH"] = tick("ETH", 1, 0)
	delete(snap, "BTC")

	_, ok := cache.Get("BTC")
	assert.True(t, ok)
	_, ok = cache.Get("ETH")
	assert.False(t, ok)
}

func TestTickerCache_RemoveAndRetain(t *testing.T) {
	cache := NewTickerCache(DefaultEpsilon)
	for _, s := range []string{"BTC", "ETH", "XRP", "SOL"} {
		cache.Ingest(tick(s, 100, 0))
	}

	assert.Equal(t, 1, cache.Remove("XRP", "DOGE"))
	assert.Equal(t, 0, cache.Remove("DOGE"))
	v := cache.Version()

	assert.Equal(t, 1, cache.Retain([]domain.Symbol{"BTC", "ETH"}))
	assert.Equal(t, v+1, cache.Version())
	assert.Equal(t, 2, cache.Len())

	assert.Equal(t, 0, cache.Retain([]domain.Symbol{"BTC", "ETH"}))
	assert.Equal(t, v+1, cache.Version())
}

func TestTickerCache_Seed(t *testing.T) {
	cache := NewTickerCache(DefaultEpsilon)
	cache.Ingest(tick("BTC", 200, 0))

	n := cache.Seed([]domain.Tick{tick("BTC", 100, 0), tick("ETH", 50, 0)})
	assert.Equal(t, 1, n)

	btc, _ := cache.Get("BTC")
	assert.True(t, btc.TradePrice.Equal(decimal.NewFromInt(200)))
	eth, ok := cache.Get("ETH")
	require.True(t, ok)
	assert.True(t, eth.TradePrice.Equal(decimal.NewFromInt(50)))
}

func TestTickerCache_NegativeEpsilonUsesDefault(t *testing.T) {
	cache := NewTickerCache(-1)
	cache.Ingest(tick("BTC", 1000000, 0))
	assert.False(t, cache.Ingest(tick("BTC", 1000500, 0)))
}

func TestTickerCache_ConcurrentAccess(t *testing.T) {
	cache := NewTickerCache(DefaultEpsilon)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 500; i++ {
			cache.Ingest(tick("BTC", i*1000, 0))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := cache.Snapshot()
				if btc, ok := snap["BTC"]; ok {
					assert.True(t, btc.TradePrice.IsPositive())
				}
			}
		}()
	}

	wg.Wait()
	btc, ok := cache.Get("BTC")
	require.True(t, ok)
	assert.True(t, btc.TradePrice.Equal(decimal.NewFromInt(500000)))
}
