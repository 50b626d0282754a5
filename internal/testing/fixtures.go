package testing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// FixtureTime is the receive time used by fixture ticks
var FixtureTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// NewHoldingFixtures returns a small portfolio: BTC and ETH with known cost bases
func NewHoldingFixtures() []domain.Holding {
	return []domain.Holding{
		{
			Symbol:         "BTC",
			Name:           "Bitcoin",
			Quantity:       decimal.RequireFromString("0.01"),
			CostBasisTotal: decimal.RequireFromString("500000"),
		},
		{
			Symbol:         "ETH",
			Name:           "Ethereum",
			Quantity:       decimal.RequireFromString("0.5"),
			CostBasisTotal: decimal.RequireFromString("2000000"),
		},
	}
}

// NewTick builds a ticker tick for symbol at price
func NewTick(symbol domain.Symbol, price string, rate float64) domain.Tick {
	change := domain.ChangeEven
	switch {
	case rate > 0:
		change = domain.ChangeRise
	case rate < 0:
		change = domain.ChangeFall
	}
	p := decimal.RequireFromString(price)
	return domain.Tick{
		ReceivedAt:       FixtureTime,
		Symbol:           symbol,
		Change:           change,
		TradePrice:       p,
		HighPrice:        p,
		LowPrice:         p,
		SignedChangeRate: rate,
	}
}

// NewTickFixtures returns ticks matching NewHoldingFixtures
func NewTickFixtures() map[domain.Symbol]domain.Tick {
	return map[domain.Symbol]domain.Tick{
		"BTC": NewTick("BTC", "60000000", 0.012),
		"ETH": NewTick("ETH", "4000000", -0.004),
	}
}
