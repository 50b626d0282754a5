package market

import (
	"hash/fnv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// defaultSeeds are the synthetic starting prices when none are configured
var defaultSeeds = map[domain.Symbol]float64{
	"BTC":  60000000,
	"ETH":  4000000,
	"XRP":  700,
	"SOL":  200000,
	"DOGE": 200,
	"ADA":  600,
}

type syntheticSeries struct {
	open float64
	last float64
	high float64
	low  float64
	acc  float64
}

// syntheticGenerator produces bounded random walks per symbol.
// Only the stream's event loop touches it.
type syntheticGenerator struct {
	seeds   map[domain.Symbol]float64
	maxStep float64
	rnd     Rand
	series  map[domain.Symbol]*syntheticSeries
}

func newSyntheticGenerator(seeds map[domain.Symbol]float64, maxStep float64, rnd Rand) *syntheticGenerator {
	merged := make(map[domain.Symbol]float64, len(defaultSeeds)+len(seeds))
	for k, v := range defaultSeeds {
		merged[k] = v
	}
	for k, v := range seeds {
		if v > 0 {
			merged[domain.NormalizeSymbol(string(k))] = v
		}
	}
	return &syntheticGenerator{
		seeds:   merged,
		maxStep: maxStep,
		rnd:     rnd,
		series:  make(map[domain.Symbol]*syntheticSeries),
	}
}

// seedFor returns the configured seed, or a stable pseudo-price in [1000, 100000)
func (g *syntheticGenerator) seedFor(symbol domain.Symbol) float64 {
	if v, ok := g.seeds[symbol]; ok {
		return v
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return float64(1000 + h.Sum32()%99000)
}

// next advances the walk for symbol. The first call for a symbol returns its seed.
func (g *syntheticGenerator) next(symbol domain.Symbol, now time.Time) domain.Tick {
	s, ok := g.series[symbol]
	if !ok {
		seed := g.seedFor(symbol)
		s = &syntheticSeries{open: seed, last: seed, high: seed, low: seed}
		g.series[symbol] = s
	} else {
		step := (g.rnd.Float64()*2 - 1) * g.maxStep
		price := s.last * (1 + step)
		if price <= 0 {
			price = s.last
		}
		s.last = price
		if price > s.high {
			s.high = price
		}
		if price < s.low {
			s.low = price
		}
	}
	s.acc += s.last * (1 + g.rnd.Float64())

	rate := 0.0
	if s.open > 0 {
		rate = (s.last - s.open) / s.open
	}
	change := domain.ChangeEven
	switch {
	case rate > 0:
		change = domain.ChangeRise
	case rate < 0:
		change = domain.ChangeFall
	}

	return domain.Tick{
		ReceivedAt:       now,
		Symbol:           symbol,
		Change:           change,
		TradePrice:       decimal.NewFromFloat(s.last).Round(8),
		HighPrice:        decimal.NewFromFloat(s.high).Round(8),
		LowPrice:         decimal.NewFromFloat(s.low).Round(8),
		AccTradePrice24h: decimal.NewFromFloat(s.acc).Round(2),
		SignedChangeRate: rate,
	}
}
