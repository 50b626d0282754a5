package observer

import (
	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/market"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/portfolio"
)

// View is one consistent valuation computed from a single cache snapshot
type View struct {
	LatestTicks     map[domain.Symbol]domain.Tick `json:"latest_ticks"`
	ValuedHoldings  []domain.ValuedHolding        `json:"valued_holdings"`
	Summary         portfolio.Summary             `json:"summary"`
	Buckets         []domain.AllocationBucket     `json:"buckets"`
	FeedState       market.State                  `json:"-"`
	Mode            market.Mode                   `json:"mode"`
	CacheVersion    uint64                        `json:"cache_version"`
	HoldingsVersion uint64                        `json:"holdings_version"`
}

// memoKey identifies the inputs a View was computed from
type memoKey struct {
	cacheVersion    uint64
	holdingsVersion uint64
}

func normalizeSymbols(symbols []domain.Symbol) []domain.Symbol {
	seen := make(map[domain.Symbol]struct{}, len(symbols))
	out := make([]domain.Symbol, 0, len(symbols))
	for _, s := range symbols {
		n := domain.NormalizeSymbol(string(s))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func symbolStrings(symbols []domain.Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = string(s)
	}
	return out
}
