package market

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// DefaultEpsilon is the relative price move (and absolute change-rate move) below
// which a new tick is considered noise
const DefaultEpsilon = 0.001

// TickerCache holds the latest materially-different tick per symbol.
// One writer (the stream's tick handler) and many snapshot readers.
type TickerCache struct {
	mu      sync.RWMutex
	ticks   map[domain.Symbol]domain.Tick
	epsilon decimal.Decimal
	epsF    float64
	version uint64
}

// NewTickerCache creates a cache; a negative epsilon falls back to DefaultEpsilon
func NewTickerCache(epsilon float64) *TickerCache {
	if epsilon < 0 {
		epsilon = DefaultEpsilon
	}
	return &TickerCache{
		ticks:   make(map[domain.Symbol]domain.Tick),
		epsilon: decimal.NewFromFloat(epsilon),
		epsF:    epsilon,
	}
}

// Ingest stores the tick if it is the first for its symbol or differs materially
// from the cached one. It reports whether the cache changed.
func (c *TickerCache) Ingest(tick domain.Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.ticks[tick.Symbol]
	if ok && !c.material(prev, tick) {
		return false
	}

	c.ticks[tick.Symbol] = tick
	c.version++
	return true
}

// material reports |new-old| > old*eps or |newRate-oldRate| > eps
func (c *TickerCache) material(prev, next domain.Tick) bool {
	priceMove := next.TradePrice.Sub(prev.TradePrice).Abs()
	if priceMove.GreaterThan(prev.TradePrice.Mul(c.epsilon)) {
		return true
	}
	rateMove := next.SignedChangeRate - prev.SignedChangeRate
	if rateMove < 0 {
		rateMove = -rateMove
	}
	return rateMove > c.epsF
}

// Seed loads last-known ticks without the noise filter, e.g. on warm start.
// Symbols already present keep their live tick.
func (c *TickerCache) Seed(ticks []domain.Tick) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	seeded := 0
	for _, t := range ticks {
		if _, ok := c.ticks[t.Symbol]; ok {
			continue
		}
		c.ticks[t.Symbol] = t
		seeded++
	}
	if seeded > 0 {
		c.version++
	}
	return seeded
}

// Snapshot returns a point-in-time copy of the cache
func (c *TickerCache) Snapshot() map[domain.Symbol]domain.Tick {
	snap, _ := c.VersionedSnapshot()
	return snap
}

// VersionedSnapshot returns a copy together with the version it reflects
func (c *TickerCache) VersionedSnapshot() (map[domain.Symbol]domain.Tick, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[domain.Symbol]domain.Tick, len(c.ticks))
	for k, v := range c.ticks {
		snap[k] = v
	}
	return snap, c.version
}

// Get returns the cached tick for a symbol
func (c *TickerCache) Get(symbol domain.Symbol) (domain.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	return t, ok
}

// Remove drops entries for unsubscribed symbols
func (c *TickerCache) Remove(symbols ...domain.Symbol) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, s := range symbols {
		if _, ok := c.ticks[s]; ok {
			delete(c.ticks, s)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	return removed
}

// Retain drops every entry whose symbol is not in keep
func (c *TickerCache) Retain(keep []domain.Symbol) int {
	wanted := make(map[domain.Symbol]struct{}, len(keep))
	for _, s := range keep {
		wanted[s] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for s := range c.ticks {
		if _, ok := wanted[s]; !ok {
			delete(c.ticks, s)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	return removed
}

// Version increases whenever the cache content changes
func (c *TickerCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of cached symbols
func (c *TickerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}
