// Package observer exposes the market data and valuation pipeline as subscriptions.
// Each subscription owns a market stream and a ticker cache; holdings and cash are
// shared by the engine and refreshed from the wallet provider.
package observer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/events"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/market"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/portfolio"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/scheduler"
)

const (
	moduleName     = "observer"
	refreshTimeout = 15 * time.Second
)

// ErrComputation is reported when valuation panics outside dev mode
var ErrComputation = errors.New("portfolio computation failed")

// ErrReleased is returned by operations on a released subscription
var ErrReleased = errors.New("subscription released")

// WalletProvider supplies holdings and cash
type WalletProvider interface {
	Holdings(ctx context.Context) ([]domain.Holding, error)
	Cash(ctx context.Context) (decimal.Decimal, error)
}

// TickStore persists last known ticks for warm start
type TickStore interface {
	SaveTicks(ticks map[domain.Symbol]domain.Tick) error
	LoadTicks() ([]domain.Tick, error)
}

// Config configures the engine
type Config struct {
	Stream      market.StreamConfig
	TickEpsilon float64
	TopN        int
	// FallbackAfterFailures swaps a live stream for a synthetic one after this many
	// consecutive connection failures. Zero disables the swap.
	FallbackAfterFailures int
	// DevMode re-raises panics from the valuation stage instead of reporting them
	DevMode bool
}

// Option customises an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "observer").Logger() }
}

// WithEventManager publishes engine events
func WithEventManager(m *events.Manager) Option {
	return func(e *Engine) { e.events = m }
}

// WithTickStore enables warm start and tick persistence
func WithTickStore(store TickStore) Option {
	return func(e *Engine) { e.tickStore = store }
}

// WithStreamOptions passes options to every market stream the engine creates
func WithStreamOptions(opts ...market.StreamOption) Option {
	return func(e *Engine) { e.streamOpts = append(e.streamOpts, opts...) }
}

// Engine creates subscriptions and keeps the shared holdings state
type Engine struct {
	cfg        Config
	wallet     WalletProvider
	tickStore  TickStore
	events     *events.Manager
	log        zerolog.Logger
	streamOpts []market.StreamOption

	// replaceable in tests
	aggregate func([]domain.Holding, map[domain.Symbol]domain.Tick, decimal.Decimal) portfolio.Summary
	bucketize func([]domain.ValuedHolding, decimal.Decimal, int) []domain.AllocationBucket

	mu              sync.RWMutex
	holdings        []domain.Holding
	cash            decimal.Decimal
	fingerprint     string
	holdingsVersion uint64
	loaded          bool

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}
}

// NewEngine creates an engine. wallet may be nil, in which case holdings are empty.
func NewEngine(cfg Config, wallet WalletProvider, opts ...Option) *Engine {
	if cfg.TopN <= 0 {
		cfg.TopN = portfolio.DefaultTopN
	}
	e := &Engine{
		cfg:       cfg,
		wallet:    wallet,
		log:       zerolog.Nop(),
		aggregate: portfolio.Aggregate,
		bucketize: portfolio.Bucketize,
		cash:      decimal.Zero,
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe subscribes fn to valuation views for symbols. An empty symbol list follows
// the symbols of the current holdings. fn runs once with the initial view and again
// whenever the ticker cache or the holdings change. fn must not call Release;
// cancel ctx instead, which releases the subscription.
func (e *Engine) Observe(ctx context.Context, symbols []domain.Symbol, fn func(View)) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("observe: callback is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !e.holdingsLoaded() {
		if err := e.RefreshHoldings(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.log.Warn().Err(err).Msg("Initial holdings load failed, observing without holdings")
		}
	}

	sub := newSubscription(e, symbols, fn)

	e.subsMu.Lock()
	e.subs[sub] = struct{}{}
	e.subsMu.Unlock()

	sub.start()

	go func() {
		select {
		case <-ctx.Done():
			sub.Release()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// RefreshHoldings reloads holdings and cash and notifies subscriptions when they changed
func (e *Engine) RefreshHoldings(ctx context.Context) error {
	if e.wallet == nil {
		e.setPortfolio(nil, decimal.Zero)
		return nil
	}

	holdings, err := e.wallet.Holdings(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh holdings: %w", err)
	}
	cash, err := e.wallet.Cash(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh cash: %w", err)
	}

	changed := e.setPortfolio(holdings, cash)

	e.emit(&events.HoldingsRefreshedData{
		HoldingCount: len(holdings),
		Cash:         cash.String(),
		Changed:      changed,
	})

	if changed {
		e.log.Info().
			Int("holdings", len(holdings)).
			Str("cash", cash.String()).
			Msg("Holdings changed")
		for _, sub := range e.subscriptions() {
			sub.holdingsChanged()
		}
	}
	return nil
}

// RefreshJob returns the holdings refresh as a scheduler job
func (e *Engine) RefreshJob() scheduler.Job {
	return scheduler.JobFunc{
		JobName: "holdings_refresh",
		Fn: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			return e.RefreshHoldings(ctx)
		},
	}
}

// PersistTicks saves the latest ticks of all subscriptions
func (e *Engine) PersistTicks() error {
	if e.tickStore == nil {
		return nil
	}

	merged := make(map[domain.Symbol]domain.Tick)
	for _, sub := range e.subscriptions() {
		for symbol, tick := range sub.cache.Snapshot() {
			if prev, ok := merged[symbol]; !ok || tick.ReceivedAt.After(prev.ReceivedAt) {
				merged[symbol] = tick
			}
		}
	}
	if len(merged) == 0 {
		return nil
	}

	if err := e.tickStore.SaveTicks(merged); err != nil {
		return fmt.Errorf("failed to persist ticks: %w", err)
	}
	e.log.Debug().Int("symbols", len(merged)).Msg("Persisted latest ticks")
	return nil
}

// PersistJob returns tick persistence as a scheduler job
func (e *Engine) PersistJob() scheduler.Job {
	return scheduler.JobFunc{JobName: "tick_persist", Fn: e.PersistTicks}
}

// Close persists ticks and releases every subscription
func (e *Engine) Close() {
	if err := e.PersistTicks(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to persist ticks on close")
	}
	for _, sub := range e.subscriptions() {
		sub.Release()
	}
}

// Holdings returns the current holdings and cash
func (e *Engine) Holdings() ([]domain.Holding, decimal.Decimal) {
	holdings, cash, _ := e.portfolioState()
	out := make([]domain.Holding, len(holdings))
	copy(out, holdings)
	return out, cash
}

// TopN returns the configured allocation bucket count
func (e *Engine) TopN() int {
	return e.cfg.TopN
}

func (e *Engine) holdingsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// setPortfolio stores holdings and cash; the version only moves when the content changed
func (e *Engine) setPortfolio(holdings []domain.Holding, cash decimal.Decimal) bool {
	fp := fingerprint(holdings, cash)

	e.mu.Lock()
	defer e.mu.Unlock()

	first := !e.loaded
	e.loaded = true
	if !first && fp == e.fingerprint {
		return false
	}

	cp := make([]domain.Holding, len(holdings))
	copy(cp, holdings)
	e.holdings = cp
	e.cash = cash
	e.fingerprint = fp
	e.holdingsVersion++
	return true
}

// portfolioState returns the shared holdings slice; it is replaced, never mutated
func (e *Engine) portfolioState() ([]domain.Holding, decimal.Decimal, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holdings, e.cash, e.holdingsVersion
}

func (e *Engine) holdingSymbols() []domain.Symbol {
	holdings, _, _ := e.portfolioState()
	symbols := make([]domain.Symbol, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	return symbols
}

func (e *Engine) subscriptions() []*Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	out := make([]*Subscription, 0, len(e.subs))
	for sub := range e.subs {
		out = append(out, sub)
	}
	return out
}

func (e *Engine) remove(sub *Subscription) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	delete(e.subs, sub)
}

func (e *Engine) emit(data events.EventData) {
	if e.events != nil {
		e.events.EmitTyped(moduleName, data)
	}
}

func (e *Engine) emitError(err error, context map[string]interface{}) {
	if e.events != nil {
		e.events.EmitError(moduleName, err, context)
	}
}

// fingerprint is a canonical text form of holdings and cash
func fingerprint(holdings []domain.Holding, cash decimal.Decimal) string {
	parts := make([]string, 0, len(holdings)+1)
	for _, h := range holdings {
		parts = append(parts, fmt.Sprintf("%s|%s|%s|%s", h.Symbol, h.Name, h.Quantity.String(), h.CostBasisTotal.String()))
	}
	sort.Strings(parts)
	parts = append(parts, "cash|"+cash.String())
	return strings.Join(parts, "\n")
}
