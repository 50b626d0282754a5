package observer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/events"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/market"
)

// Subscription delivers Views to one callback. Callbacks are serialized.
type Subscription struct {
	engine *Engine
	fn     func(View)
	cache  *market.TickerCache
	log    zerolog.Logger
	done   chan struct{}

	// mu guards the stream and the watched symbols. It is never taken on a stream run loop.
	mu         sync.Mutex
	stream     *market.Stream
	streamMode market.Mode
	symbols    []domain.Symbol
	follow     bool

	// watchMu guards watched and is held across cache ingestion, so a tick for a
	// symbol dropped by SetSymbols or a holdings change never re-enters the cache
	watchMu sync.Mutex
	watched map[domain.Symbol]struct{}

	released atomic.Bool
	// gen identifies the current stream; callbacks from older streams are dropped
	gen atomic.Uint64

	stateMu   sync.RWMutex
	feedState market.State
	mode      market.Mode

	deliverMu     sync.Mutex
	memo          memoKey
	hasMemo       bool
	issuesLogged  uint64
	issuesChecked bool

	viewMu   sync.RWMutex
	last     View
	hasLast  bool
	finished sync.Once
}

func newSubscription(e *Engine, symbols []domain.Symbol, fn func(View)) *Subscription {
	s := &Subscription{
		engine: e,
		fn:     fn,
		cache:  market.NewTickerCache(e.cfg.TickEpsilon),
		log:    e.log,
		done:   make(chan struct{}),
	}
	s.symbols = normalizeSymbols(symbols)
	if len(s.symbols) == 0 {
		s.follow = true
		s.symbols = normalizeSymbols(e.holdingSymbols())
	}
	s.watch(s.symbols)
	return s
}

// watch replaces the watched set and evicts ticks for symbols no longer in it
func (s *Subscription) watch(symbols []domain.Symbol) {
	watched := make(map[domain.Symbol]struct{}, len(symbols))
	for _, sym := range symbols {
		watched[sym] = struct{}{}
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watched = watched
	s.cache.Retain(symbols)
}

// ingest stores the tick when its symbol is still watched
func (s *Subscription) ingest(tick domain.Tick) bool {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if _, ok := s.watched[tick.Symbol]; !ok {
		return false
	}
	return s.cache.Ingest(tick)
}

func (s *Subscription) start() {
	s.warmStart()

	mode := s.engine.cfg.Stream.Mode
	if mode == "" {
		mode = market.ModeLive
	}

	s.mu.Lock()
	s.stream = s.newStream(mode)
	s.streamMode = mode
	s.stream.SetSymbols(s.symbols)
	s.mu.Unlock()

	s.log.Info().
		Str("mode", string(mode)).
		Strs("symbols", symbolStrings(s.symbols)).
		Bool("follow_holdings", s.follow).
		Msg("Subscription started")

	s.recompute()
}

// warmStart seeds the cache with persisted ticks for the watched symbols
func (s *Subscription) warmStart() {
	if s.engine.tickStore == nil || len(s.symbols) == 0 {
		return
	}
	stored, err := s.engine.tickStore.LoadTicks()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load persisted ticks")
		return
	}

	watched := make(map[domain.Symbol]struct{}, len(s.symbols))
	for _, sym := range s.symbols {
		watched[sym] = struct{}{}
	}
	seed := make([]domain.Tick, 0, len(stored))
	for _, t := range stored {
		if _, ok := watched[t.Symbol]; ok {
			seed = append(seed, t)
		}
	}
	if n := s.cache.Seed(seed); n > 0 {
		s.log.Debug().Int("ticks", n).Msg("Seeded ticker cache from persisted ticks")
	}
}

func (s *Subscription) newStream(mode market.Mode) *market.Stream {
	gen := s.gen.Add(1)

	cfg := s.engine.cfg.Stream
	cfg.Mode = mode

	opts := make([]market.StreamOption, 0, len(s.engine.streamOpts)+1)
	opts = append(opts, s.engine.streamOpts...)
	opts = append(opts, market.WithStateListener(func(c market.StateChange) {
		s.onStateChange(gen, mode, c)
	}))

	s.stateMu.Lock()
	s.mode = mode
	s.feedState = market.StateIdle
	s.stateMu.Unlock()

	return market.NewStream(cfg, func(t domain.Tick) { s.onTick(gen, t) }, s.log, opts...)
}

func (s *Subscription) onTick(gen uint64, tick domain.Tick) {
	if gen != s.gen.Load() || s.released.Load() {
		return
	}
	if !s.ingest(tick) {
		return
	}
	s.engine.emit(&events.TickerUpdatedData{
		Symbol:           string(tick.Symbol),
		TradePrice:       tick.TradePrice.String(),
		Change:           string(tick.Change),
		SignedChangeRate: tick.SignedChangeRate,
	})
	s.recompute()
}

func (s *Subscription) onStateChange(gen uint64, mode market.Mode, c market.StateChange) {
	if gen != s.gen.Load() {
		return
	}

	s.stateMu.Lock()
	s.feedState = c.To
	s.stateMu.Unlock()

	data := &events.FeedStateChangedData{
		From:     c.From.String(),
		To:       c.To.String(),
		Mode:     string(mode),
		Attempt:  c.Attempt,
		Failures: c.Failures,
	}
	if c.Err != nil {
		data.Error = c.Err.Error()
	}
	s.engine.emit(data)

	threshold := s.engine.cfg.FallbackAfterFailures
	if mode == market.ModeLive && threshold > 0 && c.To == market.StateDegraded && c.Failures >= threshold {
		go s.fallback(fmt.Sprintf("%d consecutive connection failures", c.Failures))
	}
}

// fallback replaces the live stream with a synthetic one
func (s *Subscription) fallback(reason string) {
	s.mu.Lock()
	if s.released.Load() || s.streamMode != market.ModeLive {
		s.mu.Unlock()
		return
	}
	old := s.stream
	s.stream = s.newStream(market.ModeSynthetic)
	s.streamMode = market.ModeSynthetic
	s.stream.SetSymbols(s.symbols)
	s.mu.Unlock()

	old.Release()

	s.log.Warn().Str("reason", reason).Msg("Live feed unavailable, switched to synthetic prices")
	s.engine.emit(&events.FeedModeChangedData{
		From:   string(market.ModeLive),
		To:     string(market.ModeSynthetic),
		Reason: reason,
	})
}

// SetSymbols changes the watched symbols. Ticks for dropped symbols leave the cache.
func (s *Subscription) SetSymbols(symbols []domain.Symbol) error {
	if s.released.Load() {
		return ErrReleased
	}
	norm := normalizeSymbols(symbols)

	s.mu.Lock()
	s.symbols = norm
	s.follow = false
	s.watch(norm)
	s.stream.SetSymbols(norm)
	s.mu.Unlock()

	s.engine.emit(&events.SymbolsChangedData{Symbols: symbolStrings(norm)})
	s.recompute()
	return nil
}

// Symbols returns the watched symbols
func (s *Subscription) Symbols() []domain.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Symbol, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// FeedState returns the state of the current stream
func (s *Subscription) FeedState() market.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.feedState
}

// Mode returns the mode of the current stream
func (s *Subscription) Mode() market.Mode {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.mode
}

// View returns the most recently delivered View
func (s *Subscription) View() (View, bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.last, s.hasLast
}

// Done is closed once the subscription has been released
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Release stops the stream and waits for an in-flight callback to return.
// No callback runs after Release returns. Safe to call more than once.
func (s *Subscription) Release() {
	s.mu.Lock()
	if s.released.Swap(true) {
		s.mu.Unlock()
		<-s.done
		return
	}
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		stream.Release()
	}

	s.deliverMu.Lock()
	s.deliverMu.Unlock()

	s.engine.remove(s)
	s.finished.Do(func() { close(s.done) })
	s.log.Info().Msg("Subscription released")
}

func (s *Subscription) holdingsChanged() {
	if s.released.Load() {
		return
	}

	s.mu.Lock()
	if s.follow {
		s.symbols = normalizeSymbols(s.engine.holdingSymbols())
		s.watch(s.symbols)
		s.stream.SetSymbols(s.symbols)
	}
	s.mu.Unlock()

	s.recompute()
}

// recompute builds and delivers a View unless its inputs are unchanged
func (s *Subscription) recompute() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.released.Load() {
		return
	}

	ticks, version := s.cache.VersionedSnapshot()
	holdings, cash, holdingsVersion := s.engine.portfolioState()
	key := memoKey{cacheVersion: version, holdingsVersion: holdingsVersion}
	if s.hasMemo && key == s.memo {
		return
	}

	view, err := s.buildView(ticks, holdings, cash)
	if err != nil {
		s.log.Error().Err(err).
			Uint64("cache_version", version).
			Uint64("holdings_version", holdingsVersion).
			Msg("Failed to compute portfolio view")
		s.engine.emitError(err, map[string]interface{}{
			"cache_version":    version,
			"holdings_version": holdingsVersion,
		})
		return
	}
	view.CacheVersion = version
	view.HoldingsVersion = holdingsVersion

	s.memo = key
	s.hasMemo = true
	s.logIssues(view, holdingsVersion)

	s.viewMu.Lock()
	s.last = view
	s.hasLast = true
	s.viewMu.Unlock()

	s.engine.emit(&events.PortfolioValuedData{
		TotalAsset:      view.Summary.TotalAsset.String(),
		TotalProfitRate: view.Summary.TotalProfitRate,
		HoldingCount:    len(view.ValuedHoldings),
		PendingCount:    view.Summary.PendingCount,
		BucketCount:     len(view.Buckets),
		CacheVersion:    version,
	})

	s.fn(view)
}

// buildView runs the pure valuation stages; panics become ErrComputation outside dev mode
func (s *Subscription) buildView(ticks map[domain.Symbol]domain.Tick, holdings []domain.Holding, cash decimal.Decimal) (view View, err error) {
	defer func() {
		if r := recover(); r != nil {
			if s.engine.cfg.DevMode {
				panic(r)
			}
			err = fmt.Errorf("%w: %v", ErrComputation, r)
		}
	}()

	summary := s.engine.aggregate(holdings, ticks, cash)
	buckets := s.engine.bucketize(summary.ValuedHoldings, summary.Cash, s.engine.cfg.TopN)

	s.stateMu.RLock()
	state, mode := s.feedState, s.mode
	s.stateMu.RUnlock()

	return View{
		LatestTicks:    ticks,
		ValuedHoldings: summary.ValuedHoldings,
		Summary:        summary,
		Buckets:        buckets,
		FeedState:      state,
		Mode:           mode,
	}, nil
}

// logIssues logs clamped inputs once per holdings version
func (s *Subscription) logIssues(view View, holdingsVersion uint64) {
	if s.issuesChecked && s.issuesLogged == holdingsVersion {
		return
	}
	s.issuesChecked = true
	s.issuesLogged = holdingsVersion
	for _, issue := range view.Summary.Issues {
		s.log.Warn().
			Str("symbol", string(issue.Symbol)).
			Str("field", issue.Field).
			Str("value", issue.Value.String()).
			Msg("Clamped invalid portfolio input")
	}
}
