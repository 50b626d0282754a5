package market

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second
	readLimit   = 1 << 20

	eventQueueSize = 256

	DefaultReconnectDelay    = 30 * time.Second
	DefaultSyntheticInterval = 10 * time.Second
	DefaultSyntheticMaxStep  = 0.01
)

// ErrConnection wraps every feed connectivity failure reported in a StateChange
var ErrConnection = errors.New("feed connection error")

// State is the stream's connection state
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects the live feed or the synthetic generator. Fixed per Stream.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSynthetic Mode = "synthetic"
)

// StateChange describes one transition of the stream state machine
type StateChange struct {
	From     State
	To       State
	Attempt  int   // connection attempt since the last successful subscribe
	Failures int   // consecutive connection failures
	Err      error // set when entering Degraded
	At       time.Time
}

// StreamConfig configures a Stream
type StreamConfig struct {
	URL               string
	Mode              Mode
	MarketPrefix      string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	SyntheticInterval time.Duration
	SyntheticMaxStep  float64
	SyntheticSeeds    map[domain.Symbol]float64
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = c.ReconnectDelay
	}
	if c.SyntheticInterval <= 0 {
		c.SyntheticInterval = DefaultSyntheticInterval
	}
	if c.SyntheticMaxStep <= 0 || c.SyntheticMaxStep >= 1 {
		c.SyntheticMaxStep = DefaultSyntheticMaxStep
	}
	return c
}

// Conn is the subset of *websocket.Conn the stream uses
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens feed connections
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the feed with nhooyr.io/websocket
type WebsocketDialer struct {
	HTTPClient *http.Client
}

// NewWebsocketDialer returns a dialer that forces HTTP/1.1 for the upgrade handshake
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSClientConfig: &tls.Config{
					// CDNs negotiate HTTP/2 via ALPN otherwise, which cannot upgrade
					NextProtos: []string{"http/1.1"},
				},
				ForceAttemptHTTP2: false,
			},
		},
	}
}

// Dial implements Dialer
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// Rand is the random source used by the synthetic generator
type Rand interface {
	Float64() float64
}

// StreamOption customises a Stream
type StreamOption func(*Stream)

// WithDialer replaces the websocket dialer
func WithDialer(d Dialer) StreamOption {
	return func(s *Stream) { s.dialer = d }
}

// WithStateListener registers a callback for every state transition.
// It runs on the stream's event loop and must not call Release.
func WithStateListener(fn func(StateChange)) StreamOption {
	return func(s *Stream) { s.listener = fn }
}

// WithRand sets the synthetic generator's random source
func WithRand(r Rand) StreamOption {
	return func(s *Stream) { s.rnd = r }
}

type eventKind int

const (
	evSetSymbols eventKind = iota
	evDialed
	evDialFailed
	evMessage
	evReadFailed
	evReconnect
	evSynthetic
)

type streamEvent struct {
	kind    eventKind
	gen     uint64
	symbols []domain.Symbol
	conn    Conn
	err     error
	frame   websocket.MessageType
	data    []byte
}

// Stream maintains one logical subscription to a set of symbols and delivers
// normalized ticks to its callback. All state lives on a single event loop
// goroutine; I/O helpers post events back to it.
type Stream struct {
	cfg      StreamConfig
	onTick   func(domain.Tick)
	log      zerolog.Logger
	dialer   Dialer
	listener func(StateChange)
	rnd      Rand
	ticket   string

	events      chan streamEvent
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	releaseOnce sync.Once

	// postMu orders posts against shutdown; closed means nothing reads events anymore
	postMu sync.RWMutex
	closed bool

	mu      sync.RWMutex
	state   State
	symbols []domain.Symbol

	// owned by the event loop
	conn       Conn
	connCancel context.CancelFunc
	gen        uint64
	attempt    int
	failures   int
	timer      *time.Timer
	scheduler  *cron.Cron
	synthetic  *syntheticGenerator
}

// NewStream creates a stream and starts its event loop. The stream stays Idle until
// SetSymbols supplies a non-empty symbol set.
func NewStream(cfg StreamConfig, onTick func(domain.Tick), log zerolog.Logger, opts ...StreamOption) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		cfg:    cfg.withDefaults(),
		onTick: onTick,
		log:    log.With().Str("component", "market_stream").Logger(),
		ticket: uuid.NewString(),
		events: make(chan streamEvent, eventQueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = NewWebsocketDialer()
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.synthetic = newSyntheticGenerator(s.cfg.SyntheticSeeds, s.cfg.SyntheticMaxStep, s.rnd)

	s.log = s.log.With().Str("mode", string(s.cfg.Mode)).Logger()
	go s.run()
	return s
}

// SetSymbols replaces the subscribed symbol set
func (s *Stream) SetSymbols(symbols []domain.Symbol) {
	s.post(streamEvent{kind: evSetSymbols, symbols: normalizeSymbols(symbols)})
}

// State returns the current state
func (s *Stream) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Symbols returns the current symbol set
func (s *Stream) Symbols() []domain.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Symbol, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Mode returns the stream's fixed mode
func (s *Stream) Mode() Mode {
	return s.cfg.Mode
}

// Ticket returns the shared subscription ticket
func (s *Stream) Ticket() string {
	return s.ticket
}

// Release cancels timers, closes the socket and stops the event loop.
// No callback fires after Release returns. Safe to call more than once.
func (s *Stream) Release() {
	s.releaseOnce.Do(func() {
		s.log.Info().Msg("Releasing market data stream")
		s.cancel()
	})
	<-s.done
}

// Done is closed once the stream reached StateClosed
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) post(ev streamEvent) bool {
	s.postMu.RLock()
	defer s.postMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Stream) run() {
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if s.ctx.Err() != nil {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Stream) handle(ev streamEvent) {
	switch ev.kind {
	case evSetSymbols:
		s.handleSetSymbols(ev.symbols)
	case evDialed:
		s.handleDialed(ev.gen, ev.conn)
	case evDialFailed:
		if ev.gen == s.gen && s.currentState() == StateConnecting {
			s.fail(fmt.Errorf("%w: dial %s: %v", ErrConnection, s.cfg.URL, ev.err))
		}
	case evMessage:
		s.handleMessage(ev.gen, ev.frame, ev.data)
	case evReadFailed:
		s.handleReadFailed(ev.gen, ev.err)
	case evReconnect:
		if ev.gen == s.gen && s.currentState() == StateDegraded && len(s.symbols) > 0 {
			s.start()
		}
	case evSynthetic:
		if s.cfg.Mode == ModeSynthetic && s.currentState() == StateSubscribed {
			s.emitSynthetic(s.currentSymbols())
		}
	}
}

func (s *Stream) handleSetSymbols(symbols []domain.Symbol) {
	previous := s.currentSymbols()
	if sameSymbols(previous, symbols) {
		return
	}

	s.mu.Lock()
	s.symbols = symbols
	s.mu.Unlock()

	s.log.Info().
		Int("symbol_count", len(symbols)).
		Str("state", s.currentState().String()).
		Msg("Symbol set changed")

	if len(symbols) == 0 {
		s.teardown()
		s.failures = 0
		s.attempt = 0
		s.transition(StateIdle, nil)
		return
	}

	switch s.currentState() {
	case StateIdle:
		s.start()
	case StateSubscribed:
		if s.cfg.Mode == ModeSynthetic {
			s.emitSynthetic(newSymbols(previous, symbols))
			return
		}
		if err := s.subscribe(); err != nil {
			s.fail(fmt.Errorf("%w: resubscribe: %v", ErrConnection, err))
		}
	default:
		// Connecting picks up the new set on handshake, Degraded on reconnect
	}
}

func (s *Stream) start() {
	if s.cfg.Mode == ModeSynthetic {
		s.startSynthetic()
		return
	}
	s.connect()
}

// connect dials asynchronously; the result comes back as evDialed or evDialFailed
func (s *Stream) connect() {
	s.gen++
	s.attempt++
	gen := s.gen
	s.transition(StateConnecting, nil)

	s.log.Info().
		Str("url", s.cfg.URL).
		Int("attempt", s.attempt).
		Msg("Connecting to market feed")

	go func() {
		dialCtx, cancel := context.WithTimeout(s.ctx, dialTimeout)
		defer cancel()

		conn, err := s.dialer.Dial(dialCtx, s.cfg.URL)
		if err != nil {
			s.post(streamEvent{kind: evDialFailed, gen: gen, err: err})
			return
		}
		if !s.post(streamEvent{kind: evDialed, gen: gen, conn: conn}) {
			_ = conn.Close(websocket.StatusGoingAway, "stream released")
		}
	}()
}

func (s *Stream) handleDialed(gen uint64, conn Conn) {
	if gen != s.gen || s.currentState() != StateConnecting {
		// Superseded by a symbol change or release
		go func() { _ = conn.Close(websocket.StatusNormalClosure, "superseded") }()
		return
	}

	connCtx, connCancel := context.WithCancel(s.ctx)
	s.conn = conn
	s.connCancel = connCancel

	if err := s.subscribe(); err != nil {
		s.fail(fmt.Errorf("%w: subscribe: %v", ErrConnection, err))
		return
	}

	s.log.Info().
		Int("attempt", s.attempt).
		Int("symbol_count", len(s.symbols)).
		Msg("Subscribed to market feed")

	s.transition(StateSubscribed, nil)
	s.failures = 0
	s.attempt = 0

	go s.readLoop(connCtx, gen, conn)
}

// subscribe sends the full symbol set under the stream's ticket
func (s *Stream) subscribe() error {
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := BuildSubscribeMessage(s.ticket, s.cfg.MarketPrefix, s.currentSymbols())
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(s.ctx, writeWait)
	defer cancel()

	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}
	return nil
}

func (s *Stream) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.post(streamEvent{kind: evReadFailed, gen: gen, err: err})
			return
		}
		if !s.post(streamEvent{kind: evMessage, gen: gen, frame: typ, data: data}) {
			return
		}
	}
}

func (s *Stream) handleMessage(gen uint64, frame websocket.MessageType, data []byte) {
	if gen != s.gen || s.currentState() != StateSubscribed {
		return
	}

	kind := FrameText
	if frame == websocket.MessageBinary {
		kind = FrameBinary
	}
	tick, err := NormalizeFrame(kind, data, time.Now())
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping malformed feed message")
		return
	}
	s.deliver(tick)
}

func (s *Stream) handleReadFailed(gen uint64, err error) {
	if gen != s.gen || s.currentState() != StateSubscribed {
		return
	}

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		s.log.Info().Int("status", int(status)).Msg("Market feed closed the connection")
	} else {
		s.log.Error().Err(err).Msg("Unexpected market feed read error")
	}
	s.fail(fmt.Errorf("%w: read: %v", ErrConnection, err))
}

// fail moves to Degraded and arms the reconnect timer
func (s *Stream) fail(err error) {
	s.closeConn(false)
	s.failures++

	delay := s.calculateBackoff(s.failures)
	s.transition(StateDegraded, err)

	s.log.Warn().
		Err(err).
		Int("failures", s.failures).
		Dur("delay", delay).
		Msg("Market feed degraded, scheduling reconnect")

	s.stopTimer()
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.post(streamEvent{kind: evReconnect, gen: gen})
	})
}

// calculateBackoff doubles the base delay per failure, capped at the max delay.
// With equal base and max the delay is fixed.
func (s *Stream) calculateBackoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := float64(s.cfg.ReconnectDelay) * math.Pow(2, float64(failures-1))
	if delay > float64(s.cfg.MaxReconnectDelay) {
		delay = float64(s.cfg.MaxReconnectDelay)
	}
	return time.Duration(delay)
}

func (s *Stream) startSynthetic() {
	s.transition(StateConnecting, nil)

	s.scheduler = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.SyntheticInterval)
	if _, err := s.scheduler.AddFunc(spec, func() {
		s.post(streamEvent{kind: evSynthetic})
	}); err != nil {
		s.scheduler = nil
		s.fail(fmt.Errorf("%w: synthetic schedule %q: %v", ErrConnection, spec, err))
		return
	}
	s.scheduler.Start()

	s.log.Info().
		Dur("interval", s.cfg.SyntheticInterval).
		Msg("Synthetic market data generator started")

	s.transition(StateSubscribed, nil)
	s.emitSynthetic(s.currentSymbols())
}

func (s *Stream) emitSynthetic(symbols []domain.Symbol) {
	now := time.Now()
	for _, sym := range symbols {
		if s.ctx.Err() != nil {
			return
		}
		s.deliver(s.synthetic.next(sym, now))
	}
}

func (s *Stream) deliver(tick domain.Tick) {
	if s.onTick == nil || s.ctx.Err() != nil {
		return
	}
	s.onTick(tick)
}

// teardown stops whatever produces ticks without releasing the stream
func (s *Stream) teardown() {
	s.gen++
	s.stopTimer()
	s.stopScheduler()
	s.closeConn(false)
}

func (s *Stream) shutdown() {
	s.postMu.Lock()
	s.closed = true
	s.postMu.Unlock()
	s.drain()

	s.stopTimer()
	s.stopScheduler()
	s.closeConn(true)
	s.transition(StateClosed, nil)
	s.log.Info().Msg("Market data stream closed")
}

// drain discards queued events, closing connections that were dialed but never adopted
func (s *Stream) drain() {
	for {
		select {
		case ev := <-s.events:
			if ev.conn != nil {
				_ = ev.conn.Close(websocket.StatusGoingAway, "stream released")
			}
		default:
			return
		}
	}
}

func (s *Stream) closeConn(wait bool) {
	if s.conn == nil {
		return
	}
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	conn := s.conn
	s.conn = nil

	closeFn := func() {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			s.log.Debug().Err(err).Msg("Error closing feed connection")
		}
	}
	if wait {
		closeFn()
		return
	}
	go closeFn()
}

func (s *Stream) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Stream) stopScheduler() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
}

func (s *Stream) transition(to State, err error) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	s.log.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Stream state transition")

	if s.listener != nil {
		s.listener(StateChange{
			From:     from,
			To:       to,
			Attempt:  s.attempt,
			Failures: s.failures,
			Err:      err,
			At:       time.Now(),
		})
	}
}

func (s *Stream) currentState() State {
	return s.State()
}

func (s *Stream) currentSymbols() []domain.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbols
}

// newSymbols returns the symbols of next that are absent from prev
func newSymbols(prev, next []domain.Symbol) []domain.Symbol {
	known := make(map[domain.Symbol]struct{}, len(prev))
	for _, s := range prev {
		known[s] = struct{}{}
	}
	var added []domain.Symbol
	for _, s := range next {
		if _, ok := known[s]; !ok {
			added = append(added, s)
		}
	}
	return added
}
