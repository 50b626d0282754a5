package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEventManager() (*Manager, *Bus) {
	log := zerolog.Nop()
	bus := NewBus(log)
	return NewManager(bus, log), bus
}

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(TickerUpdated, func(event *Event) {
		received = append(received, event)
	})
	bus.Subscribe(PortfolioValued, func(event *Event) {
		t.Fatal("handler for another type must not run")
	})

	bus.Emit(TickerUpdated, "market", map[string]interface{}{"symbol": "BTC"})

	require.Len(t, received, 1)
	assert.Equal(t, TickerUpdated, received[0].Type)
	assert.Equal(t, "market", received[0].Module)
	assert.Equal(t, "BTC", received[0].Data["symbol"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	id := bus.Subscribe(ErrorOccurred, func(*Event) { calls++ })
	other := bus.Subscribe(ErrorOccurred, func(*Event) {})
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, bus.SubscriberCount(ErrorOccurred))

	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	bus.Emit(ErrorOccurred, "test", nil)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, bus.SubscriberCount(ErrorOccurred))

	bus.Unsubscribe(other)
	assert.Equal(t, 0, bus.SubscriberCount(ErrorOccurred))
}

func TestBus_HandlerPanicDoesNotStopFanOut(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := 0
	bus.Subscribe(FeedStateChanged, func(*Event) { panic("boom") })
	bus.Subscribe(FeedStateChanged, func(*Event) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Emit(FeedStateChanged, "market", nil)
	})
	assert.Equal(t, 1, delivered)
}

func TestManager_EmitTyped(t *testing.T) {
	manager, bus := setupEventManager()

	var got *Event
	bus.Subscribe(FeedModeChanged, func(event *Event) { got = event })

	manager.EmitTyped("observer", &FeedModeChangedData{From: "live", To: "synthetic", Reason: "3 consecutive failures"})

	require.NotNil(t, got)
	assert.Equal(t, "observer", got.Module)
	data, ok := got.GetTypedData().(*FeedModeChangedData)
	require.True(t, ok)
	assert.Equal(t, "synthetic", data.To)
	assert.Same(t, bus, manager.Bus())
}

func TestManager_EmitError(t *testing.T) {
	manager, bus := setupEventManager()

	var got *Event
	bus.Subscribe(ErrorOccurred, func(event *Event) { got = event })

	manager.EmitError("observer", errors.New("aggregation failed"), map[string]interface{}{"symbols": 3})

	require.NotNil(t, got)
	data, ok := got.GetTypedData().(*ErrorEventData)
	require.True(t, ok)
	assert.Equal(t, "aggregation failed", data.Error)
	assert.EqualValues(t, 3, data.Context["symbols"])
}

func TestManager_LogsTickerEventsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	manager := NewManager(NewBus(log), log)

	manager.EmitTyped("market", &TickerUpdatedData{Symbol: "BTC", TradePrice: "1"})
	assert.Empty(t, buf.String())

	manager.EmitTyped("market", &SymbolsChangedData{Symbols: []string{"BTC"}})
	assert.Contains(t, buf.String(), "SYMBOLS_CHANGED")
}
