// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	TickerUpdated     EventType = "TICKER_UPDATED"
	PortfolioValued   EventType = "PORTFOLIO_VALUED"
	FeedStateChanged  EventType = "FEED_STATE_CHANGED"
	FeedModeChanged   EventType = "FEED_MODE_CHANGED"
	SymbolsChanged    EventType = "SYMBOLS_CHANGED"
	HoldingsRefreshed EventType = "HOLDINGS_REFRESHED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type the engine emits
var AllEventTypes = []EventType{
	TickerUpdated,
	PortfolioValued,
	FeedStateChanged,
	FeedModeChanged,
	SymbolsChanged,
	HoldingsRefreshed,
	ErrorOccurred,
}

// Event represents a system event.
// Data holds the JSON form of the typed payload; use GetTypedData to decode it.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData converts Data back to the typed payload for the event type.
// Returns nil for unknown types or undecodable data.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case TickerUpdated:
		data = &TickerUpdatedData{}
	case PortfolioValued:
		data = &PortfolioValuedData{}
	case FeedStateChanged:
		data = &FeedStateChangedData{}
	case FeedModeChanged:
		data = &FeedModeChangedData{}
	case SymbolsChanged:
		data = &SymbolsChangedData{}
	case HoldingsRefreshed:
		data = &HoldingsRefreshedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		return nil
	}

	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}

func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
