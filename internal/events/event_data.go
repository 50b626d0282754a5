package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TickerUpdatedData is emitted for every tick accepted by the cache
type TickerUpdatedData struct {
	Symbol           string  `json:"symbol"`
	TradePrice       string  `json:"trade_price"`
	Change           string  `json:"change"`
	SignedChangeRate float64 `json:"signed_change_rate"`
}

// EventType returns the event type for TickerUpdatedData
func (d *TickerUpdatedData) EventType() EventType {
	return TickerUpdated
}

// PortfolioValuedData summarises a recomputed portfolio view
type PortfolioValuedData struct {
	TotalAsset      string  `json:"total_asset"`
	TotalProfitRate float64 `json:"total_profit_rate"`
	HoldingCount    int     `json:"holding_count"`
	PendingCount    int     `json:"pending_count"`
	BucketCount     int     `json:"bucket_count"`
	CacheVersion    uint64  `json:"cache_version"`
}

// EventType returns the event type for PortfolioValuedData
func (d *PortfolioValuedData) EventType() EventType {
	return PortfolioValued
}

// FeedStateChangedData mirrors a market stream state transition
type FeedStateChangedData struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Mode     string `json:"mode"`
	Attempt  int    `json:"attempt"`
	Failures int    `json:"failures"`
	Error    string `json:"error,omitempty"`
}

// EventType returns the event type for FeedStateChangedData
func (d *FeedStateChangedData) EventType() EventType {
	return FeedStateChanged
}

// FeedModeChangedData is emitted when a subscription swaps its live stream for a synthetic one
type FeedModeChangedData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// EventType returns the event type for FeedModeChangedData
func (d *FeedModeChangedData) EventType() EventType {
	return FeedModeChanged
}

// SymbolsChangedData lists the new watched symbol set
type SymbolsChangedData struct {
	Symbols []string `json:"symbols"`
}

// EventType returns the event type for SymbolsChangedData
func (d *SymbolsChangedData) EventType() EventType {
	return SymbolsChanged
}

// HoldingsRefreshedData is emitted after holdings and cash were reloaded
type HoldingsRefreshedData struct {
	HoldingCount int    `json:"holding_count"`
	Cash         string `json:"cash"`
	Changed      bool   `json:"changed"`
}

// EventType returns the event type for HoldingsRefreshedData
func (d *HoldingsRefreshedData) EventType() EventType {
	return HoldingsRefreshed
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
