// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is an uppercase asset ticker such as "BTC"
type Symbol string

// NormalizeSymbol trims and upper-cases a raw ticker
func NormalizeSymbol(raw string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(raw)))
}

// String returns the ticker text
func (s Symbol) String() string {
	return string(s)
}

// ChangeSign is the direction of the 24h price change reported by the feed
type ChangeSign string

const (
	ChangeRise ChangeSign = "RISE"
	ChangeFall ChangeSign = "FALL"
	ChangeEven ChangeSign = "EVEN"
)

// ParseChangeSign maps a feed value to a ChangeSign; unknown values are EVEN
func ParseChangeSign(raw string) ChangeSign {
	switch ChangeSign(strings.ToUpper(strings.TrimSpace(raw))) {
	case ChangeRise:
		return ChangeRise
	case ChangeFall:
		return ChangeFall
	default:
		return ChangeEven
	}
}

// Tick is one normalized price update for a symbol.
// A tick is never mutated; the next tick for the same symbol supersedes it.
type Tick struct {
	ReceivedAt       time.Time       `json:"received_at"`
	Symbol           Symbol          `json:"symbol"`
	Change           ChangeSign      `json:"change"`
	TradePrice       decimal.Decimal `json:"trade_price"`
	HighPrice        decimal.Decimal `json:"high_price"`
	LowPrice         decimal.Decimal `json:"low_price"`
	AccTradePrice24h decimal.Decimal `json:"acc_trade_price_24h"`
	SignedChangeRate float64         `json:"signed_change_rate"`
}

// Holding is a position owned by the external wallet service
type Holding struct {
	Symbol         Symbol          `json:"symbol"`
	Name           string          `json:"name,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostBasisTotal decimal.Decimal `json:"cost_basis_total"`
}

// ValuedHolding is a holding priced against the latest tick
type ValuedHolding struct {
	Symbol           Symbol          `json:"symbol"`
	Name             string          `json:"name,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	CostBasisTotal   decimal.Decimal `json:"cost_basis_total"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	ProfitRate       float64         `json:"profit_rate"`
	SignedChangeRate float64         `json:"signed_change_rate"`
	Pending          bool            `json:"pending"` // no tick received yet
}

// BucketKind tells individual holdings apart from the synthetic buckets
type BucketKind string

const (
	BucketHolding BucketKind = "holding"
	BucketOther   BucketKind = "other"
	BucketCash    BucketKind = "cash"
)

// AllocationBucket is one slice of the allocation chart
type AllocationBucket struct {
	Label    string          `json:"label"`
	Kind     BucketKind      `json:"kind"`
	Value    decimal.Decimal `json:"value"`
	Percent  float64         `json:"percent"`
	ColorKey string          `json:"color_key"`
}
