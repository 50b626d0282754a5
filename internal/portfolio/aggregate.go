// Package portfolio values holdings against market ticks and splits the result
// into allocation buckets. Everything here is a pure function of its inputs.
package portfolio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// ErrInvalidInput marks external data that had to be clamped during aggregation
var ErrInvalidInput = errors.New("invalid aggregation input")

// Issue fields
const (
	FieldQuantity  = "quantity"
	FieldCostBasis = "cost_basis_total"
	FieldPrice     = "trade_price"
	FieldCash      = "cash"
)

// InputIssue records one negative input value that was clamped to zero
type InputIssue struct {
	Symbol domain.Symbol   `json:"symbol,omitempty"`
	Field  string          `json:"field"`
	Value  decimal.Decimal `json:"value"`
}

func (i InputIssue) Error() string {
	if i.Symbol == "" {
		return fmt.Sprintf("%s: negative %s %s clamped to 0", ErrInvalidInput, i.Field, i.Value)
	}
	return fmt.Sprintf("%s: negative %s %s for %s clamped to 0", ErrInvalidInput, i.Field, i.Value, i.Symbol)
}

func (i InputIssue) Unwrap() error {
	return ErrInvalidInput
}

// Summary is the valuation of a whole portfolio
type Summary struct {
	ValuedHoldings     []domain.ValuedHolding `json:"valued_holdings"`
	TotalHoldingsValue decimal.Decimal        `json:"total_holdings_value"`
	TotalCost          decimal.Decimal        `json:"total_cost"`
	Cash               decimal.Decimal        `json:"cash"`
	TotalAsset         decimal.Decimal        `json:"total_asset"`
	TotalProfitRate    float64                `json:"total_profit_rate"`
	PendingCount       int                    `json:"pending_count"`
	Issues             []InputIssue           `json:"issues,omitempty"`
}

// Aggregate values holdings against the latest ticks.
// Holdings without a tick are valued at 0 and flagged Pending. Output order follows input order.
func Aggregate(holdings []domain.Holding, ticks map[domain.Symbol]domain.Tick, cash decimal.Decimal) Summary {
	var issues []InputIssue
	clamp := func(symbol domain.Symbol, field string, v decimal.Decimal) decimal.Decimal {
		if v.IsNegative() {
			issues = append(issues, InputIssue{Symbol: symbol, Field: field, Value: v})
			return decimal.Zero
		}
		return v
	}

	summary := Summary{
		ValuedHoldings:     make([]domain.ValuedHolding, 0, len(holdings)),
		TotalHoldingsValue: decimal.Zero,
		TotalCost:          decimal.Zero,
	}

	for _, h := range holdings {
		quantity := clamp(h.Symbol, FieldQuantity, h.Quantity)
		costBasis := clamp(h.Symbol, FieldCostBasis, h.CostBasisTotal)

		vh := domain.ValuedHolding{
			Symbol:         h.Symbol,
			Name:           h.Name,
			Quantity:       quantity,
			CostBasisTotal: costBasis,
			CurrentPrice:   decimal.Zero,
			CurrentValue:   decimal.Zero,
			AverageCost:    AverageCost(costBasis, quantity),
		}

		tick, ok := ticks[h.Symbol]
		if ok {
			vh.CurrentPrice = clamp(h.Symbol, FieldPrice, tick.TradePrice)
			vh.CurrentValue = quantity.Mul(vh.CurrentPrice)
			vh.SignedChangeRate = tick.SignedChangeRate
			vh.ProfitRate = ProfitRate(vh.CurrentPrice, vh.AverageCost)
		} else {
			vh.Pending = true
			summary.PendingCount++
		}

		summary.ValuedHoldings = append(summary.ValuedHoldings, vh)
		summary.TotalHoldingsValue = summary.TotalHoldingsValue.Add(vh.CurrentValue)
		summary.TotalCost = summary.TotalCost.Add(costBasis)
	}

	summary.Cash = clamp("", FieldCash, cash)
	summary.TotalAsset = summary.TotalHoldingsValue.Add(summary.Cash)

	invested := summary.TotalCost.Add(summary.Cash)
	if invested.IsPositive() {
		summary.TotalProfitRate = summary.TotalAsset.Sub(invested).Div(invested).InexactFloat64()
	}

	summary.Issues = issues
	return summary
}

// AverageCost is costBasisTotal/quantity, or 0 for an empty position
func AverageCost(costBasisTotal, quantity decimal.Decimal) decimal.Decimal {
	if !quantity.IsPositive() {
		return decimal.Zero
	}
	return costBasisTotal.Div(quantity)
}

// ProfitRate is (price-averageCost)/averageCost, or 0 when averageCost is 0
func ProfitRate(price, averageCost decimal.Decimal) float64 {
	if !averageCost.IsPositive() {
		return 0
	}
	return price.Sub(averageCost).Div(averageCost).InexactFloat64()
}
