package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// DefaultTopN is the number of individually charted holdings
const DefaultTopN = 4

// Labels of the synthetic buckets
const (
	OtherLabel = "other"
	CashLabel  = "cash"
)

// percentScale expresses percentages in hundredths (2 decimals)
var percentScale = decimal.NewFromInt(10000)

// Bucketize ranks valued holdings and groups them into topN individual buckets,
// one "other" bucket and one "cash" bucket. Percentages are rounded to 2 decimals
// and always sum to exactly 100. A zero total yields an empty list.
func Bucketize(valued []domain.ValuedHolding, cash decimal.Decimal, topN int) []domain.AllocationBucket {
	if topN <= 0 {
		topN = DefaultTopN
	}

	ranked := make([]domain.ValuedHolding, 0, len(valued))
	for _, vh := range valued {
		if vh.CurrentValue.IsPositive() {
			ranked = append(ranked, vh)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].CurrentValue.Cmp(ranked[j].CurrentValue); c != 0 {
			return c > 0
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	buckets := make([]domain.AllocationBucket, 0, topN+2)
	other := decimal.Zero
	for i, vh := range ranked {
		if i >= topN {
			other = other.Add(vh.CurrentValue)
			continue
		}
		buckets = append(buckets, domain.AllocationBucket{
			Label:    vh.Symbol.String(),
			Kind:     domain.BucketHolding,
			Value:    vh.CurrentValue,
			ColorKey: ColorKey(vh.Symbol),
		})
	}
	if other.IsPositive() {
		buckets = append(buckets, domain.AllocationBucket{
			Label:    OtherLabel,
			Kind:     domain.BucketOther,
			Value:    other,
			ColorKey: OtherColorKey,
		})
	}
	if cash.IsPositive() {
		buckets = append(buckets, domain.AllocationBucket{
			Label:    CashLabel,
			Kind:     domain.BucketCash,
			Value:    cash,
			ColorKey: CashColorKey,
		})
	}

	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.Value)
	}
	if !total.IsPositive() {
		return []domain.AllocationBucket{}
	}

	assignPercents(buckets, total)
	return buckets
}

// assignPercents distributes 100.00 across buckets with the largest remainder method:
// every bucket gets its floored share in hundredths, and the leftover hundredths go
// to the buckets with the largest fractional parts (earlier buckets win ties).
func assignPercents(buckets []domain.AllocationBucket, total decimal.Decimal) {
	type share struct {
		index     int
		units     int64
		remainder decimal.Decimal
	}

	shares := make([]share, len(buckets))
	var allocated int64
	for i, b := range buckets {
		exact := b.Value.Mul(percentScale).Div(total)
		floor := exact.Floor()
		shares[i] = share{index: i, units: floor.IntPart(), remainder: exact.Sub(floor)}
		allocated += shares[i].units
	}

	leftover := percentScale.IntPart() - allocated
	order := make([]share, len(shares))
	copy(order, shares)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].remainder.GreaterThan(order[j].remainder)
	})
	for k := 0; leftover > 0 && len(order) > 0; k++ {
		shares[order[k%len(order)].index].units++
		leftover--
	}

	for i := range buckets {
		buckets[i].Percent = decimal.New(shares[i].units, -2).InexactFloat64()
	}
}
