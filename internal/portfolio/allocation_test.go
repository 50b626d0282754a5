package portfolio

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

func valued(symbol domain.Symbol, value string) domain.ValuedHolding {
	return domain.ValuedHolding{Symbol: symbol, CurrentValue: d(value)}
}

func percentSum(buckets []domain.AllocationBucket) float64 {
	var sum float64
	for _, b := range buckets {
		sum += b.Percent
	}
	return sum
}

func TestBucketize_SingleHoldingWithCash(t *testing.T) {
	summary := Aggregate(
		[]domain.Holding{{Symbol: "BTC", Quantity: d("0.01"), CostBasisTotal: d("500000")}},
		map[domain.Symbol]domain.Tick{"BTC": priced("BTC", "60000000")},
		d("100000"),
	)

	buckets := Bucketize(summary.ValuedHoldings, summary.Cash, DefaultTopN)

	require.Len(t, buckets, 2)
	assert.Equal(t, "BTC", buckets[0].Label)
	assert.Equal(t, domain.BucketHolding, buckets[0].Kind)
	assert.True(t, buckets[0].Value.Equal(d("600000")))
	assert.Equal(t, 85.71, buckets[0].Percent)

	assert.Equal(t, CashLabel, buckets[1].Label)
	assert.Equal(t, domain.BucketCash, buckets[1].Kind)
	assert.True(t, buckets[1].Value.Equal(d("100000")))
	assert.Equal(t, 14.29, buckets[1].Percent)
	assert.Equal(t, CashColorKey, buckets[1].ColorKey)
}

func TestBucketize_TopNWithOther(t *testing.T) {
	holdings := []domain.ValuedHolding{
		valued("F", "50"),
		valued("B", "400"),
		valued("D", "200"),
		valued("A", "500"),
		valued("E", "100"),
		valued("C", "300"),
	}

	buckets := Bucketize(holdings, decimal.Zero, 4)

	require.Len(t, buckets, 5)
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}
	assert.Equal(t, []string{"A", "B", "C", "D", OtherLabel}, labels)
	assert.True(t, buckets[4].Value.Equal(d("150")))
	assert.Equal(t, domain.BucketOther, buckets[4].Kind)
	assert.Equal(t, OtherColorKey, buckets[4].ColorKey)
	assert.Equal(t, []float64{32.26, 25.81, 19.35, 12.9, 9.68},
		[]float64{buckets[0].Percent, buckets[1].Percent, buckets[2].Percent, buckets[3].Percent, buckets[4].Percent})
	assert.InDelta(t, 100.0, percentSum(buckets), 1e-9)
}

func TestBucketize_EmptyAndZero(t *testing.T) {
	assert.Empty(t, Bucketize(nil, decimal.Zero, 4))
	assert.NotNil(t, Bucketize(nil, decimal.Zero, 4))

	zeroValued := []domain.ValuedHolding{valued("BTC", "0"), {Symbol: "ETH", Pending: true, CurrentValue: decimal.Zero}}
	assert.Empty(t, Bucketize(zeroValued, d("-10"), 4))
}

func TestBucketize_CashOnly(t *testing.T) {
	buckets := Bucketize(nil, d("5000"), 4)

	require.Len(t, buckets, 1)
	assert.Equal(t, CashLabel, buckets[0].Label)
	assert.Equal(t, 100.0, buckets[0].Percent)
}

func TestBucketize_TieBreakBySymbol(t *testing.T) {
	holdings := []domain.ValuedHolding{valued("ETH", "100"), valued("BTC", "100"), valued("ADA", "100")}

	buckets := Bucketize(holdings, decimal.Zero, 2)

	require.Len(t, buckets, 3)
	assert.Equal(t, "ADA", buckets[0].Label)
	assert.Equal(t, "BTC", buckets[1].Label)
	assert.Equal(t, OtherLabel, buckets[2].Label)
	// equal thirds: the extra hundredth goes to the first bucket
	assert.Equal(t, 33.34, buckets[0].Percent)
	assert.Equal(t, 33.33, buckets[1].Percent)
	assert.Equal(t, 33.33, buckets[2].Percent)
}

func TestBucketize_NonPositiveTopNUsesDefault(t *testing.T) {
	holdings := []domain.ValuedHolding{
		valued("A", "6"), valued("B", "5"), valued("C", "4"), valued("D", "3"), valued("E", "2"),
	}

	buckets := Bucketize(holdings, decimal.Zero, 0)

	require.Len(t, buckets, DefaultTopN+1)
	assert.Equal(t, OtherLabel, buckets[DefaultTopN].Label)
}

func TestBucketize_DoesNotReorderInput(t *testing.T) {
	holdings := []domain.ValuedHolding{valued("B", "1"), valued("A", "2")}

	_ = Bucketize(holdings, decimal.Zero, 4)

	assert.Equal(t, domain.Symbol("B"), holdings[0].Symbol)
}

func TestBucketize_Idempotent(t *testing.T) {
	holdings := []domain.ValuedHolding{
		valued("SOL", "123.45"), valued("BTC", "9999.99"), valued("DOGE", "0.01"),
		valued("ETH", "777"), valued("XRP", "777"), valued("ADA", "5"),
	}

	first := Bucketize(holdings, d("321.5"), 3)
	second := Bucketize(holdings, d("321.5"), 3)

	assert.Equal(t, first, second)
}

func TestBucketize_PercentClosure(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := rng.Intn(12)
		holdings := make([]domain.ValuedHolding, 0, n)
		for j := 0; j < n; j++ {
			value := decimal.NewFromFloat(rng.Float64() * 1e6).Round(2)
			holdings = append(holdings, valued(domain.Symbol(fmt.Sprintf("S%02d", j)), value.String()))
		}
		cash := decimal.NewFromFloat(rng.Float64() * 1e5).Round(2)
		if rng.Intn(3) == 0 {
			cash = decimal.Zero
		}

		buckets := Bucketize(holdings, cash, 1+rng.Intn(6))
		if len(buckets) == 0 {
			continue
		}

		var hundredths int64
		for _, b := range buckets {
			assert.GreaterOrEqual(t, b.Percent, 0.0)
			hundredths += int64(math.Round(b.Percent * 100))
		}
		assert.Equal(t, int64(10000), hundredths, "iteration %d", i)
	}
}

func TestColorKey(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)

	for _, symbol := range []domain.Symbol{"BTC", "ETH", "XRP", "SOL", "DOGE", "ADA"} {
		key := ColorKey(symbol)
		assert.Regexp(t, hex, key)
		assert.Equal(t, key, ColorKey(symbol), "colour for %s must be stable", symbol)
	}

	assert.Equal(t, ColorKey("BTC"), ColorKey("btc"))
}
