package portfolio

import (
	"hash/fnv"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// Fixed colour keys for the synthetic buckets
const (
	OtherColorKey = "#9ca3af"
	CashColorKey  = "#34d399"
)

// ColorKey derives a stable colour for a symbol so charts keep their colours across renders
func ColorKey(symbol domain.Symbol) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain.NormalizeSymbol(string(symbol))))
	sum := h.Sum32()

	hue := float64(sum % 360)
	saturation := 0.55 + float64((sum>>9)%25)/100
	lightness := 0.45 + float64((sum>>17)%15)/100

	return colorful.Hsl(hue, saturation, lightness).Hex()
}
