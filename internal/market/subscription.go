package market

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// subscribeTicket and subscribeTicker form the feed's subscribe request:
// [{"ticket": "..."}, {"type": "ticker", "codes": ["KRW-BTC", ...]}]
type subscribeTicket struct {
	Ticket string `json:"ticket"`
}

type subscribeTicker struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

// BuildSubscribeMessage encodes the full subscription for the symbol set.
// The feed protocol is not incremental, so every change resends all codes.
func BuildSubscribeMessage(ticket, prefix string, symbols []domain.Symbol) ([]byte, error) {
	if ticket == "" {
		return nil, fmt.Errorf("subscription ticket is empty")
	}
	codes := make([]string, 0, len(symbols))
	for _, s := range symbols {
		codes = append(codes, CodeForSymbol(prefix, s))
	}

	data, err := json.Marshal([]interface{}{
		subscribeTicket{Ticket: ticket},
		subscribeTicker{Type: "ticker", Codes: codes},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscription message: %w", err)
	}
	return data, nil
}

// normalizeSymbols upper-cases, de-duplicates and sorts a requested symbol set
func normalizeSymbols(symbols []domain.Symbol) []domain.Symbol {
	seen := make(map[domain.Symbol]struct{}, len(symbols))
	out := make([]domain.Symbol, 0, len(symbols))
	for _, raw := range symbols {
		s := domain.NormalizeSymbol(string(raw))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameSymbols(a, b []domain.Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
