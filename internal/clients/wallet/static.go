package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// StaticProvider serves fixed holdings, e.g. for demos without a wallet backend
type StaticProvider struct {
	mu       sync.RWMutex
	holdings []domain.Holding
	cash     decimal.Decimal
}

// staticFile is the HOLDINGS_FILE format; coins use the wallet API field names
type staticFile struct {
	Coins []coinDTO       `json:"coins"`
	Cash  decimal.Decimal `json:"cash"`
}

// NewStaticProvider creates a provider for the given holdings and cash
func NewStaticProvider(holdings []domain.Holding, cash decimal.Decimal) *StaticProvider {
	p := &StaticProvider{}
	p.Set(holdings, cash)
	return p
}

// LoadStaticProvider reads holdings from a JSON file:
//
//	{"coins":[{"ticker":"BTC","coinName":"Bitcoin","holdingQuantity":0.01,"holdingPrice":500000}],"cash":100000}
func LoadStaticProvider(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holdings file: %w", err)
	}

	var file staticFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse holdings file %s: %w", path, err)
	}

	holdings := make([]domain.Holding, 0, len(file.Coins))
	for _, coin := range file.Coins {
		symbol := domain.NormalizeSymbol(coin.Ticker)
		if symbol == "" {
			return nil, fmt.Errorf("holdings file %s: entry without ticker", path)
		}
		holdings = append(holdings, domain.Holding{
			Symbol:         symbol,
			Name:           coin.CoinName,
			Quantity:       coin.HoldingQuantity,
			CostBasisTotal: coin.HoldingPrice,
		})
	}
	return NewStaticProvider(holdings, file.Cash), nil
}

// Set replaces the served holdings and cash
func (p *StaticProvider) Set(holdings []domain.Holding, cash decimal.Decimal) {
	cp := make([]domain.Holding, len(holdings))
	copy(cp, holdings)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdings = cp
	p.cash = cash
}

// Holdings returns a copy of the holdings
func (p *StaticProvider) Holdings(ctx context.Context) ([]domain.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Holding, len(p.holdings))
	copy(out, p.holdings)
	return out, nil
}

// Cash returns the cash balance
func (p *StaticProvider) Cash(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash, nil
}
