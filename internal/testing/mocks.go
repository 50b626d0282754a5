package testing

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// MockWalletProvider is a configurable wallet provider for tests
type MockWalletProvider struct {
	mu        sync.RWMutex
	holdings  []domain.Holding
	cash      decimal.Decimal
	err       error
	cashErr   error
	calls     int
	cashCalls int
}

// NewMockWalletProvider creates a mock wallet provider
func NewMockWalletProvider(holdings []domain.Holding, cash decimal.Decimal) *MockWalletProvider {
	return &MockWalletProvider{holdings: holdings, cash: cash}
}

// SetHoldings sets the holdings to return
func (m *MockWalletProvider) SetHoldings(holdings []domain.Holding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings = holdings
}

// SetCash sets the cash balance to return
func (m *MockWalletProvider) SetCash(cash decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cash = cash
}

// SetError sets the error returned by Holdings
func (m *MockWalletProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetCashError sets the error returned by Cash
func (m *MockWalletProvider) SetCashError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cashErr = err
}

// Holdings returns the configured holdings
func (m *MockWalletProvider) Holdings(ctx context.Context) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Holding, len(m.holdings))
	copy(out, m.holdings)
	return out, nil
}

// Cash returns the configured cash balance
func (m *MockWalletProvider) Cash(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cashCalls++
	if m.cashErr != nil {
		return decimal.Zero, m.cashErr
	}
	return m.cash, nil
}

// Calls returns how often Holdings was called
func (m *MockWalletProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
