// Package wallet fetches holdings and cash from the backend wallet API.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/clientdata"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

const (
	coinsPath = "/api/v1/wallets/coins"
	cashPath  = "/api/v1/wallets/cash"

	cacheKey = "default"
)

// ErrUnavailable is returned when the API fails and no cached copy exists
var ErrUnavailable = errors.New("wallet data unavailable")

// coinDTO is one entry of the coins endpoint; holdingPrice is the total amount paid
type coinDTO struct {
	Ticker          string          `json:"ticker"`
	CoinName        string          `json:"coinName"`
	HoldingQuantity decimal.Decimal `json:"holdingQuantity"`
	HoldingPrice    decimal.Decimal `json:"holdingPrice"`
}

type coinsResponse struct {
	Data []coinDTO `json:"data"`
}

type cashResponse struct {
	Data struct {
		Cash decimal.Decimal `json:"cash"`
	} `json:"data"`
}

// Client for the wallet API
type Client struct {
	baseURL   string
	token     string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a wallet API client.
// cacheRepo is optional; without it there is no stale fallback.
func NewClient(baseURL, token string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "wallet").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Holdings returns the current holdings, falling back to the last cached copy on failure
func (c *Client) Holdings(ctx context.Context) ([]domain.Holding, error) {
	var resp coinsResponse
	if err := c.get(ctx, coinsPath, &resp); err != nil {
		var stale []domain.Holding
		if c.getStale(clientdata.TableWalletHoldings, &stale) {
			c.log.Warn().Err(err).Int("holdings", len(stale)).Msg("Wallet API failed, using stale cached holdings")
			return stale, nil
		}
		return nil, fmt.Errorf("%w: holdings: %v", ErrUnavailable, err)
	}

	holdings := make([]domain.Holding, 0, len(resp.Data))
	for _, coin := range resp.Data {
		symbol := domain.NormalizeSymbol(coin.Ticker)
		if symbol == "" {
			c.log.Warn().Str("coin_name", coin.CoinName).Msg("Skipping wallet entry without ticker")
			continue
		}
		holdings = append(holdings, domain.Holding{
			Symbol:         symbol,
			Name:           coin.CoinName,
			Quantity:       coin.HoldingQuantity,
			CostBasisTotal: coin.HoldingPrice,
		})
	}

	c.store(clientdata.TableWalletHoldings, holdings, clientdata.TTLWalletHoldings)
	c.log.Debug().Int("holdings", len(holdings)).Msg("Fetched holdings")
	return holdings, nil
}

// Cash returns the cash balance, falling back to the last cached value on failure
func (c *Client) Cash(ctx context.Context) (decimal.Decimal, error) {
	var resp cashResponse
	if err := c.get(ctx, cashPath, &resp); err != nil {
		var stale decimal.Decimal
		if c.getStale(clientdata.TableWalletCash, &stale) {
			c.log.Warn().Err(err).Str("cash", stale.String()).Msg("Wallet API failed, using stale cached cash")
			return stale, nil
		}
		return decimal.Zero, fmt.Errorf("%w: cash: %v", ErrUnavailable, err)
	}

	c.store(clientdata.TableWalletCash, resp.Data.Cash, clientdata.TTLWalletCash)
	return resp.Data.Cash, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) store(table string, data interface{}, ttl time.Duration) {
	if c.cacheRepo == nil {
		return
	}
	if err := c.cacheRepo.Store(table, cacheKey, data, ttl); err != nil {
		c.log.Warn().Err(err).Str("table", table).Msg("Failed to cache wallet data")
	}
}

// getStale reads the cached copy even if expired
func (c *Client) getStale(table string, out interface{}) bool {
	if c.cacheRepo == nil {
		return false
	}

	data, err := c.cacheRepo.Get(table, cacheKey)
	if err != nil || data == nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
