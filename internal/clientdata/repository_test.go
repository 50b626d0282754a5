package clientdata

import (
	"database/sql"
	"encoding/json"
	"sort"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// testSchema creates all tables needed for testing
const testSchema = `
CREATE TABLE wallet_holdings (account TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE wallet_cash (account TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE last_ticks (symbol TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// each pooled connection would get its own in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	data := map[string]interface{}{"cash": "100000"}
	err := repo.Store(TableWalletCash, "default", data, TTLWalletCash)
	require.NoError(t, err)

	var storedData string
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM wallet_cash WHERE account = ?", "default").Scan(&storedData, &expiresAt)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(storedData), &parsed))
	assert.Equal(t, "100000", parsed["cash"])

	expectedExpires := time.Now().Add(TTLWalletCash).Unix()
	assert.InDelta(t, expectedExpires, expiresAt, 5)
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store(TableWalletHoldings, "default", map[string]string{"version": "1"}, time.Hour))
	require.NoError(t, repo.Store(TableWalletHoldings, "default", map[string]string{"version": "2"}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM wallet_holdings").Scan(&count))
	assert.Equal(t, 1, count)

	result, err := repo.GetIfFresh(TableWalletHoldings, "default")
	require.NoError(t, err)
	require.NotNil(t, result)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.Equal(t, "2", parsed["version"])
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec(
		"INSERT INTO wallet_cash (account, data, expires_at) VALUES (?, ?, ?)",
		"default", `{"status":"expired"}`, expiredAt,
	)
	require.NoError(t, err)

	result, err := repo.GetIfFresh(TableWalletCash, "default")
	require.NoError(t, err)
	assert.Nil(t, result, "Expected nil for expired data")
}

func TestGet_ReturnsStaleData(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec(
		"INSERT INTO wallet_holdings (account, data, expires_at) VALUES (?, ?, ?)",
		"default", `{"status":"stale_but_useful"}`, expiredAt,
	)
	require.NoError(t, err)

	result, err := repo.GetIfFresh(TableWalletHoldings, "default")
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = repo.Get(TableWalletHoldings, "default")
	require.NoError(t, err)
	require.NotNil(t, result, "Get should return stale data")

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.Equal(t, "stale_but_useful", parsed["status"])
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	result, err := repo.Get(TableWalletHoldings, "missing")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store(TableLastTicks, "BTC", map[string]string{"a": "b"}, time.Hour))
	require.NoError(t, repo.Delete(TableLastTicks, "BTC"))

	result, err := repo.Get(TableLastTicks, "BTC")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	table := "wallet_cash; DROP TABLE wallet_cash"

	assert.Error(t, repo.Store(table, "k", 1, time.Hour))
	_, err := repo.Get(table, "k")
	assert.Error(t, err)
	_, err = repo.GetIfFresh(table, "k")
	assert.Error(t, err)
	_, err = repo.GetAllFresh(table)
	assert.Error(t, err)
	assert.Error(t, repo.Delete(table, "k"))
	assert.Error(t, repo.StoreMany(table, map[string]interface{}{"k": 1}, time.Hour))
	_, err = repo.DeleteExpired(table)
	assert.Error(t, err)
}

func TestStoreManyAndGetAllFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.StoreMany(TableLastTicks, map[string]interface{}{
		"BTC": map[string]int{"v": 1},
		"ETH": map[string]int{"v": 2},
	}, time.Hour))
	require.NoError(t, repo.StoreMany(TableLastTicks, nil, time.Hour))

	_, err := db.Exec("INSERT INTO last_ticks (symbol, data, expires_at) VALUES (?, ?, ?)",
		"XRP", `{"v":3}`, time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)

	rows, err := repo.GetAllFresh(TableLastTicks)
	require.NoError(t, err)

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"BTC", "ETH"}, keys)
	assert.JSONEq(t, `{"v":2}`, string(rows["ETH"]))
}

func TestSaveAndLoadTicks(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	receivedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveTicks(map[domain.Symbol]domain.Tick{
		"BTC": {
			Symbol:           "BTC",
			TradePrice:       decimal.RequireFromString("61000000"),
			Change:           domain.ChangeRise,
			SignedChangeRate: 0.012,
			ReceivedAt:       receivedAt,
		},
	}))
	_, err := db.Exec("INSERT INTO last_ticks (symbol, data, expires_at) VALUES (?, ?, ?)",
		"BAD", `not json`, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	ticks, err := repo.LoadTicks()
	require.NoError(t, err)
	require.Len(t, ticks, 1)

	assert.Equal(t, domain.Symbol("BTC"), ticks[0].Symbol)
	assert.True(t, ticks[0].TradePrice.Equal(decimal.RequireFromString("61000000")))
	assert.Equal(t, domain.ChangeRise, ticks[0].Change)
	assert.InDelta(t, 0.012, ticks[0].SignedChangeRate, 1e-12)
	assert.True(t, ticks[0].ReceivedAt.Equal(receivedAt))
}
