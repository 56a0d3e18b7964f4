package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alphaledger/internal/clientdata"
	"github.com/aristath/alphaledger/internal/domain"
)

const cacheSchema = `
CREATE TABLE refdata_sector (symbol TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE refdata_revenue (symbol TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE current_prices (symbol TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE daily_bars (symbol TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
`

func setupCache(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(cacheSchema)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

// Mock market data client

type mockMarketDataClient struct {
	bars       map[string][]domain.PriceBar
	prices     map[string]decimal.Decimal
	barCalls   int
	priceCalls int
	err        error
}

func (m *mockMarketDataClient) GetDailyBars(ctx context.Context, instrumentIDs []string, start, end time.Time) (map[string][]domain.PriceBar, error) {
	m.barCalls++
	if m.err != nil {
		return nil, m.err
	}
	result := make(map[string][]domain.PriceBar)
	for _, id := range instrumentIDs {
		if bars, ok := m.bars[id]; ok {
			result[id] = bars
		}
	}
	return result, nil
}

func (m *mockMarketDataClient) GetCurrentPrice(ctx context.Context, instrumentID string) (*decimal.Decimal, error) {
	m.priceCalls++
	if m.err != nil {
		return nil, m.err
	}
	if price, ok := m.prices[instrumentID]; ok {
		return &price, nil
	}
	return nil, nil
}

func testBars(n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, 0, n)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bars = append(bars, domain.PriceBar{
			High:      101,
			Low:       99,
			Close:     100,
			Timestamp: day.AddDate(0, 0, i),
		})
	}
	return bars
}

func TestGetDailyBarsBatchesMissesInOneCall(t *testing.T) {
	cache := setupCache(t)
	client := &mockMarketDataClient{bars: map[string][]domain.PriceBar{
		"TSLA": testBars(15),
		"KO":   testBars(15),
	}}

	svc := NewPriceService(client, cache, zerolog.Nop())

	bars, err := svc.GetDailyBars(context.Background(), []string{"TSLA", "KO", "GONE"}, time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)

	assert.Len(t, bars["TSLA"], 15)
	assert.Len(t, bars["KO"], 15)
	assert.NotContains(t, bars, "GONE")
	assert.Equal(t, 1, client.barCalls, "all misses should be fetched in one batch")
}

func TestGetDailyBarsServesCacheWithoutClientCall(t *testing.T) {
	cache := setupCache(t)
	client := &mockMarketDataClient{bars: map[string][]domain.PriceBar{"TSLA": testBars(15)}}

	svc := NewPriceService(client, cache, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.GetDailyBars(ctx, []string{"TSLA"}, time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)

	bars, err := svc.GetDailyBars(ctx, []string{"TSLA"}, time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)

	assert.Len(t, bars["TSLA"], 15)
	assert.Equal(t, 1, client.barCalls, "second lookup should hit the cache")
}

func TestGetDailyBarsDegradesOnClientError(t *testing.T) {
	cache := setupCache(t)
	client := &mockMarketDataClient{err: errors.New("api down")}

	svc := NewPriceService(client, cache, zerolog.Nop())

	bars, err := svc.GetDailyBars(context.Background(), []string{"TSLA"}, time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err, "bar fetch failure must not abort the pass")
	assert.Empty(t, bars)
}

func TestGetCurrentPriceFetchesAndCaches(t *testing.T) {
	cache := setupCache(t)
	client := &mockMarketDataClient{prices: map[string]decimal.Decimal{"TSLA": decimal.NewFromFloat(245.50)}}

	svc := NewPriceService(client, cache, zerolog.Nop())
	ctx := context.Background()

	price, err := svc.GetCurrentPrice(ctx, "TSLA")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromFloat(245.50)))

	_, err = svc.GetCurrentPrice(ctx, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, 1, client.priceCalls, "second lookup should hit the cache")
}

func TestGetCurrentPriceUnavailable(t *testing.T) {
	cache := setupCache(t)
	client := &mockMarketDataClient{}

	svc := NewPriceService(client, cache, zerolog.Nop())

	price, err := svc.GetCurrentPrice(context.Background(), "DLIST")
	require.NoError(t, err)
	assert.Nil(t, price, "nil price is the expected answer for delisted instruments")
}

func TestGetCurrentPriceNoClientNoCache(t *testing.T) {
	cache := setupCache(t)

	svc := NewPriceService(nil, cache, zerolog.Nop())

	price, err := svc.GetCurrentPrice(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Nil(t, price)
}
