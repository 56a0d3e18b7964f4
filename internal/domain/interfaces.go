package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BrokerClient defines broker-agnostic portfolio and trading operations.
// All broker access goes through this interface; the wire protocol behind
// it is an external collaborator.
type BrokerClient interface {
	// GetCurrentPositions returns all currently held positions.
	GetCurrentPositions() ([]BrokerPosition, error)

	// GetAccountEquity returns total account equity. A failure here is
	// fatal for a rebalancing pass - nothing can be sized without it.
	GetAccountEquity() (decimal.Decimal, error)

	// PlaceOrder submits a market order for the given quantity.
	PlaceOrder(instrumentID, side string, quantity decimal.Decimal) (*BrokerOrderResult, error)

	// ClosePosition fully liquidates a held position.
	ClosePosition(instrumentID string) (*BrokerOrderResult, error)

	// CancelAllOpenOrders cancels every open order and returns the count.
	CancelAllOpenOrders() (int, error)
}

// PriceBar is one daily OHLC bar. Bar values stay float64 - they feed the
// volatility estimate, not ledger arithmetic.
type PriceBar struct {
	High      float64
	Low       float64
	Close     float64
	Timestamp time.Time
}

// MarketDataClient provides daily bars and current prices. Bar fetches are
// batchable across instruments to bound external API load.
type MarketDataClient interface {
	// GetDailyBars fetches daily bars for all requested instruments in one
	// call. Instruments with no data are simply absent from the result map.
	GetDailyBars(ctx context.Context, instrumentIDs []string, start, end time.Time) (map[string][]PriceBar, error)

	// GetCurrentPrice returns the latest price, or nil when unavailable
	// (delisted, halted, unknown symbol). nil is an expected response.
	GetCurrentPrice(ctx context.Context, instrumentID string) (*decimal.Decimal, error)
}

// ReferenceDataClient provides supplementary company reference data.
// nil results are valid, expected responses requiring graceful fallback.
type ReferenceDataClient interface {
	GetSector(ctx context.Context, instrumentID string) (*string, error)
	GetAnnualRevenue(ctx context.Context, instrumentID string) (*decimal.Decimal, error)
}

// AltDataReader provides read-only access to the alternative-data store.
// Producers query by source and transaction-date window.
type AltDataReader interface {
	GetRows(ctx context.Context, source string, from, to time.Time) ([]AltDataRow, error)
}
