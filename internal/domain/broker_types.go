package domain

// Broker-agnostic types for portfolio state and order placement.
// These abstract away broker-specific implementations (Alpaca, IBKR, paper).

import "github.com/shopspring/decimal"

// BrokerPosition represents a currently held position as reported by the broker.
type BrokerPosition struct {
	InstrumentID string          // Security symbol
	Quantity     decimal.Decimal // Number of shares held (negative for shorts)
	MarketValue  decimal.Decimal // Signed position value in account currency
}

// BrokerOrderResult represents the result of placing an order.
type BrokerOrderResult struct {
	OrderID      string          // Broker order confirmation ID
	InstrumentID string          // Security symbol
	Side         string          // "BUY" or "SELL"
	Quantity     decimal.Decimal // Submitted quantity
	Notional     decimal.Decimal // Submitted notional value, when quantity is derived
}

// Order sides as the broker interface expects them.
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// AltDataRow is one row of the alternative-data store: a single observed
// transaction or spend record from one source.
type AltDataRow struct {
	InstrumentID    string
	TraderIdentity  string // Politician, insider, or registrant name
	TransactionType string // "buy", "sell", "spend", "award"
	TransactionDate string // YYYY-MM-DD
	TradeSize       decimal.Decimal
	Source          string // e.g. "congressional_trades"
}

// Alternative-data source identifiers as stored in the source column.
const (
	SourceCongressionalTrades = "congressional_trades"
	SourceInsiderTrades       = "insider_trades"
	SourceLobbying            = "lobbying"
	SourceGovernmentContracts = "government_contracts"
)
