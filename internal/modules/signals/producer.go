// Package signals contains the signal producers: one per alternative-data
// source, each turning raw store rows into normalized domain.Signal values.
//
// Producer contract:
//   - "no data" returns an empty slice, never an error
//   - every heuristic clamps its raw output into [-1, 1] before
//     constructing a Signal
//   - unknown reference data is a neutral default, not a failure
//
// Producers have no shared mutable state and may run in parallel.
package signals

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/config"
	"github.com/aristath/alphaledger/internal/domain"
)

// Strategy names as they appear in the weight table.
const (
	StrategyCongress  = "congress"
	StrategyInsider   = "insider"
	StrategyLobbying  = "lobbying"
	StrategyContracts = "contracts"
)

// Producer generates signals for one alternative-data source.
type Producer interface {
	// Name returns the strategy name this producer emits signals under.
	Name() string

	// GenerateSignals produces signals from store rows in the configured
	// window ending at asOf. Returns an empty slice when there is no data.
	GenerateSignals(ctx context.Context, asOf time.Time) ([]domain.Signal, error)
}

// RefDataService is the subset of reference data lookups producers use.
// nil results mean "unknown" and must degrade gracefully.
type RefDataService interface {
	GetSector(ctx context.Context, instrumentID string) (*string, error)
	GetAnnualRevenue(ctx context.Context, instrumentID string) (*decimal.Decimal, error)
}

// NewRegistry builds the static producer table. Strategies are a closed
// set wired at startup; there is no runtime registration.
func NewRegistry(
	store domain.AltDataReader,
	refData RefDataService,
	cfg *config.TradingConfig,
	log zerolog.Logger,
) []Producer {
	return []Producer{
		NewCongressProducer(store, cfg.SignalWindowDays, log),
		NewInsiderProducer(store, cfg.SignalWindowDays, log),
		NewLobbyingProducer(store, refData, cfg.SignalWindowDays, log),
		NewContractsProducer(store, refData, cfg.SignalWindowDays, cfg.IncludeUnknownRevenue, log),
	}
}
