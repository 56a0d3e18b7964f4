package signals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
)

// materialityCap is the contract-value-to-revenue ratio at which a
// contract award reaches full conviction. A 10%-of-revenue award is
// already transformative for most issuers.
const materialityCap = 0.10

// unknownRevenueScore is the reduced default used when annual revenue is
// unavailable and IncludeUnknownRevenue is enabled.
const unknownRevenueScore = 0.25

// ContractsProducer derives signals from government contract awards,
// scored by materiality: award value as a fraction of the issuer's annual
// revenue. Whether an award with unknown revenue still produces a signal
// is an explicit policy flag, not an accident of the lookup failing.
type ContractsProducer struct {
	store                 domain.AltDataReader
	refData               RefDataService
	windowDays            int
	includeUnknownRevenue bool
	log                   zerolog.Logger
}

// NewContractsProducer creates a new government contracts producer.
func NewContractsProducer(store domain.AltDataReader, refData RefDataService, windowDays int, includeUnknownRevenue bool, log zerolog.Logger) *ContractsProducer {
	l := log.With().Str("producer", StrategyContracts).Logger()
	// Surface the permissive policy in operation so configuration drift
	// is visible from logs alone.
	l.Info().Bool("include_unknown_revenue", includeUnknownRevenue).Msg("Contracts producer materiality policy")
	return &ContractsProducer{
		store:                 store,
		refData:               refData,
		windowDays:            windowDays,
		includeUnknownRevenue: includeUnknownRevenue,
		log:                   l,
	}
}

// Name returns the strategy name.
func (p *ContractsProducer) Name() string { return StrategyContracts }

// GenerateSignals produces one signal per instrument with contract awards
// in the window.
//
// Score heuristic per instrument:
//
//	materiality = total award value / annual revenue
//	score       = clamp(materiality / 0.10)
//
// Unknown revenue: score 0.25 when IncludeUnknownRevenue, else skipped.
func (p *ContractsProducer) GenerateSignals(ctx context.Context, asOf time.Time) ([]domain.Signal, error) {
	rows, err := p.store.GetRows(ctx, domain.SourceGovernmentContracts, asOf.AddDate(0, 0, -p.windowDays), asOf)
	if err != nil {
		return nil, fmt.Errorf("contracts producer: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Signal{}, nil
	}

	type activity struct {
		totalValue decimal.Decimal
		awards     int
	}
	byInstrument := make(map[string]*activity)
	for _, row := range rows {
		a, ok := byInstrument[row.InstrumentID]
		if !ok {
			a = &activity{}
			byInstrument[row.InstrumentID] = a
		}
		a.totalValue = a.totalValue.Add(row.TradeSize.Abs())
		a.awards++
	}

	instruments := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		instruments = append(instruments, id)
	}
	sort.Strings(instruments)

	signals := make([]domain.Signal, 0, len(instruments))
	for _, id := range instruments {
		a := byInstrument[id]
		if a.totalValue.IsZero() {
			continue
		}

		revenue := p.lookupRevenue(ctx, id)

		var score float64
		metadata := map[string]interface{}{
			"award_count": a.awards,
			"total_value": a.totalValue.String(),
		}

		if revenue == nil || revenue.IsZero() {
			if !p.includeUnknownRevenue {
				p.log.Debug().Str("instrument", id).Msg("Skipping contract award with unknown revenue")
				continue
			}
			score = unknownRevenueScore
			metadata["materiality"] = "unknown"
		} else {
			materiality, _ := a.totalValue.Div(*revenue).Float64()
			score = domain.ClampScore(materiality / materialityCap)
			metadata["materiality"] = fmt.Sprintf("%.4f", materiality)
		}

		sig, err := domain.NewSignal(id, StrategyContracts, score, metadata, asOf)
		if err != nil {
			p.log.Warn().Err(err).Str("instrument", id).Msg("Skipping invalid instrument")
			continue
		}
		signals = append(signals, sig)
	}

	p.log.Debug().Int("rows", len(rows)).Int("signals", len(signals)).Msg("Generated government contract signals")
	return signals, nil
}

// lookupRevenue resolves annual revenue; lookup failures degrade to
// unknown rather than failing the signal set.
func (p *ContractsProducer) lookupRevenue(ctx context.Context, instrumentID string) *decimal.Decimal {
	if p.refData == nil {
		return nil
	}
	revenue, err := p.refData.GetAnnualRevenue(ctx, instrumentID)
	if err != nil {
		p.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Revenue lookup failed, treating as unknown")
		return nil
	}
	return revenue
}
