package signals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/alphaledger/internal/domain"
)

// LobbyingProducer derives signals from lobbying spend disclosures.
// Spend is a long-only influence proxy: instruments are ranked into
// quintiles by total spend in the window and scored by rank. The bottom
// quintile scores zero ("no position"), never negative - low lobbying
// spend is an absence of signal, not a sell.
type LobbyingProducer struct {
	store      domain.AltDataReader
	refData    RefDataService
	windowDays int
	log        zerolog.Logger
}

// NewLobbyingProducer creates a new lobbying spend producer.
func NewLobbyingProducer(store domain.AltDataReader, refData RefDataService, windowDays int, log zerolog.Logger) *LobbyingProducer {
	return &LobbyingProducer{
		store:      store,
		refData:    refData,
		windowDays: windowDays,
		log:        log.With().Str("producer", StrategyLobbying).Logger(),
	}
}

// Name returns the strategy name.
func (p *LobbyingProducer) Name() string { return StrategyLobbying }

// GenerateSignals scores each instrument by its spend quintile:
// quintile q in 1..5 maps to score (q-1)/4, so 0, 0.25, 0.5, 0.75, 1.
func (p *LobbyingProducer) GenerateSignals(ctx context.Context, asOf time.Time) ([]domain.Signal, error) {
	rows, err := p.store.GetRows(ctx, domain.SourceLobbying, asOf.AddDate(0, 0, -p.windowDays), asOf)
	if err != nil {
		return nil, fmt.Errorf("lobbying producer: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Signal{}, nil
	}

	spendByInstrument := make(map[string]decimal.Decimal)
	for _, row := range rows {
		spendByInstrument[row.InstrumentID] = spendByInstrument[row.InstrumentID].Add(row.TradeSize.Abs())
	}

	instruments := make([]string, 0, len(spendByInstrument))
	spends := make([]float64, 0, len(spendByInstrument))
	for id, spend := range spendByInstrument {
		instruments = append(instruments, id)
		f, _ := spend.Float64()
		spends = append(spends, f)
	}
	sort.Strings(instruments)

	// Quintile boundaries over the cross-section of spends.
	sortedSpends := append([]float64(nil), spends...)
	sort.Float64s(sortedSpends)
	boundaries := [4]float64{
		stat.Quantile(0.2, stat.Empirical, sortedSpends, nil),
		stat.Quantile(0.4, stat.Empirical, sortedSpends, nil),
		stat.Quantile(0.6, stat.Empirical, sortedSpends, nil),
		stat.Quantile(0.8, stat.Empirical, sortedSpends, nil),
	}

	signals := make([]domain.Signal, 0, len(instruments))
	for _, id := range instruments {
		spend, _ := spendByInstrument[id].Float64()
		quintile := quintileRank(spend, boundaries)
		score := domain.ClampScore(float64(quintile-1) / 4.0)

		metadata := map[string]interface{}{
			"total_spend": spendByInstrument[id].String(),
			"quintile":    quintile,
			"sector":      p.lookupSector(ctx, id),
		}

		sig, err := domain.NewSignal(id, StrategyLobbying, score, metadata, asOf)
		if err != nil {
			p.log.Warn().Err(err).Str("instrument", id).Msg("Skipping invalid instrument")
			continue
		}
		signals = append(signals, sig)
	}

	p.log.Debug().Int("rows", len(rows)).Int("signals", len(signals)).Msg("Generated lobbying spend signals")
	return signals, nil
}

// quintileRank returns 1..5 for a spend against the quintile boundaries.
func quintileRank(spend float64, boundaries [4]float64) int {
	rank := 1
	for _, b := range boundaries {
		if spend > b {
			rank++
		}
	}
	return rank
}

// lookupSector resolves the sector for audit metadata. Unknown sectors
// degrade to "unknown" - the lookup never fails the signal set.
func (p *LobbyingProducer) lookupSector(ctx context.Context, instrumentID string) string {
	if p.refData == nil {
		return "unknown"
	}
	sector, err := p.refData.GetSector(ctx, instrumentID)
	if err != nil || sector == nil {
		return "unknown"
	}
	return *sector
}
