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

// insiderClusterMin is the distinct-insider count at which a buy cluster
// gets amplified. Multiple insiders buying together is a well-documented
// stronger signal than a lone purchase.
const (
	insiderClusterMin   = 3
	insiderClusterBoost = 1.25
)

// InsiderProducer derives signals from corporate insider transactions.
// The heuristic is notional-weighted: score follows the net dollar flow
// direction, amplified when several insiders buy in the same window.
type InsiderProducer struct {
	store      domain.AltDataReader
	windowDays int
	log        zerolog.Logger
}

// NewInsiderProducer creates a new insider trades producer.
func NewInsiderProducer(store domain.AltDataReader, windowDays int, log zerolog.Logger) *InsiderProducer {
	return &InsiderProducer{
		store:      store,
		windowDays: windowDays,
		log:        log.With().Str("producer", StrategyInsider).Logger(),
	}
}

// Name returns the strategy name.
func (p *InsiderProducer) Name() string { return StrategyInsider }

// GenerateSignals produces one signal per instrument with insider
// activity in the window.
//
// Score heuristic per instrument:
//
//	flow  = (buy notional - sell notional) / (buy notional + sell notional)
//	score = clamp(flow * 1.25) when >= 3 distinct insiders bought, else clamp(flow)
func (p *InsiderProducer) GenerateSignals(ctx context.Context, asOf time.Time) ([]domain.Signal, error) {
	rows, err := p.store.GetRows(ctx, domain.SourceInsiderTrades, asOf.AddDate(0, 0, -p.windowDays), asOf)
	if err != nil {
		return nil, fmt.Errorf("insider producer: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Signal{}, nil
	}

	type activity struct {
		buyNotional  decimal.Decimal
		sellNotional decimal.Decimal
		buyers       map[string]bool
		trades       int
	}
	byInstrument := make(map[string]*activity)

	for _, row := range rows {
		a, ok := byInstrument[row.InstrumentID]
		if !ok {
			a = &activity{buyers: make(map[string]bool)}
			byInstrument[row.InstrumentID] = a
		}
		a.trades++
		switch row.TransactionType {
		case "buy":
			a.buyNotional = a.buyNotional.Add(row.TradeSize.Abs())
			a.buyers[row.TraderIdentity] = true
		case "sell":
			a.sellNotional = a.sellNotional.Add(row.TradeSize.Abs())
		}
	}

	instruments := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		instruments = append(instruments, id)
	}
	sort.Strings(instruments)

	signals := make([]domain.Signal, 0, len(instruments))
	for _, id := range instruments {
		a := byInstrument[id]
		total := a.buyNotional.Add(a.sellNotional)
		if total.IsZero() {
			continue
		}

		flow, _ := a.buyNotional.Sub(a.sellNotional).Div(total).Float64()
		if len(a.buyers) >= insiderClusterMin && flow > 0 {
			flow *= insiderClusterBoost
		}
		score := domain.ClampScore(flow)

		sig, err := domain.NewSignal(id, StrategyInsider, score, map[string]interface{}{
			"trade_count":     a.trades,
			"distinct_buyers": len(a.buyers),
			"buy_notional":    a.buyNotional.String(),
			"sell_notional":   a.sellNotional.String(),
		}, asOf)
		if err != nil {
			p.log.Warn().Err(err).Str("instrument", id).Msg("Skipping invalid instrument")
			continue
		}
		signals = append(signals, sig)
	}

	p.log.Debug().Int("rows", len(rows)).Int("signals", len(signals)).Msg("Generated insider trade signals")
	return signals, nil
}
