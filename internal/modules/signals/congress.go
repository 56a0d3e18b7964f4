package signals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/alphaledger/internal/domain"
)

// congressClusterSize is the number of distinct members at which a
// purchase cluster reaches full conviction.
const congressClusterSize = 5.0

// CongressProducer derives signals from congressional trade disclosures.
// The heuristic rewards breadth: many distinct members trading the same
// direction is a stronger signal than one member trading big.
type CongressProducer struct {
	store      domain.AltDataReader
	windowDays int
	log        zerolog.Logger
}

// NewCongressProducer creates a new congressional trades producer.
func NewCongressProducer(store domain.AltDataReader, windowDays int, log zerolog.Logger) *CongressProducer {
	return &CongressProducer{
		store:      store,
		windowDays: windowDays,
		log:        log.With().Str("producer", StrategyCongress).Logger(),
	}
}

// Name returns the strategy name.
func (p *CongressProducer) Name() string { return StrategyCongress }

// GenerateSignals produces one signal per instrument with congressional
// activity in the window.
//
// Score heuristic per instrument:
//
//	direction = (distinct buyers - distinct sellers) / (distinct buyers + distinct sellers)
//	breadth   = min(1, distinct traders / 5)
//	score     = clamp(direction * breadth)
func (p *CongressProducer) GenerateSignals(ctx context.Context, asOf time.Time) ([]domain.Signal, error) {
	rows, err := p.store.GetRows(ctx, domain.SourceCongressionalTrades, asOf.AddDate(0, 0, -p.windowDays), asOf)
	if err != nil {
		return nil, fmt.Errorf("congress producer: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Signal{}, nil
	}

	type activity struct {
		buyers  map[string]bool
		sellers map[string]bool
		trades  int
	}
	byInstrument := make(map[string]*activity)

	for _, row := range rows {
		a, ok := byInstrument[row.InstrumentID]
		if !ok {
			a = &activity{buyers: make(map[string]bool), sellers: make(map[string]bool)}
			byInstrument[row.InstrumentID] = a
		}
		a.trades++
		switch row.TransactionType {
		case "buy":
			a.buyers[row.TraderIdentity] = true
		case "sell":
			a.sellers[row.TraderIdentity] = true
		default:
			p.log.Debug().Str("type", row.TransactionType).Str("instrument", row.InstrumentID).Msg("Ignoring unrecognized transaction type")
		}
	}

	// Deterministic output order for stable logs and tests.
	instruments := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		instruments = append(instruments, id)
	}
	sort.Strings(instruments)

	signals := make([]domain.Signal, 0, len(instruments))
	for _, id := range instruments {
		a := byInstrument[id]
		buyers := len(a.buyers)
		sellers := len(a.sellers)
		if buyers+sellers == 0 {
			continue
		}

		direction := float64(buyers-sellers) / float64(buyers+sellers)
		breadth := float64(buyers+sellers) / congressClusterSize
		if breadth > 1 {
			breadth = 1
		}
		score := domain.ClampScore(direction * breadth)

		sig, err := domain.NewSignal(id, StrategyCongress, score, map[string]interface{}{
			"trade_count":      a.trades,
			"distinct_buyers":  buyers,
			"distinct_sellers": sellers,
		}, asOf)
		if err != nil {
			// Bad symbols in the store are a data-quality condition: skip
			// the instrument, keep the batch.
			p.log.Warn().Err(err).Str("instrument", id).Msg("Skipping invalid instrument")
			continue
		}
		signals = append(signals, sig)
	}

	p.log.Debug().Int("rows", len(rows)).Int("signals", len(signals)).Msg("Generated congressional trade signals")
	return signals, nil
}
