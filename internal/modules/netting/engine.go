package netting

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/alphaledger/internal/domain"
)

// Engine nets per-strategy signals into one conviction per instrument.
//
// Netting is a weighted average, not a sum: each strategy's score is
// scaled by its trust weight and divided by the total weight of the
// strategies that actually reported on the instrument. A strategy that
// stays silent on an instrument neither helps nor hurts it.
type Engine struct {
	weights domain.StrategyWeightTable
	log     zerolog.Logger
}

// NewEngine creates a netting engine. The weight table must already be
// validated; negative weights are a configuration error caught at load.
func NewEngine(weights domain.StrategyWeightTable, log zerolog.Logger) *Engine {
	return &Engine{
		weights: weights,
		log:     log.With().Str("module", "netting").Logger(),
	}
}

// Net collapses signals into one NetConviction per instrument:
//
//	net = sum(score_i * weight_i) / sum(weight_i)
//
// over the signals whose strategy carries a positive weight. Signals from
// strategies missing from the weight table are logged and ignored. An
// instrument whose contributing weights sum to zero produces no
// conviction at all - there is no opinion to act on.
//
// Perfectly opposed signals with equal weights net to exactly zero; the
// conviction is still emitted so downstream consumers can see the
// conflict in ContributingSignals.
func (e *Engine) Net(signals []domain.Signal) []domain.NetConviction {
	type accumulator struct {
		weightedSum float64
		totalWeight float64
		signals     []domain.Signal
	}

	byInstrument := make(map[string]*accumulator)
	for _, sig := range signals {
		weight, known := e.weights.Weight(sig.StrategyName)
		if !known {
			e.log.Warn().
				Str("strategy", sig.StrategyName).
				Str("instrument", sig.InstrumentID).
				Msg("Signal from unweighted strategy, ignoring")
			continue
		}

		acc, ok := byInstrument[sig.InstrumentID]
		if !ok {
			acc = &accumulator{}
			byInstrument[sig.InstrumentID] = acc
		}
		acc.signals = append(acc.signals, sig)
		if weight == 0 {
			// A known strategy weighted to zero is usually configuration
			// drift, not intent. Its signals are kept for traceability but
			// contribute nothing.
			e.log.Warn().
				Str("strategy", sig.StrategyName).
				Str("instrument", sig.InstrumentID).
				Msg("Signal from zero-weighted strategy, excluded from netting")
			continue
		}
		acc.weightedSum += sig.Score * weight
		acc.totalWeight += weight
	}

	instruments := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		instruments = append(instruments, id)
	}
	sort.Strings(instruments)

	convictions := make([]domain.NetConviction, 0, len(instruments))
	for _, id := range instruments {
		acc := byInstrument[id]
		if acc.totalWeight == 0 {
			e.log.Debug().Str("instrument", id).Msg("All contributing strategies weigh zero, no conviction")
			continue
		}
		convictions = append(convictions, domain.NetConviction{
			InstrumentID:        id,
			NetScore:            acc.weightedSum / acc.totalWeight,
			ContributingSignals: acc.signals,
		})
	}

	e.log.Debug().
		Int("signals", len(signals)).
		Int("convictions", len(convictions)).
		Msg("Netted signals")
	return convictions
}
