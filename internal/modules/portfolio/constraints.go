package portfolio

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
)

// Config holds the portfolio-level constraint parameters.
type Config struct {
	MaxPositionPct   float64         // Per-position cap as a fraction of equity
	MinPositionValue decimal.Decimal // Positions smaller than this are dropped
}

// CapEvent records one position that was reduced to the per-position cap.
type CapEvent struct {
	InstrumentID   string
	RequestedValue decimal.Decimal
	CappedValue    decimal.Decimal
}

// Result is the constrained portfolio plus the bookkeeping of what the
// constraints changed.
type Result struct {
	Targets       []domain.TargetPosition
	CapEvents     []CapEvent
	Dropped       []string        // Instruments removed for falling under the minimum
	GrossExposure decimal.Decimal // Sum of |target value| as a fraction of equity
	NetExposure   decimal.Decimal // Signed sum of target values as a fraction of equity
}

// Constrainer merges raw targets into a portfolio and applies the
// per-position cap and minimum-value floor. Capping preserves the sign
// of the position; a capped short stays exactly as short as allowed.
type Constrainer struct {
	cfg Config
	log zerolog.Logger
}

// NewConstrainer creates a portfolio constrainer.
func NewConstrainer(cfg Config, log zerolog.Logger) *Constrainer {
	return &Constrainer{
		cfg: cfg,
		log: log.With().Str("module", "portfolio").Logger(),
	}
}

// Apply merges duplicate targets by summing their values, caps each
// merged position at equity * MaxPositionPct, then drops positions whose
// absolute value falls below MinPositionValue. The cap runs before the
// floor: a position capped down below the minimum is dropped, not kept.
func (c *Constrainer) Apply(targets []domain.TargetPosition, equity decimal.Decimal) (Result, error) {
	result := Result{
		Targets:       []domain.TargetPosition{},
		GrossExposure: decimal.Zero,
		NetExposure:   decimal.Zero,
	}
	if equity.LessThanOrEqual(decimal.Zero) {
		return result, fmt.Errorf("cannot constrain portfolio with non-positive equity %s", equity)
	}

	merged := make(map[string]domain.TargetPosition)
	order := make([]string, 0, len(targets))
	for _, t := range targets {
		if err := t.AssetClass.Validate(); err != nil {
			return result, fmt.Errorf("target %s: %w", t.InstrumentID, err)
		}
		existing, ok := merged[t.InstrumentID]
		if !ok {
			merged[t.InstrumentID] = t
			order = append(order, t.InstrumentID)
			continue
		}
		// Duplicates sum; the first occurrence keeps the sizing details.
		existing.TargetValue = existing.TargetValue.Add(t.TargetValue)
		merged[t.InstrumentID] = existing
		c.log.Debug().Str("instrument", t.InstrumentID).Msg("Merged duplicate target")
	}
	sort.Strings(order)

	maxValue := equity.Mul(decimal.NewFromFloat(c.cfg.MaxPositionPct))

	for _, id := range order {
		t := merged[id]
		abs := t.TargetValue.Abs()

		if abs.GreaterThan(maxValue) {
			capped := maxValue
			if t.TargetValue.IsNegative() {
				capped = maxValue.Neg()
			}
			result.CapEvents = append(result.CapEvents, CapEvent{
				InstrumentID:   id,
				RequestedValue: t.TargetValue,
				CappedValue:    capped,
			})
			c.log.Info().
				Str("instrument", id).
				Str("requested", t.TargetValue.String()).
				Str("capped", capped.String()).
				Msg("Position capped")
			t.TargetValue = capped
			abs = maxValue
		}

		if abs.LessThan(c.cfg.MinPositionValue) {
			result.Dropped = append(result.Dropped, id)
			c.log.Debug().
				Str("instrument", id).
				Str("value", t.TargetValue.String()).
				Msg("Position below minimum, dropped")
			continue
		}

		result.Targets = append(result.Targets, t)
		result.GrossExposure = result.GrossExposure.Add(abs)
		result.NetExposure = result.NetExposure.Add(t.TargetValue)
	}

	// Exposures are reported relative to equity, not in dollars.
	result.GrossExposure = result.GrossExposure.Div(equity)
	result.NetExposure = result.NetExposure.Div(equity)

	c.log.Info().
		Int("targets", len(result.Targets)).
		Int("capped", len(result.CapEvents)).
		Int("dropped", len(result.Dropped)).
		Str("gross", result.GrossExposure.String()).
		Str("net", result.NetExposure.String()).
		Msg("Applied portfolio constraints")
	return result, nil
}
