// Package domain contains the core types shared across the signal,
// sizing, and rebalancing packages. The domain layer is pure: no
// infrastructure dependencies beyond the decimal type used for money.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Score bounds for signals and net convictions.
const (
	MinScore = -1.0
	MaxScore = 1.0
)

// Signal is a single strategy's directional opinion about one instrument,
// scored -1.0 (max sell conviction) to +1.0 (max buy conviction).
// Signals are immutable: created once per producer invocation, consumed
// by netting, discarded after the pass.
type Signal struct {
	InstrumentID string
	StrategyName string
	Score        float64
	Metadata     map[string]interface{} // Provenance only - never read by netting/sizing math
	GeneratedAt  time.Time
}

// NewSignal constructs a validated Signal. Out-of-range scores and
// malformed instrument symbols are programming errors upstream, so
// construction fails loudly instead of clamping.
func NewSignal(instrumentID, strategyName string, score float64, metadata map[string]interface{}, generatedAt time.Time) (Signal, error) {
	if err := ValidateInstrumentID(instrumentID); err != nil {
		return Signal{}, err
	}
	if strategyName == "" {
		return Signal{}, fmt.Errorf("strategy name is required")
	}
	if score < MinScore || score > MaxScore {
		return Signal{}, fmt.Errorf("signal score %.4f for %s out of range [%.1f, %.1f]", score, instrumentID, MinScore, MaxScore)
	}
	return Signal{
		InstrumentID: instrumentID,
		StrategyName: strategyName,
		Score:        score,
		Metadata:     metadata,
		GeneratedAt:  generatedAt,
	}, nil
}

// ValidateInstrumentID checks the symbol format: 1-5 uppercase alphabetic
// characters (US equity ticker convention).
func ValidateInstrumentID(id string) error {
	if len(id) < 1 || len(id) > 5 {
		return fmt.Errorf("instrument id %q must be 1-5 characters", id)
	}
	for _, r := range id {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("instrument id %q must be uppercase alphabetic", id)
		}
	}
	return nil
}

// ClampScore bounds a raw heuristic value into the valid score range.
// Producers use this on derived scores; it is NOT applied to scores that
// are already supposed to be in range (those fail validation instead).
func ClampScore(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// NetConviction is the netted opinion for one instrument across all
// strategies. Computed fresh on every netting pass, never persisted as a
// primary record.
type NetConviction struct {
	InstrumentID        string
	NetScore            float64
	ContributingSignals []Signal // Ordered as received, for traceability
}

// AssetClass identifies the instrument type of a target position.
type AssetClass string

// Currently only equities are sized. Anything else is a hard error at
// the sizing boundary, not a silent skip.
const AssetClassEquity AssetClass = "equity"

// Validate returns an error for unsupported asset classes.
func (a AssetClass) Validate() error {
	if a != AssetClassEquity {
		return fmt.Errorf("unsupported asset class %q", a)
	}
	return nil
}

// SizingDetails records the inputs that produced a target position, for
// audit and debugging.
type SizingDetails struct {
	NetScore      float64
	ATR           float64 // Volatility estimate used (risk estimate, float is fine)
	StopDistance  float64 // Implied stop distance (one ATR)
	Shares        decimal.Decimal
	CurrentPrice  decimal.Decimal
	RiskTargetPct float64
	ATRFallback   bool // True when ATR was derived from price * default fraction
}

// TargetPosition is the final sizing output for one instrument.
// TargetValue is signed: positive = long, negative = short/reduce.
type TargetPosition struct {
	InstrumentID string
	AssetClass   AssetClass
	TargetValue  decimal.Decimal
	Details      SizingDetails
}

// StrategyWeightTable maps strategy names to non-negative trust weights.
// A strategy absent from the table or weighted zero contributes nothing
// to netting.
type StrategyWeightTable map[string]float64

// Weight returns the weight for a strategy and whether it is known.
func (t StrategyWeightTable) Weight(strategy string) (float64, bool) {
	w, ok := t[strategy]
	return w, ok
}

// Validate rejects negative weights; zero weights are allowed (they
// silence a strategy without removing its configuration).
func (t StrategyWeightTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("strategy weight table is empty")
	}
	for name, w := range t {
		if w < 0 {
			return fmt.Errorf("strategy %q has negative weight %.4f", name, w)
		}
	}
	return nil
}
