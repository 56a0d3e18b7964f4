package sizing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
	"github.com/aristath/alphaledger/pkg/formulas"
)

// PriceReader is the slice of the price service the sizer needs.
type PriceReader interface {
	GetDailyBars(ctx context.Context, instrumentIDs []string, start, end time.Time) (map[string][]domain.PriceBar, error)
	GetCurrentPrice(ctx context.Context, instrumentID string) (*decimal.Decimal, error)
}

// Config holds the risk parameters for volatility-based sizing.
type Config struct {
	RiskTargetPct             float64 // Fraction of equity risked per position (e.g. 0.01)
	ATRLookback               int     // Bars in the ATR window
	DefaultVolatilityFraction float64 // ATR fallback as a fraction of price
}

// Report summarizes what happened to convictions that did not become
// targets, so a pass can explain its own output.
type Report struct {
	SkippedZeroScore int
	SkippedBlocked   int
	BlockedThisPass  int
	ATRFallbacks     int
}

// Sizer converts net convictions into dollar-denominated target
// positions using volatility-based position sizing: the share count is
// chosen so that a one-ATR adverse move costs the configured fraction of
// account equity. Volatile instruments get fewer shares for the same
// conviction.
type Sizer struct {
	prices     PriceReader
	exclusions *ExclusionList
	cfg        Config
	log        zerolog.Logger
}

// NewSizer creates a volatility-based position sizer.
func NewSizer(prices PriceReader, exclusions *ExclusionList, cfg Config, log zerolog.Logger) *Sizer {
	return &Sizer{
		prices:     prices,
		exclusions: exclusions,
		cfg:        cfg,
		log:        log.With().Str("module", "sizing").Logger(),
	}
}

// Size produces one target position per actionable conviction.
//
// Per instrument:
//
//	risk        = equity * RiskTargetPct
//	raw_shares  = floor(risk / ATR)
//	shares      = floor(raw_shares * |net score|)
//	target      = sign(net score) * shares * current price
//
// ATR is a simple mean of true ranges over the lookback window; with
// fewer than lookback+1 bars it falls back to price * DefaultVolatilityFraction
// and the target is flagged. A conviction with no current price cannot
// be sized at all: the instrument is blocked and skipped, and stays
// skipped on later passes until the block expires.
func (s *Sizer) Size(ctx context.Context, convictions []domain.NetConviction, equity decimal.Decimal, asOf time.Time) ([]domain.TargetPosition, Report, error) {
	var report Report
	if len(convictions) == 0 {
		return []domain.TargetPosition{}, report, nil
	}
	if equity.LessThanOrEqual(decimal.Zero) {
		return nil, report, fmt.Errorf("cannot size positions with non-positive equity %s", equity)
	}

	actionable := make([]domain.NetConviction, 0, len(convictions))
	for _, c := range convictions {
		if c.NetScore == 0 {
			report.SkippedZeroScore++
			continue
		}
		blocked, err := s.exclusions.IsBlocked(c.InstrumentID)
		if err != nil {
			return nil, report, fmt.Errorf("failed to check exclusion list: %w", err)
		}
		if blocked {
			report.SkippedBlocked++
			s.log.Debug().Str("instrument", c.InstrumentID).Msg("Skipping blocked instrument")
			continue
		}
		actionable = append(actionable, c)
	}
	if len(actionable) == 0 {
		return []domain.TargetPosition{}, report, nil
	}

	instruments := make([]string, 0, len(actionable))
	for _, c := range actionable {
		instruments = append(instruments, c.InstrumentID)
	}
	// Calendar window generous enough to yield lookback+1 trading days.
	barsStart := asOf.AddDate(0, 0, -(s.cfg.ATRLookback*2 + 10))
	barsByInstrument, err := s.prices.GetDailyBars(ctx, instruments, barsStart, asOf)
	if err != nil {
		return nil, report, fmt.Errorf("failed to fetch daily bars: %w", err)
	}

	riskBudget := equity.Mul(decimal.NewFromFloat(s.cfg.RiskTargetPct))

	targets := make([]domain.TargetPosition, 0, len(actionable))
	for _, c := range actionable {
		price, err := s.prices.GetCurrentPrice(ctx, c.InstrumentID)
		if err != nil {
			return nil, report, fmt.Errorf("failed to fetch price for %s: %w", c.InstrumentID, err)
		}
		if price == nil || price.LessThanOrEqual(decimal.Zero) {
			if err := s.exclusions.Block(c.InstrumentID, "no current price available"); err != nil {
				return nil, report, err
			}
			report.BlockedThisPass++
			continue
		}

		atr, fallback := s.resolveATR(c.InstrumentID, barsByInstrument[c.InstrumentID], *price)
		if fallback {
			report.ATRFallbacks++
		}
		if atr <= 0 {
			// Zero volatility estimate would size an unbounded position.
			if err := s.exclusions.Block(c.InstrumentID, "non-positive volatility estimate"); err != nil {
				return nil, report, err
			}
			report.BlockedThisPass++
			continue
		}

		atrDec := decimal.NewFromFloat(atr)
		rawShares := riskBudget.Div(atrDec).Floor()
		shares := rawShares.Mul(decimal.NewFromFloat(math.Abs(c.NetScore))).Floor()
		if shares.IsZero() {
			report.SkippedZeroScore++
			s.log.Debug().
				Str("instrument", c.InstrumentID).
				Float64("atr", atr).
				Msg("Conviction too small to buy a single share")
			continue
		}

		targetValue := shares.Mul(*price)
		if c.NetScore < 0 {
			targetValue = targetValue.Neg()
		}

		targets = append(targets, domain.TargetPosition{
			InstrumentID: c.InstrumentID,
			AssetClass:   domain.AssetClassEquity,
			TargetValue:  targetValue,
			Details: domain.SizingDetails{
				NetScore:      c.NetScore,
				ATR:           atr,
				StopDistance:  atr,
				Shares:        shares,
				CurrentPrice:  *price,
				RiskTargetPct: s.cfg.RiskTargetPct,
				ATRFallback:   fallback,
			},
		})
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].InstrumentID < targets[j].InstrumentID
	})

	s.log.Info().
		Int("convictions", len(convictions)).
		Int("targets", len(targets)).
		Int("blocked", report.BlockedThisPass).
		Int("atr_fallbacks", report.ATRFallbacks).
		Msg("Sized target positions")
	return targets, report, nil
}

// resolveATR computes the ATR from bars, falling back to a fixed
// fraction of price when history is too short.
func (s *Sizer) resolveATR(instrumentID string, bars []domain.PriceBar, price decimal.Decimal) (float64, bool) {
	highs := make([]float64, 0, len(bars))
	lows := make([]float64, 0, len(bars))
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		highs = append(highs, b.High)
		lows = append(lows, b.Low)
		closes = append(closes, b.Close)
	}

	if atr := formulas.CalculateATR(highs, lows, closes, s.cfg.ATRLookback); atr != nil {
		return *atr, false
	}

	priceF, _ := price.Float64()
	s.log.Debug().
		Str("instrument", instrumentID).
		Int("bars", len(bars)).
		Msg("Insufficient history for ATR, using price fraction fallback")
	return priceF * s.cfg.DefaultVolatilityFraction, true
}
