package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateATR calculates the Average True Range over the last `lookback`
// daily bars, as a simple mean of true ranges (not Wilder smoothing, which
// is why talib.Atr is not used here).
//
// True range per bar:
//
//	TR = max(high-low, |high-prevClose|, |low-prevClose|)
//
// Args:
//
//	highs, lows, closes: aligned arrays of daily bar values, oldest first
//	lookback: number of true ranges to average (typically 14)
//
// Returns:
//
//	Current ATR value or nil if fewer than lookback+1 bars are available
func CalculateATR(highs, lows, closes []float64, lookback int) *float64 {
	if lookback < 1 {
		return nil
	}
	n := len(closes)
	if n < lookback+1 || len(highs) != n || len(lows) != n {
		return nil
	}

	// True range needs the previous close, so the series is one shorter
	// than the bar arrays.
	trueRanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		trueRanges = append(trueRanges, tr)
	}

	// Simple mean of the last N true ranges
	sma := talib.Sma(trueRanges, lookback)
	if len(sma) == 0 {
		return nil
	}

	result := sma[len(sma)-1]
	if isNaN(result) {
		return nil
	}
	return &result
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
