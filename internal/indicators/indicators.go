package indicators

import "math"

// TrueRange returns the Wilder true range for a bar given the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(
		high-low,
		math.Max(
			math.Abs(high-prevClose),
			math.Abs(low-prevClose),
		),
	)
}

// ATRSeries calculates a Wilder-smoothed ATR series (alpha = 1/period) aligned
// to the input bars. Entries below the warm-up requirement (period+1 bars) are
// NaN. The first bar has no previous close, so its true range is excluded.
//
// Fewer than 2 bars returns nil rather than an error: the caller treats an
// empty series as insufficient data.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if n < 2 || len(highs) != n || len(lows) != n || period <= 0 {
		return nil
	}

	atr := make([]float64, n)
	for i := range atr {
		atr[i] = math.NaN()
	}

	if n < period+1 {
		return atr
	}

	// Seed with the simple average of the first `period` true ranges.
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += TrueRange(highs[i], lows[i], closes[i-1])
	}
	atr[period] = sum / float64(period)

	alpha := 1.0 / float64(period)
	for i := period + 1; i < n; i++ {
		tr := TrueRange(highs[i], lows[i], closes[i-1])
		atr[i] = atr[i-1] + alpha*(tr-atr[i-1])
	}

	return atr
}

// EMASeries calculates an exponential moving average series aligned to the
// input. Before a full period is available the running simple average is used
// as the seed, so every entry is defined.
func EMASeries(values []float64, period int) []float64 {
	n := len(values)
	if n == 0 || period <= 0 {
		return nil
	}

	out := make([]float64, n)
	multiplier := 2.0 / float64(period+1)

	sum := 0.0
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
			continue
		}
		out[i] = (v-out[i-1])*multiplier + out[i-1]
	}

	return out
}

// SMA calculates the simple moving average of the last `period` values.
func SMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		return average(values)
	}
	return average(values[len(values)-period:])
}

// StdDev calculates the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	avg := average(values)
	sumSquares := 0.0
	for _, v := range values {
		sumSquares += (v - avg) * (v - avg)
	}

	return math.Sqrt(sumSquares / float64(len(values)))
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
