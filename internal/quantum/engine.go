package quantum

import (
	"errors"
	"fmt"
	"math"

	"github.com/web3guy0/quantbot/internal/indicators"
)

// HFloor is the epsilon floor for the quantum step. Below it the level is
// undefined and reported as 0. Zero ATR / zero h are documented degenerate
// states, not errors.
const HFloor = 1e-8

// ErrInsufficientData is returned when a bar window is shorter than the
// warm-up requirement. Callers degrade the cycle to WAIT.
var ErrInsufficientData = errors.New("quantum: insufficient data")

// Config holds the engine parameters for one evaluation.
type Config struct {
	ATRPeriod  int     // ATR smoothing period
	EMAPeriod  int     // action smoothing period
	HFactor    float64 // quantum step = HFactor · stddev(smoothed action)
	BandK      float64 // band half-width in units of h
	Lookback   int     // divergence lookback in bars
	EnterLevel int     // level that arms a BUY on an upward cross
	ExitLevel  int     // level at or below which the engine exits
}

// DefaultConfig returns the baseline parameter set.
func DefaultConfig() Config {
	return Config{
		ATRPeriod:  14,
		EMAPeriod:  9,
		HFactor:    0.6,
		BandK:      1.5,
		Lookback:   5,
		EnterLevel: 2,
		ExitLevel:  0,
	}
}

// Validate rejects malformed parameter sets. A bad config is fatal at
// startup and is never silently clamped.
func (c Config) Validate() error {
	if c.ATRPeriod <= 0 {
		return fmt.Errorf("quantum: ATR period must be positive, got %d", c.ATRPeriod)
	}
	if c.EMAPeriod <= 0 {
		return fmt.Errorf("quantum: EMA period must be positive, got %d", c.EMAPeriod)
	}
	if c.HFactor <= 0 {
		return fmt.Errorf("quantum: h factor must be positive, got %g", c.HFactor)
	}
	if c.BandK <= 0 {
		return fmt.Errorf("quantum: band k must be positive, got %g", c.BandK)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("quantum: divergence lookback must be positive, got %d", c.Lookback)
	}
	if c.EnterLevel <= c.ExitLevel {
		return fmt.Errorf("quantum: enter level %d must exceed exit level %d", c.EnterLevel, c.ExitLevel)
	}
	return nil
}

// Warmup returns the number of bars required before the engine produces a
// sample.
func (c Config) Warmup() int {
	if c.ATRPeriod > c.EMAPeriod {
		return c.ATRPeriod
	}
	return c.EMAPeriod
}

// Series is the engine output for one bar window: the action samples aligned
// to the tail of the bars, the ATR series aligned to all bars (NaN during
// warm-up), and the quantization state derived from the visible window.
type Series struct {
	Bars    []Bar
	Samples []ActionSample // Samples[i] corresponds to Bars[offset+i]
	ATR     []float64      // aligned to Bars

	H     float64 // quantum step, floored at HFloor
	Level int     // round(latest smoothed / H), 0 while H is at the floor

	offset int // index into Bars of the first sample
}

// Compute runs the action engine over a bar window.
//
// For each bar t past warm-up: raw = |close[t]−close[t−1]| − ATR[t], the
// kinetic term minus the potential term. The smoothed action is an EMA of raw,
// h is HFactor times the standard deviation of the smoothed series, and the
// level is the smoothed action quantized by h.
//
// A constant-price window drives raw to −ATR and h to its floor; the level
// saturates at 0. That is an accepted degenerate case, not an error.
func Compute(bars []Bar, cfg Config) (*Series, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	warmup := cfg.Warmup()
	if len(bars) < warmup+1 {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), warmup+1)
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	atr := indicators.ATRSeries(highs, lows, closes, cfg.ATRPeriod)

	// First sample sits at the first bar with a defined ATR.
	offset := cfg.ATRPeriod
	raw := make([]float64, 0, len(bars)-offset)
	for i := offset; i < len(bars); i++ {
		kinetic := math.Abs(closes[i] - closes[i-1])
		raw = append(raw, kinetic-atr[i])
	}

	smoothed := indicators.EMASeries(raw, cfg.EMAPeriod)

	samples := make([]ActionSample, len(raw))
	values := make([]float64, len(raw))
	for i := range raw {
		samples[i] = ActionSample{
			Timestamp: bars[offset+i].Timestamp,
			Raw:       raw[i],
			Smoothed:  smoothed[i],
		}
		values[i] = smoothed[i]
	}

	h := cfg.HFactor * indicators.StdDev(values)
	if h < HFloor {
		h = HFloor
	}

	s := &Series{
		Bars:    bars,
		Samples: samples,
		ATR:     atr,
		H:       h,
		offset:  offset,
	}
	s.Level = s.LevelAt(len(samples) - 1)

	return s, nil
}

// LevelAt quantizes the smoothed action at sample index i. While h sits at
// its epsilon floor the level is undefined and reported as 0.
func (s *Series) LevelAt(i int) int {
	if i < 0 || i >= len(s.Samples) || s.H <= HFloor {
		return 0
	}
	return int(math.Round(s.Samples[i].Smoothed / s.H))
}

// LastAction returns the latest smoothed action value.
func (s *Series) LastAction() float64 {
	return s.Samples[len(s.Samples)-1].Smoothed
}

// LastATR returns the ATR at the latest bar.
func (s *Series) LastATR() float64 {
	return s.ATR[len(s.ATR)-1]
}

// LastClose returns the closing price of the latest bar.
func (s *Series) LastClose() float64 {
	return s.Bars[len(s.Bars)-1].Close
}

// priceAt returns the close aligned to sample index i.
func (s *Series) priceAt(i int) float64 {
	return s.Bars[s.offset+i].Close
}
