// Package quantum implements the quantized-action signal engine: a
// deterministic transform of OHLCV bars into a discrete trading decision.
//
// The engine is stateless. Every evaluation operates over a caller-supplied
// bar window, so the same window and config always produce the same signal.
package quantum

import "time"

// Bar is a single OHLCV candle. Bars are append-only and immutable once
// observed; the engine consumes them by reference and never mutates them.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ActionSample is the per-bar engine output once enough history exists.
type ActionSample struct {
	Timestamp time.Time
	Raw       float64 // kinetic minus potential term
	Smoothed  float64 // EMA of Raw
}

// Action is the discrete trading decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionExit Action = "EXIT"
	ActionWait Action = "WAIT"
)

// Regime is the coarse market-state classification used to retune parameters.
type Regime string

const (
	RegimeTrend     Regime = "TREND"
	RegimeRange     Regime = "RANGE"
	RegimeVolatile  Regime = "VOLATILE"
	RegimeLowEnergy Regime = "LOW_ENERGY"
)

// TrailingMode selects the formula family used to recompute a position's
// protective stop each monitoring tick. Fixed at position open.
type TrailingMode string

const (
	TrailATR           TrailingMode = "ATR"
	TrailQuantumH      TrailingMode = "QUANTUM_H"
	TrailBand          TrailingMode = "BAND"
	TrailLevelAdaptive TrailingMode = "LEVEL_ADAPTIVE"
)

// Bands mark the zones of unusual strength/exhaustion around the smoothed
// action: upper = action + k·h, lower = action − k·h.
type Bands struct {
	Upper float64
	Lower float64
}

// Metrics is the numeric snapshot backing a signal.
type Metrics struct {
	Action    float64 // latest smoothed action
	H         float64 // quantum step
	Level     int
	BandUpper float64
	BandLower float64
	ATR       float64
	Regime    Regime
}

// Signal is the engine's decision for one (symbol, interval) evaluation.
// Produced fresh each call, never mutated.
type Signal struct {
	Action            Action
	Confidence        float64 // 0-100
	Reason            string
	Price             float64 // close of the bar the signal was composed on
	Metrics           Metrics
	DivergenceBullish bool
	DivergenceBearish bool
	Timestamp         time.Time
}

// Divergence holds the per-bar price-vs-action disagreement flags.
type Divergence struct {
	Bullish bool
	Bearish bool
}
