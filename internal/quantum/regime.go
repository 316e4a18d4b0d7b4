package quantum

import (
	"fmt"
	"math"
)

// Regime classification thresholds, in units of h. Empirically chosen;
// preserved as constants rather than derived.
const (
	trendRatio     = 2.0 // |action| > 2h
	lowEnergyRatio = 0.3 // |action| < 0.3h
	volatileRatio  = 3.0 // ATR > 3h
)

// ComputeBands derives the quantum bands around the latest smoothed action.
func (s *Series) ComputeBands(k float64) Bands {
	action := s.LastAction()
	return Bands{
		Upper: action + k*s.H,
		Lower: action - k*s.H,
	}
}

// ClassifyRegime maps the latest action, quantum step and ATR to a market
// regime. Predicates are evaluated in fixed priority order so every input
// lands in exactly one regime:
//
//	|action| > 2h            TREND
//	|action| < 0.3h          LOW_ENERGY
//	ATR > 3h                 VOLATILE
//	otherwise                RANGE
//
// The low-energy check runs before the range check because its band is a
// strict subset of the range band.
func ClassifyRegime(action, h, atr float64) Regime {
	abs := math.Abs(action)
	switch {
	case abs > trendRatio*h:
		return RegimeTrend
	case abs < lowEnergyRatio*h:
		return RegimeLowEnergy
	case atr > volatileRatio*h:
		return RegimeVolatile
	default:
		return RegimeRange
	}
}

// Regime classifies the latest sample of the series.
func (s *Series) Regime() Regime {
	return ClassifyRegime(s.LastAction(), s.H, s.LastATR())
}

// ParameterBundle is the regime-tuned parameter set. BundleForRegime returns
// a fresh immutable bundle; the caller applies it to the next evaluation
// cycle only, never retroactively, so already-open positions keep their entry
// snapshot.
type ParameterBundle struct {
	ATRPeriod int
	EMAPeriod int
	HFactor   float64
	BandK     float64
	Trailing  TrailingMode
}

// Validate rejects malformed bundles. Fatal at startup, never clamped.
func (b ParameterBundle) Validate() error {
	if b.ATRPeriod <= 0 || b.EMAPeriod <= 0 {
		return fmt.Errorf("quantum: bundle periods must be positive, got atr=%d ema=%d", b.ATRPeriod, b.EMAPeriod)
	}
	if b.HFactor <= 0 || b.BandK <= 0 {
		return fmt.Errorf("quantum: bundle factors must be positive, got h=%g k=%g", b.HFactor, b.BandK)
	}
	switch b.Trailing {
	case TrailATR, TrailQuantumH, TrailBand, TrailLevelAdaptive:
	default:
		return fmt.Errorf("quantum: unknown trailing mode %q", b.Trailing)
	}
	return nil
}

// Apply returns a copy of cfg retuned by the bundle. Signal thresholds and
// the divergence lookback are left untouched.
func (b ParameterBundle) Apply(cfg Config) Config {
	cfg.ATRPeriod = b.ATRPeriod
	cfg.EMAPeriod = b.EMAPeriod
	cfg.HFactor = b.HFactor
	cfg.BandK = b.BandK
	return cfg
}

// bundles is the regime auto-scaling lookup table.
var bundles = map[Regime]ParameterBundle{
	RegimeTrend: {
		ATRPeriod: 14,
		EMAPeriod: 9,
		HFactor:   0.5,
		BandK:     1.5,
		Trailing:  TrailLevelAdaptive,
	},
	RegimeRange: {
		ATRPeriod: 14,
		EMAPeriod: 12,
		HFactor:   0.6,
		BandK:     2.0,
		Trailing:  TrailBand,
	},
	RegimeVolatile: {
		ATRPeriod: 21,
		EMAPeriod: 15,
		HFactor:   0.8,
		BandK:     2.5,
		Trailing:  TrailATR,
	},
	RegimeLowEnergy: {
		ATRPeriod: 14,
		EMAPeriod: 20,
		HFactor:   0.7,
		BandK:     2.0,
		Trailing:  TrailQuantumH,
	},
}

// BundleForRegime returns the parameter bundle for a regime. Unknown regimes
// fall back to the RANGE bundle.
func BundleForRegime(r Regime) ParameterBundle {
	if b, ok := bundles[r]; ok {
		return b
	}
	return bundles[RegimeRange]
}
