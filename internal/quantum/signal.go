package quantum

import "fmt"

// Signal confidence per branch. The branch order is a fixed design contract:
// divergence checks first, band breach second, level/trend last. Callers rely
// on it for deterministic replay.
const (
	confBuyDivergence  = 90
	confBuyLevelCross  = 80
	confExitDivergence = 95
	confExitBandBreach = 85
	confExitLevel      = 75
	confExitFalling    = 65
	confWait           = 50
)

// Compose evaluates the decision state machine over a computed series. It
// keeps no state between calls; rising/falling and the level cross are read
// directly from the sample window.
func Compose(s *Series, cfg Config) Signal {
	action := s.LastAction()
	// Band breaches are judged on the raw action against the band around its
	// smoothed baseline; the smoothed value can never escape its own band.
	raw := s.Samples[len(s.Samples)-1].Raw
	bands := s.ComputeBands(cfg.BandK)
	div := s.DetectDivergence(cfg.Lookback)
	level := s.Level

	// With a single sample there is no previous reading: no cross, no slope.
	prev := action
	prevLevel := level
	if n := len(s.Samples); n >= 2 {
		prev = s.Samples[n-2].Smoothed
		prevLevel = s.LevelAt(n - 2)
	}
	rising := action > prev
	falling := action < prev

	sig := Signal{
		Price: s.LastClose(),
		Metrics: Metrics{
			Action:    action,
			H:         s.H,
			Level:     level,
			BandUpper: bands.Upper,
			BandLower: bands.Lower,
			ATR:       s.LastATR(),
			Regime:    s.Regime(),
		},
		DivergenceBullish: div.Bullish,
		DivergenceBearish: div.Bearish,
		Timestamp:         s.Bars[len(s.Bars)-1].Timestamp,
	}

	switch {
	case div.Bullish && raw > bands.Upper:
		sig.Action = ActionBuy
		sig.Confidence = confBuyDivergence
		sig.Reason = "bullish divergence with action above upper band"
	case prevLevel <= cfg.ExitLevel && level >= cfg.EnterLevel && rising:
		sig.Action = ActionBuy
		sig.Confidence = confBuyLevelCross
		sig.Reason = fmt.Sprintf("level jumped %d→%d with rising action", prevLevel, level)
	case div.Bearish:
		sig.Action = ActionExit
		sig.Confidence = confExitDivergence
		sig.Reason = "bearish divergence"
	case raw < bands.Lower:
		sig.Action = ActionExit
		sig.Confidence = confExitBandBreach
		sig.Reason = "action broke below lower band"
	case level <= cfg.ExitLevel:
		sig.Action = ActionExit
		sig.Confidence = confExitLevel
		sig.Reason = fmt.Sprintf("level %d at or below exit level %d", level, cfg.ExitLevel)
	case falling:
		sig.Action = ActionExit
		sig.Confidence = confExitFalling
		sig.Reason = "action losing energy"
	default:
		sig.Action = ActionWait
		sig.Confidence = confWait
		sig.Reason = "no edge"
	}

	return sig
}
