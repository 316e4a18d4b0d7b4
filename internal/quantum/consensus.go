package quantum

// consensusThreshold is the fraction of timeframes that must agree before the
// aggregator commits to a direction. Empirically chosen, kept as a constant.
const consensusThreshold = 0.6

// Consensus is the reduced multi-timeframe decision.
type Consensus struct {
	Action     Action
	Confidence float64 // mean confidence of agreeing frames, scaled by agreement
	Agreeing   int
	Total      int
}

// Aggregate reduces per-timeframe signals to one consensus decision.
// Timeframes with missing or insufficient data must not be passed in: they
// are excluded from both the vote and the mean, not treated as WAIT.
//
// BUY wins when at least 60% of frames say BUY, EXIT likewise; anything else
// is WAIT. Confidence is the mean confidence of the frames agreeing with the
// winner, scaled by the agreeing fraction.
func Aggregate(signals []Signal) Consensus {
	total := len(signals)
	if total == 0 {
		return Consensus{Action: ActionWait}
	}

	counts := map[Action]int{}
	confSums := map[Action]float64{}
	for _, s := range signals {
		counts[s.Action]++
		confSums[s.Action] += s.Confidence
	}

	winner := ActionWait
	switch {
	case float64(counts[ActionBuy])/float64(total) >= consensusThreshold:
		winner = ActionBuy
	case float64(counts[ActionExit])/float64(total) >= consensusThreshold:
		winner = ActionExit
	}

	agreeing := counts[winner]
	confidence := 0.0
	if agreeing > 0 {
		mean := confSums[winner] / float64(agreeing)
		confidence = mean * float64(agreeing) / float64(total)
	}

	return Consensus{
		Action:     winner,
		Confidence: confidence,
		Agreeing:   agreeing,
		Total:      total,
	}
}
