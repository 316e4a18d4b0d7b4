package quantum

// DetectDivergence compares the latest price and action against their values
// `lookback` samples earlier. Bullish divergence: price made a lower close
// while the action made a higher reading. Bearish is the mirror condition.
// Both flags are independent of regime.
//
// With fewer than lookback+1 samples both flags are false; there is no
// negative-index fallback.
func (s *Series) DetectDivergence(lookback int) Divergence {
	n := len(s.Samples)
	if lookback <= 0 || n < lookback+1 {
		return Divergence{}
	}

	cur := n - 1
	ref := n - 1 - lookback

	priceNow, priceThen := s.priceAt(cur), s.priceAt(ref)
	actionNow, actionThen := s.Samples[cur].Smoothed, s.Samples[ref].Smoothed

	return Divergence{
		Bullish: priceNow < priceThen && actionNow > actionThen,
		Bearish: priceNow > priceThen && actionNow < actionThen,
	}
}
