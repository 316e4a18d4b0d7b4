package quantum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeSeries assembles a Series directly so each composer branch can be
// exercised in isolation. Samples align one-to-one with the tail of the bars.
func makeSeries(t *testing.T, closes, smoothed, raw []float64, h, atr float64) *Series {
	t.Helper()
	require.Equal(t, len(smoothed), len(raw))
	require.GreaterOrEqual(t, len(closes), len(smoothed))

	bars := barsFromCloses(closes)
	atrSeries := make([]float64, len(bars))
	for i := range atrSeries {
		atrSeries[i] = atr
	}

	samples := make([]ActionSample, len(smoothed))
	offset := len(bars) - len(samples)
	for i := range samples {
		samples[i] = ActionSample{
			Timestamp: bars[offset+i].Timestamp,
			Raw:       raw[i],
			Smoothed:  smoothed[i],
		}
	}

	s := &Series{
		Bars:    bars,
		Samples: samples,
		ATR:     atrSeries,
		H:       h,
		offset:  offset,
	}
	s.Level = s.LevelAt(len(samples) - 1)
	return s
}

func TestComposeBuyOnDivergenceAboveBand(t *testing.T) {
	// Price makes a lower close while the action makes a higher reading, and
	// the raw action spikes above the upper band.
	s := makeSeries(t,
		[]float64{100, 100.5, 101, 100.8, 100.2, 99},
		[]float64{1.0, 1.2, 1.4, 1.6, 1.8, 2.0},
		[]float64{0, 0, 0, 0, 0, 4.0}, // upper band = 2.0 + 1.5
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, float64(confBuyDivergence), sig.Confidence)
	assert.True(t, sig.DivergenceBullish)
	assert.Equal(t, 99.0, sig.Price)
}

func TestComposeBuyOnLevelCross(t *testing.T) {
	// Level jumps from 0 to 2 with rising action, no divergence in play.
	s := makeSeries(t,
		[]float64{100, 101, 102, 103, 104, 105},
		[]float64{0.1, 0.15, 0.2, 0.25, 0.3, 2.2},
		[]float64{0, 0, 0, 0, 0, 0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, float64(confBuyLevelCross), sig.Confidence)
	assert.False(t, sig.DivergenceBullish)
	assert.False(t, sig.DivergenceBearish)
}

func TestComposeNoBuyWithoutRisingAction(t *testing.T) {
	// Same level jump but the action is flat: no cross confirmation, and the
	// level alone keeps the position-side branches quiet.
	s := makeSeries(t,
		[]float64{100, 101, 102, 103, 104, 105},
		[]float64{2.2, 2.2, 2.2, 2.2, 2.2, 2.2},
		[]float64{2.2, 2.2, 2.2, 2.2, 2.2, 2.2},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionWait, sig.Action)
}

func TestComposeExitBearishDivergenceBeatsBandBreach(t *testing.T) {
	// Both the bearish divergence and the band breach hold; divergence wins by
	// branch priority.
	s := makeSeries(t,
		[]float64{100, 101, 102, 103, 105, 106},
		[]float64{3.0, 2.6, 2.2, 1.8, 1.2, 1.0},
		[]float64{0, 0, 0, 0, 0, -5.0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, float64(confExitDivergence), sig.Confidence)
	assert.True(t, sig.DivergenceBearish)
}

func TestComposeExitOnBandBreach(t *testing.T) {
	// No divergence (flat action over the lookback), raw action below the
	// lower band. The breach outranks the falling-action branch.
	s := makeSeries(t,
		[]float64{105, 104, 103, 102, 101, 100},
		[]float64{1.05, 1.2, 1.3, 1.2, 1.1, 1.05},
		[]float64{0, 0, 0, 0, 0, -1.0}, // lower band = 1.05 - 1.5
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, float64(confExitBandBreach), sig.Confidence)
}

func TestComposeExitOnLevelAtExit(t *testing.T) {
	s := makeSeries(t,
		[]float64{100, 100, 100, 100, 100, 100},
		[]float64{-0.2, -0.2, -0.25, -0.25, -0.3, -0.2},
		[]float64{0, 0, 0, 0, 0, 0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, float64(confExitLevel), sig.Confidence)
	assert.Equal(t, 0, sig.Metrics.Level)
}

func TestComposeExitOnFallingAction(t *testing.T) {
	s := makeSeries(t,
		[]float64{100, 100, 100, 100, 100, 100},
		[]float64{1.5, 1.5, 1.5, 1.5, 1.6, 1.5},
		[]float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, float64(confExitFalling), sig.Confidence)
}

func TestComposeWaitWhenNoEdge(t *testing.T) {
	s := makeSeries(t,
		[]float64{100, 100, 100, 100, 100, 100},
		[]float64{1.0, 1.0, 1.0, 1.0, 0.9, 1.0},
		[]float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionWait, sig.Action)
	assert.Equal(t, float64(confWait), sig.Confidence)
	assert.Equal(t, "no edge", sig.Reason)
}

func TestComposeSingleSampleFallsBackToWait(t *testing.T) {
	// One sample: no previous reading, no slope, no divergence window.
	s := makeSeries(t,
		[]float64{100},
		[]float64{1.0},
		[]float64{1.0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, ActionWait, sig.Action)
	assert.False(t, sig.DivergenceBullish)
	assert.False(t, sig.DivergenceBearish)
}

func TestComposePopulatesMetrics(t *testing.T) {
	s := makeSeries(t,
		[]float64{100, 100, 100, 100, 100, 100},
		[]float64{1.0, 1.0, 1.0, 1.0, 0.9, 1.0},
		[]float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
		1.0, 1.0,
	)

	sig := Compose(s, DefaultConfig())
	assert.Equal(t, 1.0, sig.Metrics.Action)
	assert.Equal(t, 1.0, sig.Metrics.H)
	assert.Equal(t, 1.0, sig.Metrics.ATR)
	assert.Equal(t, 2.5, sig.Metrics.BandUpper)
	assert.InDelta(t, -0.5, sig.Metrics.BandLower, 1e-12)
	assert.Equal(t, s.Bars[len(s.Bars)-1].Timestamp, sig.Timestamp)
}
