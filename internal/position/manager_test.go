package position

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/quantbot/internal/broker"
	"github.com/web3guy0/quantbot/internal/quantum"
)

func buyAnalysis(symbol string, price float64) Analysis {
	return Analysis{
		Symbol: symbol,
		Price:  price,
		Signal: quantum.Signal{
			Action:     quantum.ActionBuy,
			Confidence: 80,
			Metrics:    quantum.Metrics{ATR: 2.0, H: 1.0, Level: 2},
		},
		Consensus: quantum.Consensus{Action: quantum.ActionBuy, Confidence: 80, Agreeing: 3, Total: 3},
		Trailing:  quantum.TrailATR,
		BandK:     1.5,
	}
}

func newPaperManager(t *testing.T, hooks Hooks) (*Manager, *broker.PaperVenue) {
	t.Helper()
	venue := broker.NewPaperVenue(decimal.NewFromInt(10000))
	venue.MarkPrice("BTCUSDT", decimal.NewFromInt(100))
	m, err := NewManager(venue, DefaultConfig(), hooks)
	require.NoError(t, err)
	return m, venue
}

func TestOpenIfSignaled(t *testing.T) {
	var opened *Position
	m, _ := newPaperManager(t, Hooks{OnOpen: func(p *Position) { opened = p }})

	ticket, err := m.OpenIfSignaled(context.Background(), buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	pos, ok := m.Get(ticket)
	require.True(t, ok)
	// stop = 100 − 2·ATR, target = 100 + k·h·TPMult, size = (10000·0.02)/4.
	assert.InDelta(t, 96.0, pos.StopLoss.InexactFloat64(), 1e-9)
	assert.InDelta(t, 103.0, pos.TakeProfit.InexactFloat64(), 1e-9)
	assert.InDelta(t, 50.0, pos.Volume.InexactFloat64(), 1e-9)
	assert.Equal(t, broker.SideBuy, pos.Side)
	assert.Equal(t, 2, pos.EntryLevel)
	assert.Equal(t, quantum.TrailATR, pos.Trailing)

	require.NotNil(t, opened)
	assert.Equal(t, ticket, opened.Ticket)
	assert.Equal(t, 1, m.OpenCount())
}

func TestOpenIfSignaledBelowThreshold(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})

	a := buyAnalysis("BTCUSDT", 100)
	a.Consensus.Confidence = 60

	ticket, err := m.OpenIfSignaled(context.Background(), a)
	require.NoError(t, err)
	assert.Empty(t, ticket)
	assert.Zero(t, m.OpenCount())
}

func TestOpenIfSignaledIgnoresWait(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})

	a := buyAnalysis("BTCUSDT", 100)
	a.Consensus.Action = quantum.ActionWait

	ticket, err := m.OpenIfSignaled(context.Background(), a)
	require.NoError(t, err)
	assert.Empty(t, ticket)
}

func TestOpenIfSignaledOnePerSymbol(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})
	ctx := context.Background()

	first, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	assert.Empty(t, second, "second open for the same symbol must be refused")
	assert.Equal(t, 1, m.OpenCount())
}

func TestCalculateSizeCapsAtHalfEquity(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})

	price := decimal.NewFromInt(100)
	stop := decimal.NewFromFloat(99.9) // tiny stop distance blows up raw size
	equity := decimal.NewFromInt(10000)

	size := m.calculateSize(price, stop, equity)
	assert.InDelta(t, 50.0, size.InexactFloat64(), 1e-9)
}

func TestCalculateSizeZeroDistance(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})

	price := decimal.NewFromInt(100)
	size := m.calculateSize(price, price, decimal.NewFromInt(10000))
	assert.True(t, size.IsZero())
}

func TestMonitorClosesOnExitSignal(t *testing.T) {
	var closedReason string
	m, _ := newPaperManager(t, Hooks{
		OnClose: func(_ *Position, _ decimal.Decimal, reason string) { closedReason = reason },
	})
	ctx := context.Background()

	ticket, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	a := buyAnalysis("BTCUSDT", 101)
	a.Signal.Action = quantum.ActionExit
	a.Signal.Reason = "action losing energy"
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": a})

	assert.Zero(t, m.OpenCount())
	assert.Equal(t, "action losing energy", closedReason)
}

func TestMonitorDetectsVenueClose(t *testing.T) {
	var closedReason string
	m, venue := newPaperManager(t, Hooks{
		OnClose: func(_ *Position, _ decimal.Decimal, reason string) { closedReason = reason },
	})
	ctx := context.Background()

	ticket, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)

	// The venue stops the position out behind the manager's back.
	venue.MarkPrice("BTCUSDT", decimal.NewFromInt(90))

	a := buyAnalysis("BTCUSDT", 90)
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": a})

	assert.Zero(t, m.OpenCount())
	assert.Equal(t, ReasonVenueClosed, closedReason)
	_, ok := m.Get(ticket)
	assert.False(t, ok)
}

func TestMonitorTrailingStopNeverLoosens(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})
	ctx := context.Background()

	ticket, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	pos, _ := m.Get(ticket)

	// Price rises: candidate = 105 − 1.5·ATR = 102, an improvement over 96.
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 105)})
	assert.InDelta(t, 102.0, pos.StopLoss.InexactFloat64(), 1e-9)

	// Price dips: candidate 100 would loosen the stop and must be discarded.
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 103)})
	assert.InDelta(t, 102.0, pos.StopLoss.InexactFloat64(), 1e-9)

	// New high tightens again.
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 110)})
	assert.InDelta(t, 107.0, pos.StopLoss.InexactFloat64(), 1e-9)
}

func TestMonitorBandTrailingRisesWithPrice(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})
	ctx := context.Background()

	a := buyAnalysis("BTCUSDT", 100)
	a.Trailing = quantum.TrailBand
	ticket, err := m.OpenIfSignaled(ctx, a)
	require.NoError(t, err)
	pos, _ := m.Get(ticket)

	prev := pos.StopLoss
	for _, price := range []float64{101, 102, 103, 104} {
		tick := buyAnalysis("BTCUSDT", price)
		tick.Trailing = quantum.TrailBand
		m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": tick})

		assert.True(t, pos.StopLoss.GreaterThan(prev),
			"stop %s did not rise past %s at price %g", pos.StopLoss, prev, price)
		prev = pos.StopLoss
	}
}

func TestMonitorSkipsSymbolsWithoutAnalysis(t *testing.T) {
	m, _ := newPaperManager(t, Hooks{})
	ctx := context.Background()

	ticket, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	pos, _ := m.Get(ticket)
	before := pos.StopLoss

	m.MonitorAndManage(ctx, map[string]Analysis{"ETHUSDT": buyAnalysis("ETHUSDT", 2000)})
	assert.True(t, pos.StopLoss.Equal(before))
}

// flakyVenue wraps the paper venue with a switchable ModifyStop failure.
type flakyVenue struct {
	*broker.PaperVenue
	failModify bool
}

func (v *flakyVenue) ModifyStop(ctx context.Context, ticket string, stop decimal.Decimal) error {
	if v.failModify {
		return errors.New("venue rejected modification")
	}
	return v.PaperVenue.ModifyStop(ctx, ticket, stop)
}

func TestMonitorResyncsAfterFailedStopModification(t *testing.T) {
	venue := &flakyVenue{PaperVenue: broker.NewPaperVenue(decimal.NewFromInt(10000))}
	venue.MarkPrice("BTCUSDT", decimal.NewFromInt(100))
	m, err := NewManager(venue, DefaultConfig(), Hooks{})
	require.NoError(t, err)
	ctx := context.Background()

	ticket, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	pos, _ := m.Get(ticket)

	venue.failModify = true
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 105)})

	// Local stop untouched, state flagged for a venue re-read.
	assert.InDelta(t, 96.0, pos.StopLoss.InexactFloat64(), 1e-9)
	assert.True(t, pos.stopUnknown)

	venue.failModify = false
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 105)})

	assert.False(t, pos.stopUnknown)
	assert.InDelta(t, 102.0, pos.StopLoss.InexactFloat64(), 1e-9)
}

func TestBreakevenSurvivesFailedStopModification(t *testing.T) {
	venue := &flakyVenue{PaperVenue: broker.NewPaperVenue(decimal.NewFromInt(10000))}
	venue.MarkPrice("BTCUSDT", decimal.NewFromInt(100))
	m, err := NewManager(venue, DefaultConfig(), Hooks{})
	require.NoError(t, err)
	ctx := context.Background()

	ticket, err := m.OpenIfSignaled(ctx, buyAnalysis("BTCUSDT", 100))
	require.NoError(t, err)
	pos, _ := m.Get(ticket)

	// Profit crosses the breakeven trigger, but the venue rejects the
	// modification: the one-time flag must not be spent on a stop that
	// never moved.
	venue.failModify = true
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 101.5)})

	assert.InDelta(t, 96.0, pos.StopLoss.InexactFloat64(), 1e-9)
	assert.False(t, pos.breakevenDone)

	// Once the venue accepts again, the lift to entry is retried: the stop
	// lands on the entry price, not on the 98.5 trailing candidate.
	venue.failModify = false
	m.MonitorAndManage(ctx, map[string]Analysis{"BTCUSDT": buyAnalysis("BTCUSDT", 101.5)})

	assert.InDelta(t, 100.0, pos.StopLoss.InexactFloat64(), 1e-9)
	assert.True(t, pos.breakevenDone)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.RiskPerTrade = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RiskPerTrade = decimal.NewFromFloat(1.5)
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SLATRMult = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.BreakevenPct = -0.01
	assert.Error(t, bad.Validate())
}
