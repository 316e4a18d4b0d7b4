// Package position owns the open-position registry: it is the only writer of
// stop and target fields. Positions are opened from consensus signals,
// protected by interchangeable trailing-stop strategies, and closed the
// moment the live signal turns to EXIT.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantbot/internal/broker"
	"github.com/web3guy0/quantbot/internal/quantum"
)

// ReasonVenueClosed marks a close detected from the venue (stop or target
// hit) rather than signaled by the engine. All other close reasons are the
// free-form text of the signal that triggered the exit.
const ReasonVenueClosed = "VENUE_CLOSED"

// Config holds the risk and trailing parameters.
type Config struct {
	ConfidenceThreshold float64         // minimum consensus confidence to open
	RiskPerTrade        decimal.Decimal // fraction of equity risked per trade
	SLATRMult           float64         // initial stop distance in ATRs
	TPMult              float64         // target distance in band widths (k·h)
	TrailATRMult        float64         // ATR trailing multiplier (also LEVEL_ADAPTIVE base)
	TrailHMult          float64         // QUANTUM_H trailing multiplier
	BreakevenPct        float64         // unrealized profit fraction that arms breakeven
}

// DefaultConfig returns the baseline risk parameters.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 70,
		RiskPerTrade:        decimal.NewFromFloat(0.02),
		SLATRMult:           2.0,
		TPMult:              2.0,
		TrailATRMult:        1.5,
		TrailHMult:          1.5,
		BreakevenPct:        0.01,
	}
}

// Validate rejects malformed risk parameters at startup.
func (c Config) Validate() error {
	if c.RiskPerTrade.LessThanOrEqual(decimal.Zero) || c.RiskPerTrade.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("position: risk per trade must be in (0,1], got %s", c.RiskPerTrade)
	}
	if c.SLATRMult <= 0 || c.TPMult <= 0 || c.TrailATRMult <= 0 || c.TrailHMult <= 0 {
		return fmt.Errorf("position: multipliers must be positive")
	}
	if c.BreakevenPct <= 0 {
		return fmt.Errorf("position: breakeven pct must be positive, got %g", c.BreakevenPct)
	}
	return nil
}

// Analysis is one symbol's fresh evaluation, handed to the manager by the
// orchestrator each cycle.
type Analysis struct {
	Symbol    string
	Price     float64
	Signal    quantum.Signal
	Consensus quantum.Consensus
	Trailing  quantum.TrailingMode // regime-recommended mode for new positions
	BandK     float64
}

// Position is an open trade with its entry snapshot. The trailing mode and
// entry metrics are fixed at open; only the manager mutates the stop.
type Position struct {
	mu sync.Mutex

	Ticket     string
	Symbol     string
	Side       broker.Side
	Volume     decimal.Decimal
	OpenPrice  decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	OpenedAt   time.Time

	EntryLevel  int
	EntryAction float64
	EntryH      float64
	Trailing    quantum.TrailingMode

	breakevenDone bool
	stopUnknown   bool // set after a failed modification, forces a venue re-read
}

// Hooks receive lifecycle events so persistence, metrics and notifications
// stay out of the registry's critical path.
type Hooks struct {
	OnOpen     func(pos *Position)
	OnClose    func(pos *Position, exitPrice decimal.Decimal, reason string)
	OnStopMove func(pos *Position, stop decimal.Decimal)
}

// Manager owns the registry. Writes to a single position are serialized by
// its own lock; different positions are managed concurrently.
type Manager struct {
	mu        sync.RWMutex
	venue     broker.Venue
	cfg       Config
	hooks     Hooks
	positions map[string]*Position // ticket → position
	bySymbol  map[string]string    // symbol → ticket
}

// NewManager creates a manager over the given venue.
func NewManager(venue broker.Venue, cfg Config, hooks Hooks) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		venue:     venue,
		cfg:       cfg,
		hooks:     hooks,
		positions: make(map[string]*Position),
		bySymbol:  make(map[string]string),
	}, nil
}

// OpenIfSignaled opens a long position when the consensus says BUY with
// enough confidence and the symbol has no open position. Returns the ticket,
// or "" when no trade was taken.
func (m *Manager) OpenIfSignaled(ctx context.Context, a Analysis) (string, error) {
	if a.Consensus.Action != quantum.ActionBuy || a.Consensus.Confidence < m.cfg.ConfidenceThreshold {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.bySymbol[a.Symbol]
	m.mu.RUnlock()
	if exists {
		return "", nil
	}

	equity, err := m.venue.Equity(ctx)
	if err != nil {
		return "", fmt.Errorf("equity lookup: %w", err)
	}

	price := decimal.NewFromFloat(a.Price)
	atr := a.Signal.Metrics.ATR
	h := a.Signal.Metrics.H

	stop := price.Sub(decimal.NewFromFloat(m.cfg.SLATRMult * atr))
	target := price.Add(decimal.NewFromFloat(a.BandK * h * m.cfg.TPMult))

	size := m.calculateSize(price, stop, equity)
	if size.LessThanOrEqual(decimal.Zero) {
		return "", nil
	}

	fill, err := m.venue.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:     a.Symbol,
		Side:       broker.SideBuy,
		Size:       size,
		StopLoss:   stop,
		TakeProfit: target,
	})
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}

	pos := &Position{
		Ticket:      fill.Ticket,
		Symbol:      a.Symbol,
		Side:        broker.SideBuy,
		Volume:      size,
		OpenPrice:   fill.Price,
		StopLoss:    stop,
		TakeProfit:  target,
		OpenedAt:    time.Now(),
		EntryLevel:  a.Signal.Metrics.Level,
		EntryAction: a.Signal.Metrics.Action,
		EntryH:      h,
		Trailing:    a.Trailing,
	}

	m.mu.Lock()
	m.positions[fill.Ticket] = pos
	m.bySymbol[a.Symbol] = fill.Ticket
	m.mu.Unlock()

	log.Info().
		Str("ticket", fill.Ticket).
		Str("symbol", a.Symbol).
		Str("fill", fill.Price.StringFixed(2)).
		Str("sl", stop.StringFixed(2)).
		Str("tp", target.StringFixed(2)).
		Str("size", size.StringFixed(4)).
		Int("level", pos.EntryLevel).
		Str("trailing", string(pos.Trailing)).
		Msg("✅ Position opened")

	if m.hooks.OnOpen != nil {
		m.hooks.OnOpen(pos)
	}

	return fill.Ticket, nil
}

// calculateSize risks a fixed fraction of equity against the stop distance:
// size = (equity · riskPerTrade) / |price − stop|, capped at half the equity.
func (m *Manager) calculateSize(price, stop, equity decimal.Decimal) decimal.Decimal {
	riskAmount := equity.Mul(m.cfg.RiskPerTrade)
	riskPerUnit := price.Sub(stop).Abs()
	if riskPerUnit.IsZero() {
		return decimal.Zero
	}

	size := riskAmount.Div(riskPerUnit).Truncate(4)

	maxSize := equity.Mul(decimal.NewFromFloat(0.5)).Div(price)
	if size.GreaterThan(maxSize) {
		size = maxSize
	}

	return size
}

// MonitorAndManage runs one monitoring tick over every open position using
// the fresh per-symbol analyses. Symbols without a fresh analysis are left
// untouched this tick.
func (m *Manager) MonitorAndManage(ctx context.Context, analyses map[string]Analysis) {
	m.mu.RLock()
	open := make([]*Position, 0, len(m.positions))
	for _, pos := range m.positions {
		open = append(open, pos)
	}
	m.mu.RUnlock()

	for _, pos := range open {
		a, ok := analyses[pos.Symbol]
		if !ok {
			continue
		}
		m.manage(ctx, pos, a)
	}
}

// manage performs the per-tick read-modify-write for one position. At most
// one stop modification is issued per tick.
func (m *Manager) manage(ctx context.Context, pos *Position, a Analysis) {
	pos.mu.Lock()
	defer pos.mu.Unlock()

	// Reconcile with the venue first: the position may have been closed by
	// stop or target, and a failed modification leaves our stop unknown
	// until re-read.
	snap, err := m.venue.Snapshot(ctx, pos.Ticket)
	switch {
	case errors.Is(err, broker.ErrPositionClosed):
		m.remove(pos, decimal.NewFromFloat(a.Price), ReasonVenueClosed)
		return
	case err != nil:
		log.Warn().Err(err).Str("ticket", pos.Ticket).Msg("Venue snapshot failed, skipping tick")
		return
	}
	if pos.stopUnknown {
		pos.StopLoss = snap.StopLoss
		pos.stopUnknown = false
		log.Info().
			Str("ticket", pos.Ticket).
			Str("sl", pos.StopLoss.StringFixed(2)).
			Msg("Stop state re-synced from venue")
	}

	// Live EXIT closes immediately. Fatal to the position, not the process.
	if a.Signal.Action == quantum.ActionExit {
		exitPrice, err := m.venue.ClosePosition(ctx, pos.Ticket)
		if err != nil {
			log.Error().Err(err).Str("ticket", pos.Ticket).Msg("Close failed, will retry next tick")
			return
		}
		m.remove(pos, exitPrice, a.Signal.Reason)
		return
	}

	candidate := m.trailingStop(pos, a)
	breakevenBefore := pos.breakevenDone
	candidate = m.applyBreakeven(pos, a, candidate)

	if !improves(pos.Side, pos.StopLoss, candidate) {
		return
	}

	if err := m.venue.ModifyStop(ctx, pos.Ticket, candidate); err != nil {
		// Stop state is unknown until re-read next tick. A breakeven armed
		// this tick is not committed until the stop actually moves, so the
		// lift is retried once the venue accepts modifications again.
		pos.stopUnknown = true
		pos.breakevenDone = breakevenBefore
		log.Warn().Err(err).
			Str("ticket", pos.Ticket).
			Str("candidate", candidate.StringFixed(2)).
			Msg("Stop modification rejected")
		return
	}

	log.Debug().
		Str("ticket", pos.Ticket).
		Str("old_sl", pos.StopLoss.StringFixed(2)).
		Str("new_sl", candidate.StringFixed(2)).
		Str("mode", string(pos.Trailing)).
		Msg("Trailing stop updated")
	pos.StopLoss = candidate

	if m.hooks.OnStopMove != nil {
		m.hooks.OnStopMove(pos, candidate)
	}
}

// remove deletes a position from the registry and fires the close hook.
// Caller holds the position lock.
func (m *Manager) remove(pos *Position, exitPrice decimal.Decimal, reason string) {
	m.mu.Lock()
	delete(m.positions, pos.Ticket)
	delete(m.bySymbol, pos.Symbol)
	m.mu.Unlock()

	pnl := exitPrice.Sub(pos.OpenPrice).Mul(pos.Volume)
	if pos.Side == broker.SideSell {
		pnl = pnl.Neg()
	}

	log.Info().
		Str("ticket", pos.Ticket).
		Str("symbol", pos.Symbol).
		Str("exit", exitPrice.StringFixed(2)).
		Str("pnl", pnl.StringFixed(2)).
		Str("reason", reason).
		Msg("📊 Position closed")

	if m.hooks.OnClose != nil {
		m.hooks.OnClose(pos, exitPrice, reason)
	}
}

// OpenCount returns the number of open positions.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// OpenSymbols returns the symbols with an open position.
func (m *Manager) OpenSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.bySymbol))
	for s := range m.bySymbol {
		symbols = append(symbols, s)
	}
	return symbols
}

// Get returns the position for a ticket.
func (m *Manager) Get(ticket string) (*Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[ticket]
	return pos, ok
}
