// Package engine wires the signal pipeline to the venue: per-symbol
// evaluation cycles feed the consensus aggregator, and a monitoring cycle
// manages open positions off the live signal.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantbot/internal/broker"
	"github.com/web3guy0/quantbot/internal/config"
	"github.com/web3guy0/quantbot/internal/database"
	"github.com/web3guy0/quantbot/internal/feed"
	"github.com/web3guy0/quantbot/internal/metrics"
	"github.com/web3guy0/quantbot/internal/notify"
	"github.com/web3guy0/quantbot/internal/position"
	"github.com/web3guy0/quantbot/internal/quantum"
	"github.com/web3guy0/quantbot/internal/validator"
)

// validatorRejectScale is applied to consensus confidence when the advisory
// validator rejects a signal. The deterministic signal itself is untouched;
// the scaled confidence simply falls under the execution threshold.
const validatorRejectScale = 0.5

// Engine is the central orchestrator.
type Engine struct {
	cfg     *config.Config
	feed    feed.BarFeed
	venue   broker.Venue
	manager *position.Manager

	validator validator.Validator // optional
	notifier  notify.Notifier     // optional
	db        *database.Database  // optional

	// Regime auto-scaling: bundles computed on one cycle retune the next,
	// never the current one.
	mu       sync.Mutex
	nextCfg  map[string]quantum.Config       // (symbol|interval) → retuned config
	trailing map[string]quantum.TrailingMode // symbol → recommended mode

	wg sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Engine)

func WithValidator(v validator.Validator) Option { return func(e *Engine) { e.validator = v } }
func WithNotifier(n notify.Notifier) Option      { return func(e *Engine) { e.notifier = n } }
func WithDatabase(db *database.Database) Option  { return func(e *Engine) { e.db = db } }

// New creates an engine. The position manager's lifecycle hooks are wired to
// persistence, metrics and notifications here so the registry stays pure.
func New(cfg *config.Config, barFeed feed.BarFeed, venue broker.Venue, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		feed:     barFeed,
		venue:    venue,
		nextCfg:  make(map[string]quantum.Config),
		trailing: make(map[string]quantum.TrailingMode),
	}
	for _, opt := range opts {
		opt(e)
	}

	manager, err := position.NewManager(venue, cfg.Position, position.Hooks{
		OnOpen:     e.onOpen,
		OnClose:    e.onClose,
		OnStopMove: func(*position.Position, decimal.Decimal) { metrics.StopUpdates.Inc() },
	})
	if err != nil {
		return nil, err
	}
	e.manager = manager

	return e, nil
}

func (e *Engine) onOpen(pos *position.Position) {
	metrics.TradesOpened.Inc()
	metrics.OpenPositions.Set(float64(e.manager.OpenCount()))

	if e.db != nil {
		e.db.LogOpen(&database.Trade{
			Ticket:     pos.Ticket,
			Symbol:     pos.Symbol,
			Side:       string(pos.Side),
			Size:       pos.Volume,
			EntryPrice: pos.OpenPrice,
			EntryLevel: pos.EntryLevel,
			Trailing:   string(pos.Trailing),
			OpenedAt:   pos.OpenedAt,
		})
	}
	if e.notifier != nil {
		e.notifier.NotifyTrade("OPEN", pos.Symbol, string(pos.Side), pos.OpenPrice, pos.Volume)
	}
}

// closeCause folds free-form close reasons into a bounded metric label set;
// the full text still reaches the log and the trade record.
func closeCause(reason string) string {
	if reason == position.ReasonVenueClosed {
		return "venue_closed"
	}
	return "signal_exit"
}

func (e *Engine) onClose(pos *position.Position, exitPrice decimal.Decimal, reason string) {
	metrics.TradesClosed.WithLabelValues(closeCause(reason)).Inc()
	metrics.OpenPositions.Set(float64(e.manager.OpenCount()))

	pnl := exitPrice.Sub(pos.OpenPrice).Mul(pos.Volume)
	if pos.Side == broker.SideSell {
		pnl = pnl.Neg()
	}
	if e.db != nil {
		e.db.LogClose(pos.Ticket, exitPrice, pnl, reason)
	}
	if e.notifier != nil {
		e.notifier.NotifyTrade("VENUE_CLOSED", pos.Symbol, string(pos.Side), exitPrice, pos.Volume)
	}
}

func key(symbol, interval string) string { return symbol + "|" + interval }

// configFor returns the engine config for the next cycle of a pair: the
// regime-retuned config from the previous cycle, or the baseline.
func (e *Engine) configFor(symbol, interval string) quantum.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg, ok := e.nextCfg[key(symbol, interval)]; ok {
		return cfg
	}
	return e.cfg.Quantum
}

// trailingFor returns the regime-recommended trailing mode for new positions
// on a symbol.
func (e *Engine) trailingFor(symbol string) quantum.TrailingMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mode, ok := e.trailing[symbol]; ok {
		return mode
	}
	return quantum.TrailATR
}

// Evaluate runs one deterministic evaluation for a (symbol, interval) pair.
// Feed failures and short windows surface as errors; the caller degrades the
// cycle to WAIT.
func (e *Engine) Evaluate(ctx context.Context, symbol, interval string) (quantum.Signal, error) {
	cfg := e.configFor(symbol, interval)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	bars, err := e.feed.GetBars(callCtx, symbol, interval, e.cfg.BarWindow)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("feed").Inc()
		return quantum.Signal{}, err
	}

	series, err := quantum.Compute(bars, cfg)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("data").Inc()
		return quantum.Signal{}, err
	}

	sig := quantum.Compose(series, cfg)

	// Auto-scaling: this regime's bundle takes effect on the next cycle.
	bundle := quantum.BundleForRegime(sig.Metrics.Regime)
	e.mu.Lock()
	e.nextCfg[key(symbol, interval)] = bundle.Apply(e.cfg.Quantum)
	if interval == e.cfg.Primary {
		e.trailing[symbol] = bundle.Trailing
	}
	e.mu.Unlock()

	metrics.Signals.WithLabelValues(string(sig.Action)).Inc()
	if e.db != nil {
		e.db.LogSignal(&database.SignalRecord{
			Symbol:     symbol,
			Interval:   interval,
			Action:     string(sig.Action),
			Confidence: sig.Confidence,
			Level:      sig.Metrics.Level,
			Regime:     string(sig.Metrics.Regime),
			Reason:     sig.Reason,
		})
	}

	return sig, nil
}

// EvaluateConsensus evaluates every configured timeframe for a symbol and
// reduces them to one decision. Timeframes that fail or lack data are
// excluded from the vote rather than counted as WAIT.
func (e *Engine) EvaluateConsensus(ctx context.Context, symbol string) (quantum.Consensus, position.Analysis, error) {
	signals := make([]quantum.Signal, 0, len(e.cfg.Timeframes))
	var primary *quantum.Signal

	for _, interval := range e.cfg.Timeframes {
		sig, err := e.Evaluate(ctx, symbol, interval)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("Timeframe excluded")
			continue
		}
		signals = append(signals, sig)
		if interval == e.cfg.Primary {
			s := sig
			primary = &s
		}
	}

	consensus := quantum.Aggregate(signals)

	if primary == nil {
		return consensus, position.Analysis{}, feed.ErrUnavailable
	}

	analysis := position.Analysis{
		Symbol:    symbol,
		Price:     e.currentPrice(symbol, *primary),
		Signal:    *primary,
		Consensus: consensus,
		Trailing:  e.trailingFor(symbol),
		BandK:     e.configFor(symbol, e.cfg.Primary).BandK,
	}

	return consensus, analysis, nil
}

// currentPrice prefers a live streamed price when the feed provides one,
// falling back to the latest bar close backing the signal.
func (e *Engine) currentPrice(symbol string, sig quantum.Signal) float64 {
	type livePricer interface {
		LastPrice(symbol string) (decimal.Decimal, bool)
	}
	if lp, ok := e.feed.(livePricer); ok {
		if price, ok := lp.LastPrice(symbol); ok {
			f, _ := price.Float64()
			return f
		}
	}
	return sig.Price
}

// OpenIfSignaled consults the advisory validator, then hands the analysis to
// the position manager.
func (e *Engine) OpenIfSignaled(ctx context.Context, a position.Analysis) (string, error) {
	if e.validator != nil && a.Consensus.Action == quantum.ActionBuy &&
		a.Consensus.Confidence >= e.cfg.Position.ConfidenceThreshold {
		verdict, err := e.validator.Validate(ctx, validator.Summary{
			Symbol:     a.Symbol,
			Action:     a.Consensus.Action,
			Confidence: a.Consensus.Confidence,
			Level:      a.Signal.Metrics.Level,
			Regime:     a.Signal.Metrics.Regime,
			Reason:     a.Signal.Reason,
		})
		switch {
		case err != nil:
			// Advisory only: an unreachable validator never blocks the cycle.
			log.Warn().Err(err).Str("symbol", a.Symbol).Msg("Validator unavailable, proceeding")
		case !verdict.Accepted:
			log.Info().
				Str("symbol", a.Symbol).
				Str("comment", verdict.Comment).
				Msg("🤖 Validator rejected signal")
			a.Consensus.Confidence *= validatorRejectScale
		}
	}

	return e.manager.OpenIfSignaled(ctx, a)
}

// MonitorAndManage runs one monitoring tick: a fresh analysis per symbol
// with an open position, then the manager's read-modify-write pass.
func (e *Engine) MonitorAndManage(ctx context.Context) {
	symbols := e.manager.OpenSymbols()
	if len(symbols) == 0 {
		return
	}

	analyses := make(map[string]position.Analysis, len(symbols))
	for _, symbol := range symbols {
		sig, err := e.Evaluate(ctx, symbol, e.cfg.Primary)
		if err != nil {
			// Degrade: the position keeps its current stop this tick.
			log.Warn().Err(err).Str("symbol", symbol).Msg("Monitor evaluation failed")
			continue
		}
		analyses[symbol] = position.Analysis{
			Symbol:   symbol,
			Price:    e.currentPrice(symbol, sig),
			Signal:   sig,
			Trailing: e.trailingFor(symbol),
			BandK:    e.configFor(symbol, e.cfg.Primary).BandK,
		}
	}

	e.manager.MonitorAndManage(ctx, analyses)
}

// Run schedules the evaluation and monitoring cycles until ctx is cancelled,
// then waits for in-flight cycles to finish. Broker calls inside a cycle run
// on their own timeout rather than the run context, so cancellation stops
// new cycles without abandoning open positions mid-call.
func (e *Engine) Run(ctx context.Context) {
	for _, symbol := range e.cfg.Symbols {
		symbol := symbol
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.evalLoop(ctx, symbol)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.monitorLoop(ctx)
	}()

	log.Info().
		Strs("symbols", e.cfg.Symbols).
		Strs("timeframes", e.cfg.Timeframes).
		Msg("⚡ Engine started")

	<-ctx.Done()
	log.Info().Msg("Shutdown requested, draining cycles")
	e.wg.Wait()
	log.Info().Msg("Engine stopped")
}

func (e *Engine) evalLoop(ctx context.Context, symbol string) {
	ticker := time.NewTicker(e.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evalCycle(symbol)
		}
	}
}

// evalCycle runs on a background context so an in-flight cycle completes
// after shutdown is requested.
func (e *Engine) evalCycle(symbol string) {
	ctx := context.Background()

	consensus, analysis, err := e.EvaluateConsensus(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Cycle degraded to WAIT")
		return
	}

	log.Debug().
		Str("symbol", symbol).
		Str("action", string(consensus.Action)).
		Float64("confidence", consensus.Confidence).
		Int("agreeing", consensus.Agreeing).
		Int("total", consensus.Total).
		Msg("Consensus")

	if _, err := e.OpenIfSignaled(ctx, analysis); err != nil {
		if !errors.Is(err, broker.ErrInvalidOrderState) {
			log.Error().Err(err).Str("symbol", symbol).Msg("Open failed")
		} else {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Order rejected")
		}
	}
}

func (e *Engine) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.MonitorAndManage(context.Background())
		}
	}
}

// Manager exposes the position registry for status reporting.
func (e *Engine) Manager() *position.Manager {
	return e.manager
}
