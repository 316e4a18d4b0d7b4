package position

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantbot/internal/broker"
	"github.com/web3guy0/quantbot/internal/quantum"
)

// LEVEL_ADAPTIVE tiers: high levels trail tight, exhausted levels trail wide.
const (
	tightLevel    = 3
	tightTierMult = 0.7
	wideTierMult  = 2.5
)

// trailingStop computes the candidate stop for one tick from the position's
// trailing mode. Candidates that would loosen the stop are discarded by the
// caller via improves.
func (m *Manager) trailingStop(pos *Position, a Analysis) decimal.Decimal {
	price := a.Price
	atr := a.Signal.Metrics.ATR
	h := a.Signal.Metrics.H
	level := a.Signal.Metrics.Level

	var distance float64
	switch pos.Trailing {
	case quantum.TrailATR:
		distance = m.cfg.TrailATRMult * atr
	case quantum.TrailQuantumH:
		distance = m.cfg.TrailHMult * h
	case quantum.TrailBand:
		// The lower band, anchored at price: the band itself lives in action
		// space, so its k·h offset is applied to the traded price.
		distance = a.BandK * h
	case quantum.TrailLevelAdaptive:
		base := m.cfg.TrailATRMult * atr
		switch {
		case level >= tightLevel:
			distance = tightTierMult * base
		case level >= 1:
			distance = base
		default:
			// Level at or below zero signals imminent exhaustion; give the
			// position room rather than getting shaken out.
			distance = wideTierMult * base
		}
	default:
		distance = m.cfg.TrailATRMult * atr
	}

	if pos.Side == broker.SideSell {
		return decimal.NewFromFloat(price + distance)
	}
	return decimal.NewFromFloat(price - distance)
}

// applyBreakeven lifts the candidate to at least the entry price once
// unrealized profit crosses the configured fraction of entry. One-time and
// idempotent: a position already at breakeven is a no-op.
func (m *Manager) applyBreakeven(pos *Position, a Analysis, candidate decimal.Decimal) decimal.Decimal {
	if pos.breakevenDone {
		return candidate
	}

	price := decimal.NewFromFloat(a.Price)
	entry := pos.OpenPrice
	trigger := entry.Mul(decimal.NewFromFloat(m.cfg.BreakevenPct))

	if pos.Side == broker.SideSell {
		if entry.Sub(price).LessThan(trigger) {
			return candidate
		}
		pos.breakevenDone = true
		if candidate.GreaterThan(entry) || candidate.IsZero() {
			return entry
		}
		return candidate
	}

	if price.Sub(entry).LessThan(trigger) {
		return candidate
	}
	pos.breakevenDone = true
	if candidate.LessThan(entry) {
		return entry
	}
	return candidate
}

// improves reports whether the candidate tightens the stop: higher for a
// long, lower for a short. Stops never loosen.
func improves(side broker.Side, current, candidate decimal.Decimal) bool {
	if candidate.IsZero() {
		return false
	}
	if current.IsZero() {
		return true
	}
	if side == broker.SideSell {
		return candidate.LessThan(current)
	}
	return candidate.GreaterThan(current)
}
