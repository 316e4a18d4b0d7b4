package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaperVenue is an in-memory venue for dry runs and tests. Fills are
// immediate at the mark price; stop and target triggers fire on MarkPrice
// updates.
type PaperVenue struct {
	mu        sync.Mutex
	equity    decimal.Decimal
	marks     map[string]decimal.Decimal
	positions map[string]*Snapshot
}

// NewPaperVenue creates a paper venue with the given starting equity.
func NewPaperVenue(equity decimal.Decimal) *PaperVenue {
	return &PaperVenue{
		equity:    equity,
		marks:     make(map[string]decimal.Decimal),
		positions: make(map[string]*Snapshot),
	}
}

// MarkPrice sets the current price for a symbol and sweeps open tickets for
// stop or target hits, settling any that trigger.
func (v *PaperVenue) MarkPrice(symbol string, price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.marks[symbol] = price

	for ticket, pos := range v.positions {
		if pos.Symbol != symbol {
			continue
		}
		if v.triggered(pos, price) {
			v.settle(ticket, pos, price)
		}
	}
}

func (v *PaperVenue) triggered(pos *Snapshot, price decimal.Decimal) bool {
	if pos.Side == SideBuy {
		if !pos.StopLoss.IsZero() && price.LessThanOrEqual(pos.StopLoss) {
			return true
		}
		return !pos.TakeProfit.IsZero() && price.GreaterThanOrEqual(pos.TakeProfit)
	}
	if !pos.StopLoss.IsZero() && price.GreaterThanOrEqual(pos.StopLoss) {
		return true
	}
	return !pos.TakeProfit.IsZero() && price.LessThanOrEqual(pos.TakeProfit)
}

func (v *PaperVenue) settle(ticket string, pos *Snapshot, price decimal.Decimal) {
	pnl := price.Sub(pos.OpenPrice).Mul(pos.Size)
	if pos.Side == SideSell {
		pnl = pnl.Neg()
	}
	v.equity = v.equity.Add(pnl)
	delete(v.positions, ticket)

	log.Debug().
		Str("ticket", ticket).
		Str("pnl", pnl.StringFixed(2)).
		Msg("Paper position settled")
}

// SubmitOrder fills immediately at the current mark price.
func (v *PaperVenue) SubmitOrder(_ context.Context, req OrderRequest) (Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if req.Size.LessThanOrEqual(decimal.Zero) {
		return Fill{}, ErrInvalidOrderState
	}

	price, ok := v.marks[req.Symbol]
	if !ok || price.IsZero() {
		return Fill{}, ErrUnavailable
	}

	ticket := uuid.NewString()
	v.positions[ticket] = &Snapshot{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Size:       req.Size,
		OpenPrice:  price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}

	return Fill{Ticket: ticket, Price: price}, nil
}

// ModifyStop tightens or loosens the protective stop on a ticket. The paper
// venue mirrors live brokers in rejecting modifications for unknown tickets.
func (v *PaperVenue) ModifyStop(_ context.Context, ticket string, stop decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return ErrInvalidOrderState
	}
	pos.StopLoss = stop
	return nil
}

// ClosePosition settles a ticket at the current mark price.
func (v *PaperVenue) ClosePosition(_ context.Context, ticket string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return decimal.Zero, ErrPositionClosed
	}

	price, ok := v.marks[pos.Symbol]
	if !ok {
		return decimal.Zero, ErrUnavailable
	}

	v.settle(ticket, pos, price)
	return price, nil
}

// Snapshot returns the venue view of a ticket.
func (v *PaperVenue) Snapshot(_ context.Context, ticket string) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[ticket]
	if !ok {
		return Snapshot{}, ErrPositionClosed
	}
	return *pos, nil
}

// Equity returns current paper equity.
func (v *PaperVenue) Equity(_ context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.equity, nil
}
