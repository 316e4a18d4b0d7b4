// Package broker abstracts the order-execution venue. The engine submits,
// modifies and closes by ticket; everything broker-specific (lot rounding,
// symbol naming) stays behind the Venue interface.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable marks a venue call that failed or timed out; the cycle
	// is skipped and retried next tick.
	ErrUnavailable = errors.New("broker: unavailable")

	// ErrInvalidOrderState marks a rejected order or modification (stop
	// already better, margin). Logged, not retried in the same tick.
	ErrInvalidOrderState = errors.New("broker: invalid order state")

	// ErrPositionClosed is returned by Snapshot when the venue no longer
	// holds the ticket.
	ErrPositionClosed = errors.New("broker: position closed")
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderRequest describes a market order with protective levels attached.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Size       decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Fill is the venue's acknowledgment of a submitted order.
type Fill struct {
	Ticket string
	Price  decimal.Decimal
}

// Snapshot is the venue's view of an open ticket, used to re-read state
// after a failed modification.
type Snapshot struct {
	Ticket     string
	Symbol     string
	Side       Side
	Size       decimal.Decimal
	OpenPrice  decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Venue is the execution endpoint.
type Venue interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error)
	ModifyStop(ctx context.Context, ticket string, stop decimal.Decimal) error
	ClosePosition(ctx context.Context, ticket string) (decimal.Decimal, error)
	Snapshot(ctx context.Context, ticket string) (Snapshot, error)
	Equity(ctx context.Context) (decimal.Decimal, error)
}
