// Package feed supplies OHLCV bars to the engine. The engine treats the feed
// as an external collaborator: a short or empty window means insufficient
// data for this cycle, never a crash.
package feed

import (
	"context"
	"errors"

	"github.com/web3guy0/quantbot/internal/quantum"
)

// ErrUnavailable marks a feed call that failed or timed out. The cycle is
// skipped and retried on the next tick.
var ErrUnavailable = errors.New("feed: unavailable")

// BarFeed returns up to `count` most recent bars for a symbol/interval,
// oldest first. It may return fewer than requested.
type BarFeed interface {
	GetBars(ctx context.Context, symbol, interval string, count int) ([]quantum.Bar, error)
}
