// Package notify delivers trade and signal alerts. The engine treats the
// sink as optional: a nil Notifier or a delivery failure never blocks a
// trading cycle.
package notify

import "github.com/shopspring/decimal"

// Notifier receives trade lifecycle alerts.
type Notifier interface {
	NotifyTrade(action, symbol, side string, price, size decimal.Decimal)
	NotifyText(text string)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) NotifyTrade(string, string, string, decimal.Decimal, decimal.Decimal) {}
func (Noop) NotifyText(string)                                                    {}
