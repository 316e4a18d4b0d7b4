// Package metrics exposes the engine's operational counters in Prometheus
// text exposition format. Served at /metrics by the HTTP handler started in
// main.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbot_signals_total",
			Help: "Signals evaluated, by action",
		},
		[]string{"action"},
	)

	TradesOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantbot_trades_opened_total",
			Help: "Positions opened",
		},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbot_trades_closed_total",
			Help: "Positions closed, by reason",
		},
		[]string{"reason"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantbot_open_positions",
			Help: "Currently open positions",
		},
	)

	StopUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantbot_stop_updates_total",
			Help: "Trailing stop modifications applied",
		},
	)

	CycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbot_cycle_errors_total",
			Help: "Evaluation cycles degraded to WAIT, by cause",
		},
		[]string{"cause"},
	)
)

func init() {
	prometheus.MustRegister(
		Signals,
		TradesOpened,
		TradesClosed,
		OpenPositions,
		StopUpdates,
		CycleErrors,
	)
}
