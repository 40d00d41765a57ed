// Package monitoring exposes Prometheus metrics for backtest runs.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts run progress; the server serves them at /metrics.
type Metrics struct {
	SymbolsProcessed *prometheus.CounterVec
	SymbolsSkipped   *prometheus.CounterVec
	DaysSkipped      *prometheus.CounterVec
	TradesWritten    *prometheus.CounterVec
	FlushDuration    prometheus.Histogram
}

// NewMetrics registers the collectors on reg, or the default registry when
// reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		SymbolsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_symbols_processed_total",
			Help: "Symbols fully processed and flushed.",
		}, []string{"strategy"}),
		SymbolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_symbols_skipped_total",
			Help: "Symbols skipped after a per-symbol failure.",
		}, []string{"strategy"}),
		DaysSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_days_skipped_total",
			Help: "Symbol-days skipped for data gaps.",
		}, []string{"strategy"}),
		TradesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_written_total",
			Help: "Trade records flushed to the store.",
		}, []string{"strategy"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_flush_duration_seconds",
			Help:    "Latency of trade store flushes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.SymbolsProcessed, m.SymbolsSkipped, m.DaysSkipped, m.TradesWritten, m.FlushDuration)
	return m
}
