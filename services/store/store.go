// Package store provides bar data providers and trade/checkpoint
// persistence: ClickHouse for production, CSV files for exported data and
// an in-memory variant for tests.
package store

import (
	"context"
	"errors"
	"time"

	"intraday-backtest/services/market"
	"intraday-backtest/services/trade"
)

// ErrNoData signals that a symbol-day has no bars. Callers skip the day;
// any other error is a real failure.
var ErrNoData = errors.New("no data for symbol-day")

// BarProvider serves one symbol-day of bars at a time, keeping the engine's
// memory bounded regardless of history length.
type BarProvider interface {
	TradingDays(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error)
	DayBars(ctx context.Context, symbol string, day time.Time) (market.BarSeries, error)
}

// TradeStore is the append-only record sink. Writes are idempotent: a
// record's natural key (strategy, symbol, entry time) deduplicates rewrites
// after a resume.
type TradeStore interface {
	WriteTrades(ctx context.Context, records []trade.Record) error
	LoadTrades(ctx context.Context, strategy string) ([]trade.Record, error)
}

// CheckpointStore persists run progress. Load returns (nil, nil) when no
// checkpoint exists yet.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, strategy string) (*trade.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *trade.Checkpoint) error
}
