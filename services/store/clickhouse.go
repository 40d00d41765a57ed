package store

import (
	"context"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"intraday-backtest/services/market"
	"intraday-backtest/services/trade"
)

// ClickHouseConfig holds connection settings; values come from flags or env.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	BarTable string `yaml:"bar_table"`
}

func (c *ClickHouseConfig) withDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:9000"
	}
	if c.Database == "" {
		c.Database = "backtest"
	}
	if c.BarTable == "" {
		c.BarTable = "minute_bars"
	}
}

// ClickHouse implements BarProvider, TradeStore and CheckpointStore over
// the native protocol. Trades and checkpoints live in ReplacingMergeTree
// tables keyed by their natural identity, so reprocessing a symbol after a
// crash rewrites rather than duplicates.
type ClickHouse struct {
	conn clickhouse.Conn
	cfg  ClickHouseConfig
	log  *zap.Logger
}

func NewClickHouse(ctx context.Context, cfg ClickHouseConfig, log *zap.Logger) (*ClickHouse, error) {
	cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	ch := &ClickHouse{conn: conn, cfg: cfg, log: log}
	if err := ch.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

func (ch *ClickHouse) Close() error { return ch.conn.Close() }

func (ch *ClickHouse) ensureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.trades (
			strategy LowCardinality(String),
			symbol LowCardinality(String),
			entry_time DateTime64(3, 'UTC'),
			entry_price Float64,
			exit_time DateTime64(3, 'UTC'),
			exit_price Float64,
			side LowCardinality(String),
			exit_reason LowCardinality(String),
			pnl Float64,
			duration_ms Int64,
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (strategy, symbol, entry_time)
		SETTINGS index_granularity = 8192
	`, ch.cfg.Database),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.checkpoints (
			strategy LowCardinality(String),
			run_id String,
			processed Array(String),
			last_symbol String,
			updated_at DateTime64(3, 'UTC')
		)
		ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY strategy
	`, ch.cfg.Database),
	}
	for _, q := range ddl {
		if err := ch.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (ch *ClickHouse) TradingDays(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	q := fmt.Sprintf(`
		SELECT DISTINCT toDate(ts) AS d
		FROM %s.%s
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY d
	`, ch.cfg.Database, ch.cfg.BarTable)
	rows, err := ch.conn.Query(ctx, q, symbol, from, to.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query trading days: %w", err)
	}
	defer rows.Close()
	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trading day: %w", err)
		}
		days = append(days, d.UTC())
	}
	return days, rows.Err()
}

func (ch *ClickHouse) DayBars(ctx context.Context, symbol string, day time.Time) (market.BarSeries, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	q := fmt.Sprintf(`
		SELECT ts, open, high, low, close, volume
		FROM %s.%s
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts
	`, ch.cfg.Database, ch.cfg.BarTable)
	rows, err := ch.conn.Query(ctx, q, symbol, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return market.BarSeries{}, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	series := market.BarSeries{Symbol: symbol, Day: dayStart}
	for rows.Next() {
		var (
			ts                     time.Time
			open, high, low, close float64
			volume                 int64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume); err != nil {
			return market.BarSeries{}, fmt.Errorf("scan bar: %w", err)
		}
		series.Bars = append(series.Bars, market.Bar{
			Symbol:    symbol,
			Timestamp: ts.UTC(),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(close),
			Volume:    volume,
		})
	}
	if err := rows.Err(); err != nil {
		return market.BarSeries{}, err
	}
	if len(series.Bars) == 0 {
		return market.BarSeries{}, ErrNoData
	}

	prevQ := fmt.Sprintf(`
		SELECT close FROM %s.%s
		WHERE symbol = ? AND ts < ?
		ORDER BY ts DESC LIMIT 1
	`, ch.cfg.Database, ch.cfg.BarTable)
	var prevClose float64
	if err := ch.conn.QueryRow(ctx, prevQ, symbol, dayStart).Scan(&prevClose); err == nil {
		series.PrevClose = decimal.NewFromFloat(prevClose)
	}
	return series, nil
}

func (ch *ClickHouse) WriteTrades(ctx context.Context, records []trade.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := ch.conn.PrepareBatch(ctx,
		fmt.Sprintf(`INSERT INTO %s.trades SETTINGS insert_deduplicate=1`, ch.cfg.Database))
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}
	ver := uint64(time.Now().UTC().UnixNano())
	for _, r := range records {
		if err := batch.Append(
			r.Strategy,
			r.Symbol,
			r.EntryTime,
			r.EntryPrice.InexactFloat64(),
			r.ExitTime,
			r.ExitPrice.InexactFloat64(),
			string(r.Side),
			string(r.ExitReason),
			r.PnL.InexactFloat64(),
			r.Duration.Milliseconds(),
			ver,
		); err != nil {
			return fmt.Errorf("batch append %s: %w", r.Key(), err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	return nil
}

func (ch *ClickHouse) LoadTrades(ctx context.Context, strategy string) ([]trade.Record, error) {
	q := fmt.Sprintf(`
		SELECT symbol, entry_time, entry_price, exit_time, exit_price, side, exit_reason, pnl, duration_ms
		FROM %s.trades FINAL
		WHERE strategy = ?
		ORDER BY exit_time, symbol
	`, ch.cfg.Database)
	rows, err := ch.conn.Query(ctx, q, strategy)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	var out []trade.Record
	for rows.Next() {
		var (
			r                      trade.Record
			entryPrice, exitPrice  float64
			pnl                    float64
			durationMs             int64
			side, exitReason       string
		)
		r.Strategy = strategy
		if err := rows.Scan(&r.Symbol, &r.EntryTime, &entryPrice, &r.ExitTime, &exitPrice,
			&side, &exitReason, &pnl, &durationMs); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		r.EntryTime = r.EntryTime.UTC()
		r.ExitTime = r.ExitTime.UTC()
		r.EntryPrice = decimal.NewFromFloat(entryPrice)
		r.ExitPrice = decimal.NewFromFloat(exitPrice)
		r.Side = trade.Side(side)
		r.ExitReason = trade.ExitReason(exitReason)
		r.PnL = decimal.NewFromFloat(pnl)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (ch *ClickHouse) LoadCheckpoint(ctx context.Context, strategy string) (*trade.Checkpoint, error) {
	q := fmt.Sprintf(`
		SELECT run_id, processed, last_symbol, updated_at
		FROM %s.checkpoints FINAL
		WHERE strategy = ?
		LIMIT 1
	`, ch.cfg.Database)
	rows, err := ch.conn.Query(ctx, q, strategy)
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	cp := &trade.Checkpoint{Strategy: strategy}
	if err := rows.Scan(&cp.RunID, &cp.Processed, &cp.LastSymbol, &cp.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return cp, nil
}

func (ch *ClickHouse) SaveCheckpoint(ctx context.Context, cp *trade.Checkpoint) error {
	q := fmt.Sprintf(`INSERT INTO %s.checkpoints (strategy, run_id, processed, last_symbol, updated_at)`, ch.cfg.Database)
	batch, err := ch.conn.PrepareBatch(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare checkpoint batch: %w", err)
	}
	if err := batch.Append(cp.Strategy, cp.RunID, cp.Processed, cp.LastSymbol, cp.UpdatedAt); err != nil {
		return fmt.Errorf("checkpoint append: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("checkpoint send: %w", err)
	}
	return nil
}

var (
	_ BarProvider     = (*ClickHouse)(nil)
	_ TradeStore      = (*ClickHouse)(nil)
	_ CheckpointStore = (*ClickHouse)(nil)
)
