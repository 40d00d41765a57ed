package store

import (
	"context"
	"sync"
	"time"

	"intraday-backtest/services/market"
	"intraday-backtest/services/trade"
)

// Memory implements BarProvider, TradeStore and CheckpointStore in process
// memory. Used by tests and by the synthetic data path.
type Memory struct {
	mu          sync.Mutex
	bars        map[string]map[int64]market.BarSeries
	days        map[string][]time.Time
	records     []trade.Record
	keys        map[string]struct{}
	checkpoints map[string]*trade.Checkpoint
}

func NewMemory() *Memory {
	return &Memory{
		bars:        make(map[string]map[int64]market.BarSeries),
		days:        make(map[string][]time.Time),
		keys:        make(map[string]struct{}),
		checkpoints: make(map[string]*trade.Checkpoint),
	}
}

func dayKey(day time.Time) int64 {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// AddDay registers one symbol-day of bars.
func (m *Memory) AddDay(series market.BarSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bars[series.Symbol] == nil {
		m.bars[series.Symbol] = make(map[int64]market.BarSeries)
	}
	k := dayKey(series.Day)
	if _, exists := m.bars[series.Symbol][k]; !exists {
		m.days[series.Symbol] = append(m.days[series.Symbol], series.Day)
	}
	m.bars[series.Symbol][k] = series
}

func (m *Memory) TradingDays(_ context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, d := range m.days[symbol] {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) DayBars(_ context.Context, symbol string, day time.Time) (market.BarSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.bars[symbol][dayKey(day)]
	if !ok {
		return market.BarSeries{}, ErrNoData
	}
	return series, nil
}

func (m *Memory) WriteTrades(_ context.Context, records []trade.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		k := r.Key()
		if _, dup := m.keys[k]; dup {
			continue
		}
		m.keys[k] = struct{}{}
		m.records = append(m.records, r)
	}
	return nil
}

func (m *Memory) LoadTrades(_ context.Context, strategy string) ([]trade.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []trade.Record
	for _, r := range m.records {
		if r.Strategy == strategy {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) LoadCheckpoint(_ context.Context, strategy string) (*trade.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[strategy]
	if !ok {
		return nil, nil
	}
	cloned := *cp
	cloned.Processed = append([]string(nil), cp.Processed...)
	return &cloned, nil
}

func (m *Memory) SaveCheckpoint(_ context.Context, cp *trade.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := *cp
	cloned.Processed = append([]string(nil), cp.Processed...)
	m.checkpoints[cp.Strategy] = &cloned
	return nil
}
