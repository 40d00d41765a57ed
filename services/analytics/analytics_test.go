package analytics

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"intraday-backtest/services/trade"
)

func tr(symbol string, exit time.Time, pnl float64) trade.Record {
	return trade.Record{
		Symbol:     symbol,
		Strategy:   "s",
		EntryTime:  exit.Add(-time.Hour),
		ExitTime:   exit,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewFromFloat(100 + pnl),
		Side:       trade.SideLong,
		ExitReason: trade.ExitTimeExit,
		PnL:        decimal.NewFromFloat(pnl),
		Duration:   time.Hour,
	}
}

func day(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 15, 15, 0, 0, time.UTC) }

func TestAnalyzeEmpty(t *testing.T) {
	rep := Analyze("s", nil, false)
	require.Equal(t, 0, rep.TradeCount)
	require.Equal(t, Ratio(0), rep.ProfitFactor)
	require.Zero(t, rep.MaxDrawdown)
	require.Empty(t, rep.Yearly)
}

func TestAnalyzeBasicMetrics(t *testing.T) {
	records := []trade.Record{
		tr("AAA", day(2023, 1, 2), 10),
		tr("AAA", day(2023, 1, 3), -4),
		tr("BBB", day(2023, 1, 4), -6),
		tr("BBB", day(2023, 1, 5), 2),
	}
	rep := Analyze("s", records, false)
	require.Equal(t, 4, rep.TradeCount)
	require.InDelta(t, 2, rep.NetPnL, 1e-9)
	require.InDelta(t, 0.5, rep.WinRate, 1e-9)
	require.InDelta(t, 12, rep.GrossProfit, 1e-9)
	require.InDelta(t, 10, rep.GrossLoss, 1e-9)
	require.InDelta(t, 1.2, float64(rep.ProfitFactor), 1e-9)
	// equity path 10, 6, 0, 2: peak 10, trough 0
	require.InDelta(t, 10, rep.MaxDrawdown, 1e-9)
	require.InDelta(t, 10, rep.PeakEquity, 1e-9)
	require.InDelta(t, 2, rep.FinalEquity, 1e-9)
	require.Equal(t, 2, rep.MaxConsecutiveLosses)
	require.Equal(t, 2, rep.BySymbol["AAA"].Trades)
	require.InDelta(t, 0.5, rep.BySymbol["AAA"].WinRate, 1e-9)
}

func TestProfitFactorInfiniteWithoutLosses(t *testing.T) {
	records := []trade.Record{
		tr("AAA", day(2023, 1, 2), 5),
		tr("AAA", day(2023, 1, 3), 3),
	}
	rep := Analyze("s", records, false)
	require.True(t, math.IsInf(float64(rep.ProfitFactor), 1))

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	require.Contains(t, string(data), `"profit_factor":"inf"`)

	var back MetricReport
	require.NoError(t, json.Unmarshal(data, &back))
	require.True(t, math.IsInf(float64(back.ProfitFactor), 1))
}

func TestVaRLinearInterpolation(t *testing.T) {
	records := []trade.Record{
		tr("A", day(2023, 1, 2), -10),
		tr("A", day(2023, 1, 3), -5),
		tr("A", day(2023, 1, 4), 0),
		tr("A", day(2023, 1, 5), 5),
		tr("A", day(2023, 1, 6), 10),
	}
	rep := Analyze("s", records, false)
	// pos = 0.05*4 = 0.2 between -10 and -5
	require.InDelta(t, -9, rep.VaR95, 1e-9)
	// pos = 0.01*4 = 0.04
	require.InDelta(t, -9.8, rep.VaR99, 1e-9)
}

func TestMaxDrawdownGrowsWithPrefixes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var records []trade.Record
	for i := 0; i < 100; i++ {
		records = append(records, tr("AAA", day(2023, 1, 2).Add(time.Duration(i)*time.Hour), rng.NormFloat64()*5))
	}
	prev := 0.0
	for n := 1; n <= len(records); n++ {
		dd := Analyze("s", records[:n], false).MaxDrawdown
		require.GreaterOrEqual(t, dd, prev)
		prev = dd
	}
}

func TestMaxConsecutiveLossesIgnoresBreakEven(t *testing.T) {
	records := []trade.Record{
		tr("A", day(2023, 1, 2), -1),
		tr("A", day(2023, 1, 3), -1),
		tr("A", day(2023, 1, 4), 0), // break-even resets the streak
		tr("A", day(2023, 1, 5), -1),
	}
	rep := Analyze("s", records, false)
	require.Equal(t, 2, rep.MaxConsecutiveLosses)
}

func TestYearlyStability(t *testing.T) {
	records := []trade.Record{
		tr("A", day(2021, 6, 1), 10),
		tr("A", day(2022, 6, 1), -3),
		tr("A", day(2023, 6, 1), 4),
	}
	rep := Analyze("s", records, false)
	require.Len(t, rep.Yearly, 3)
	require.InDelta(t, 2.0/3.0, rep.YearlyStability, 1e-9)
	require.InDelta(t, -3, rep.Yearly[2022].NetPnL, 1e-9)
}

func TestSharpeLikeNeedsTwoDays(t *testing.T) {
	oneDay := []trade.Record{
		tr("A", day(2023, 1, 2), 5),
		tr("A", day(2023, 1, 2).Add(time.Hour), 3),
	}
	require.Zero(t, Analyze("s", oneDay, false).SharpeLike)

	twoDays := append(oneDay, tr("A", day(2023, 1, 3), 1))
	require.NotZero(t, Analyze("s", twoDays, false).SharpeLike)
}

// Path-dependent metrics must not depend on store iteration order.
func TestAnalyzeOrderIndependent(t *testing.T) {
	var records []trade.Record
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		records = append(records, tr("A", day(2023, 1, 2).Add(time.Duration(i)*time.Hour), rng.Float64()*20-10))
	}
	want := Analyze("s", records, false)

	shuffled := make([]trade.Record, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got := Analyze("s", shuffled, false)

	require.InDelta(t, want.MaxDrawdown, got.MaxDrawdown, 1e-9)
	require.InDelta(t, want.NetPnL, got.NetPnL, 1e-9)
	require.Equal(t, want.MaxConsecutiveLosses, got.MaxConsecutiveLosses)
}

func TestPartialFlagPropagates(t *testing.T) {
	rep := Analyze("s", []trade.Record{tr("A", day(2023, 1, 2), 1)}, true)
	require.True(t, rep.Partial)
}
