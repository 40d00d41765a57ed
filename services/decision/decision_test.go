package decision

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"intraday-backtest/services/analytics"
)

// healthyReport passes every default threshold.
func healthyReport() *analytics.MetricReport {
	return &analytics.MetricReport{
		Strategy:        "s",
		TradeCount:      120,
		NetPnL:          500,
		ProfitFactor:    1.6,
		MaxDrawdown:     50,
		PeakEquity:      600,
		SharpeLike:      1.1,
		YearlyStability: 0.75,
	}
}

func TestEvaluateApprove(t *testing.T) {
	out, err := Evaluate(healthyReport(), DefaultThresholds())
	require.NoError(t, err)
	require.Equal(t, VerdictApprove, out.Verdict)
}

func TestEvaluateRefusesPartialReport(t *testing.T) {
	rep := healthyReport()
	rep.Partial = true
	_, err := Evaluate(rep, DefaultThresholds())
	require.ErrorIs(t, err, ErrPartialReport)
}

func TestEvaluateKillCases(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*analytics.MetricReport)
	}{
		{"too few trades to judge", func(r *analytics.MetricReport) { r.TradeCount = 3 }},
		{"negative net pnl", func(r *analytics.MetricReport) { r.NetPnL = -10 }},
		{"break even net pnl", func(r *analytics.MetricReport) { r.NetPnL = 0 }},
		{"drawdown breach", func(r *analytics.MetricReport) { r.MaxDrawdown = 200 }}, // 33% of peak
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := healthyReport()
			tc.mutate(rep)
			out, err := Evaluate(rep, DefaultThresholds())
			require.NoError(t, err)
			require.Equal(t, VerdictKill, out.Verdict)
			require.NotEmpty(t, out.Reasons)
		})
	}
}

func TestEvaluateModifyCases(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*analytics.MetricReport)
	}{
		{"below significance floor", func(r *analytics.MetricReport) { r.TradeCount = 30 }},
		{"weak profit factor", func(r *analytics.MetricReport) { r.ProfitFactor = 1.05 }},
		{"weak sharpe", func(r *analytics.MetricReport) { r.SharpeLike = 0.2 }},
		{"unstable years", func(r *analytics.MetricReport) { r.YearlyStability = 0.4 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := healthyReport()
			tc.mutate(rep)
			out, err := Evaluate(rep, DefaultThresholds())
			require.NoError(t, err)
			require.Equal(t, VerdictModify, out.Verdict)
		})
	}
}

func TestEvaluateInfiniteProfitFactorPasses(t *testing.T) {
	rep := healthyReport()
	rep.ProfitFactor = analytics.Ratio(math.Inf(1))
	out, err := Evaluate(rep, DefaultThresholds())
	require.NoError(t, err)
	require.Equal(t, VerdictApprove, out.Verdict)
}

func TestLoadThresholds(t *testing.T) {
	raw := "min_trades: 75\nmax_drawdown_frac: 0.15\n"
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	th, err := LoadThresholds(path)
	require.NoError(t, err)
	require.Equal(t, 75, th.MinTrades)
	require.Equal(t, 0.15, th.MaxDrawdownFrac)
	// unset fields keep defaults
	require.Equal(t, 1.2, th.MinProfitFactor)

	_, err = LoadThresholds(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
