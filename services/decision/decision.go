// Package decision maps a metric report to a go/no-go verdict against
// configured viability thresholds.
package decision

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"intraday-backtest/services/analytics"
)

// Verdict is the recommendation for a strategy.
type Verdict string

const (
	// VerdictKill means the strategy is not viable as tested.
	VerdictKill Verdict = "KILL"
	// VerdictModify means results are promising but below the bar;
	// parameters should be revisited before another run.
	VerdictModify Verdict = "MODIFY"
	// VerdictApprove means every threshold passed.
	VerdictApprove Verdict = "APPROVE"
)

// ErrPartialReport is returned when a verdict is requested for a report
// built from an incomplete trade set.
var ErrPartialReport = errors.New("report is partial, refusing verdict")

// Thresholds configure the policy. Zero values disable individual checks
// except MinTrades, which always applies.
type Thresholds struct {
	MinTrades          int     `yaml:"min_trades"`
	MinViableTrades    int     `yaml:"min_viable_trades"`
	MaxDrawdownFrac    float64 `yaml:"max_drawdown_frac"`
	MinProfitFactor    float64 `yaml:"min_profit_factor"`
	MinSharpe          float64 `yaml:"min_sharpe"`
	MinYearlyStability float64 `yaml:"min_yearly_stability"`
}

// DefaultThresholds mirror the production review policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTrades:          50,
		MinViableTrades:    10,
		MaxDrawdownFrac:    0.20,
		MinProfitFactor:    1.2,
		MinSharpe:          0.5,
		MinYearlyStability: 0.6,
	}
}

// LoadThresholds reads a YAML threshold file, filling omitted fields with
// defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse thresholds: %w", err)
	}
	return t, nil
}

// Outcome is a verdict with the reasons that produced it.
type Outcome struct {
	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons"`
}

// Evaluate applies the thresholds to a complete report.
//
// A report with fewer than MinViableTrades trades, non-positive net PnL, or
// a drawdown breach is killed outright. Failing any remaining threshold
// yields MODIFY. Passing everything yields APPROVE.
func Evaluate(rep *analytics.MetricReport, t Thresholds) (Outcome, error) {
	if rep.Partial {
		return Outcome{}, ErrPartialReport
	}

	var kill, modify []string

	if rep.TradeCount < t.MinViableTrades {
		kill = append(kill, fmt.Sprintf("only %d trades, below viable floor %d", rep.TradeCount, t.MinViableTrades))
	}
	if rep.NetPnL <= 0 {
		kill = append(kill, fmt.Sprintf("net PnL %.2f is not positive", rep.NetPnL))
	}
	if t.MaxDrawdownFrac > 0 && rep.PeakEquity > 0 {
		frac := rep.MaxDrawdown / rep.PeakEquity
		if frac > t.MaxDrawdownFrac {
			kill = append(kill, fmt.Sprintf("max drawdown %.1f%% of peak equity exceeds %.1f%%", frac*100, t.MaxDrawdownFrac*100))
		}
	}
	if len(kill) > 0 {
		return Outcome{Verdict: VerdictKill, Reasons: kill}, nil
	}

	if rep.TradeCount < t.MinTrades {
		modify = append(modify, fmt.Sprintf("%d trades, below significance floor %d", rep.TradeCount, t.MinTrades))
	}
	pf := float64(rep.ProfitFactor)
	if t.MinProfitFactor > 0 && !math.IsInf(pf, 1) && pf < t.MinProfitFactor {
		modify = append(modify, fmt.Sprintf("profit factor %.2f below %.2f", pf, t.MinProfitFactor))
	}
	if t.MinSharpe > 0 && rep.SharpeLike < t.MinSharpe {
		modify = append(modify, fmt.Sprintf("sharpe %.2f below %.2f", rep.SharpeLike, t.MinSharpe))
	}
	if t.MinYearlyStability > 0 && rep.YearlyStability < t.MinYearlyStability {
		modify = append(modify, fmt.Sprintf("profitable in %.0f%% of years, below %.0f%%", rep.YearlyStability*100, t.MinYearlyStability*100))
	}
	if len(modify) > 0 {
		return Outcome{Verdict: VerdictModify, Reasons: modify}, nil
	}

	return Outcome{Verdict: VerdictApprove, Reasons: []string{"all thresholds passed"}}, nil
}
