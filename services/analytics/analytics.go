// Package analytics computes performance metrics over a closed-trade set.
// All metrics are pure functions of the input records; the trade set is
// canonically ordered before any path-dependent metric is computed.
package analytics

import (
	"encoding/json"
	"math"
	"sort"

	"intraday-backtest/services/trade"
)

// Ratio is a float64 that survives JSON encoding when infinite. A strategy
// with gains and zero losses has an infinite profit factor.
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(f):
		return []byte(`null`), nil
	}
	return json.Marshal(f)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"inf"`:
		*r = Ratio(math.Inf(1))
		return nil
	case `"-inf"`:
		*r = Ratio(math.Inf(-1))
		return nil
	case `null`:
		*r = Ratio(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// GroupStats aggregates trades sharing a grouping key.
type GroupStats struct {
	Trades  int     `json:"trades"`
	NetPnL  float64 `json:"net_pnl"`
	WinRate float64 `json:"win_rate"`
}

// MetricReport is the full metric set for one strategy's trades.
type MetricReport struct {
	Strategy   string `json:"strategy"`
	TradeCount int    `json:"trade_count"`

	NetPnL       float64 `json:"net_pnl"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor Ratio   `json:"profit_factor"`

	MaxDrawdown float64 `json:"max_drawdown"`
	PeakEquity  float64 `json:"peak_equity"`
	FinalEquity float64 `json:"final_equity"`

	SharpeLike float64 `json:"sharpe_like"`
	VaR95      float64 `json:"var_95"`
	VaR99      float64 `json:"var_99"`

	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	Yearly          map[int]GroupStats    `json:"yearly"`
	YearlyStability float64               `json:"yearly_stability"`
	BySymbol        map[string]GroupStats `json:"by_symbol"`

	// Partial marks a report built from an aborted or still-running
	// backtest. Partial reports must not drive go/no-go decisions.
	Partial bool `json:"partial"`
}

// Analyze computes the full metric set. The input slice is not modified;
// records are stably ordered by (ExitTime, Symbol) so equity-curve metrics
// are deterministic regardless of store iteration order.
func Analyze(strategy string, records []trade.Record, partial bool) *MetricReport {
	rep := &MetricReport{
		Strategy: strategy,
		Partial:  partial,
		Yearly:   map[int]GroupStats{},
		BySymbol: map[string]GroupStats{},
	}
	if len(records) == 0 {
		return rep
	}

	ordered := make([]trade.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ExitTime.Equal(ordered[j].ExitTime) {
			return ordered[i].ExitTime.Before(ordered[j].ExitTime)
		}
		return ordered[i].Symbol < ordered[j].Symbol
	})

	rep.TradeCount = len(ordered)
	pnls := make([]float64, len(ordered))
	wins := 0
	var equity, peak, maxDD float64
	losing := 0
	for i, r := range ordered {
		p := r.PnL.InexactFloat64()
		pnls[i] = p
		rep.NetPnL += p
		switch {
		case p > 0:
			rep.GrossProfit += p
			wins++
			losing = 0
		case p < 0:
			rep.GrossLoss += -p
			losing++
			if losing > rep.MaxConsecutiveLosses {
				rep.MaxConsecutiveLosses = losing
			}
		default:
			losing = 0
		}

		equity += p
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}

		year := r.ExitTime.UTC().Year()
		rep.Yearly[year] = accumulate(rep.Yearly[year], p)
		rep.BySymbol[r.Symbol] = accumulate(rep.BySymbol[r.Symbol], p)
	}
	rep.WinRate = float64(wins) / float64(len(ordered))
	rep.MaxDrawdown = maxDD
	rep.PeakEquity = peak
	rep.FinalEquity = equity

	switch {
	case rep.GrossLoss > 0:
		rep.ProfitFactor = Ratio(rep.GrossProfit / rep.GrossLoss)
	case rep.GrossProfit > 0:
		rep.ProfitFactor = Ratio(math.Inf(1))
	default:
		rep.ProfitFactor = 0
	}

	for y, gs := range rep.Yearly {
		rep.Yearly[y] = finalize(gs)
	}
	for s, gs := range rep.BySymbol {
		rep.BySymbol[s] = finalize(gs)
	}
	profitable := 0
	for _, gs := range rep.Yearly {
		if gs.NetPnL > 0 {
			profitable++
		}
	}
	rep.YearlyStability = float64(profitable) / float64(len(rep.Yearly))

	rep.SharpeLike = sharpeLike(ordered)
	rep.VaR95 = quantile(pnls, 0.05)
	rep.VaR99 = quantile(pnls, 0.01)
	return rep
}

// accumulate abuses GroupStats.WinRate as a win counter until finalize.
func accumulate(gs GroupStats, pnl float64) GroupStats {
	gs.Trades++
	gs.NetPnL += pnl
	if pnl > 0 {
		gs.WinRate++
	}
	return gs
}

func finalize(gs GroupStats) GroupStats {
	gs.WinRate /= float64(gs.Trades)
	return gs
}

// sharpeLike is mean over sample stddev of calendar-day PnL, annualized by
// sqrt(252). Days without trades do not contribute zeros. Returns 0 with
// fewer than two trading days or zero variance.
func sharpeLike(ordered []trade.Record) float64 {
	daily := map[string]float64{}
	for _, r := range ordered {
		day := r.ExitTime.UTC().Format("2006-01-02")
		daily[day] += r.PnL.InexactFloat64()
	}
	if len(daily) < 2 {
		return 0
	}
	var sum float64
	for _, p := range daily {
		sum += p
	}
	mean := sum / float64(len(daily))
	var ss float64
	for _, p := range daily {
		d := p - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(daily)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// quantile is the linearly interpolated empirical quantile at position
// q*(n-1) over the sorted sample.
func quantile(sample []float64, q float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
