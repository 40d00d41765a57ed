package engine

import (
	"github.com/shopspring/decimal"

	"intraday-backtest/services/market"
	"intraday-backtest/services/rulespec"
	"intraday-backtest/services/trade"
)

// entryRule is a per-day, stateful entry evaluator. observe is called for
// every bar in order; evaluate may be called after observe on the same bar
// and sees state built from bars up to and including that bar, never later
// ones.
type entryRule interface {
	observe(bar market.Bar)
	evaluate(bar market.Bar) (decimal.Decimal, bool)
}

func newEntryRule(spec *rulespec.RuleSpec, session market.Session, series market.BarSeries) entryRule {
	switch spec.Entry.Kind {
	case rulespec.EntryVWAPPullback:
		return &vwapPullback{
			side:              spec.Side,
			trendThreshold:    spec.Param("trend_threshold", 0.005),
			pullbackThreshold: spec.Param("pullback_threshold", 0.002),
			volMult:           spec.Param("volume_multiplier", 0),
			minTrendBars:      int(spec.Param("min_trend_minutes", 30)),
		}
	default:
		rangeMinutes := int(spec.Param("opening_range_minutes", 15))
		end := market.Clock{
			Hour:   (session.Open.Minutes() + rangeMinutes) / 60,
			Minute: (session.Open.Minutes() + rangeMinutes) % 60,
		}
		return &orbBreakout{
			side:        spec.Side,
			rangeEnd:    end,
			minBreakout: spec.Param("min_breakout_pct", 0),
			minGap:      spec.Param("min_gap_pct", 0),
			volMult:     spec.Param("volume_multiplier", 0),
			prevClose:   series.PrevClose,
		}
	}
}

// orbBreakout enters on a break of the opening range: above the range high
// for longs, below the range low for shorts. Optional filters: gap versus
// the previous close and volume versus the running day average.
type orbBreakout struct {
	side        trade.Side
	rangeEnd    market.Clock
	minBreakout float64
	minGap      float64
	volMult     float64
	prevClose   decimal.Decimal

	rangeHigh    decimal.Decimal
	rangeLow     decimal.Decimal
	rangeSeen    bool
	rangeDone    bool
	firstOpen    decimal.Decimal
	haveOpen     bool
	vol          volumeState
	priorVolMean float64
	havePriorVol bool
}

func (r *orbBreakout) observe(bar market.Bar) {
	if !r.haveOpen {
		r.firstOpen = bar.Open
		r.haveOpen = true
	}
	if !r.rangeDone {
		if r.rangeEnd.AtOrAfter(bar.Timestamp) {
			r.rangeDone = r.rangeSeen
		} else {
			if !r.rangeSeen || bar.High.Cmp(r.rangeHigh) > 0 {
				r.rangeHigh = bar.High
			}
			if !r.rangeSeen || bar.Low.Cmp(r.rangeLow) < 0 {
				r.rangeLow = bar.Low
			}
			r.rangeSeen = true
		}
	}
	r.priorVolMean, r.havePriorVol = r.vol.priorMean()
	r.vol.update(bar)
}

func (r *orbBreakout) evaluate(bar market.Bar) (decimal.Decimal, bool) {
	if !r.rangeDone {
		return decimal.Decimal{}, false
	}
	if r.minGap > 0 {
		if r.prevClose.Sign() <= 0 {
			return decimal.Decimal{}, false
		}
		gap := r.firstOpen.Sub(r.prevClose).Div(r.prevClose).InexactFloat64()
		if gap < r.minGap {
			return decimal.Decimal{}, false
		}
	}
	if r.volMult > 0 {
		if !r.havePriorVol || float64(bar.Volume) < r.volMult*r.priorVolMean {
			return decimal.Decimal{}, false
		}
	}
	if r.side == trade.SideShort {
		level := r.rangeLow.Mul(decimal.NewFromFloat(1 - r.minBreakout))
		if bar.Low.Cmp(level) <= 0 {
			return entryFillPrice(r.side, level, bar), true
		}
		return decimal.Decimal{}, false
	}
	level := r.rangeHigh.Mul(decimal.NewFromFloat(1 + r.minBreakout))
	if bar.High.Cmp(level) >= 0 {
		return entryFillPrice(r.side, level, bar), true
	}
	return decimal.Decimal{}, false
}

// vwapPullback enters after a sustained trend away from VWAP, a pullback
// through it and a holding bar back on the trend side, with optional volume
// confirmation.
type vwapPullback struct {
	side              trade.Side
	trendThreshold    float64
	pullbackThreshold float64
	volMult           float64
	minTrendBars      int

	vwap         vwapState
	vol          volumeState
	trendBars    int
	pulledBack   bool
	curVWAP      decimal.Decimal
	haveVWAP     bool
	priorVolMean float64
	havePriorVol bool
}

func (r *vwapPullback) observe(bar market.Bar) {
	r.priorVolMean, r.havePriorVol = r.vol.priorMean()
	r.vol.update(bar)
	r.vwap.update(bar)
	r.curVWAP, r.haveVWAP = r.vwap.value()
	if !r.haveVWAP {
		return
	}
	trendLevel := r.curVWAP.Mul(decimal.NewFromFloat(1 + r.trendThreshold))
	pullLevel := r.curVWAP.Mul(decimal.NewFromFloat(1 - r.pullbackThreshold))
	if r.side == trade.SideShort {
		trendLevel = r.curVWAP.Mul(decimal.NewFromFloat(1 - r.trendThreshold))
		pullLevel = r.curVWAP.Mul(decimal.NewFromFloat(1 + r.pullbackThreshold))
		if bar.Close.Cmp(trendLevel) < 0 {
			r.trendBars++
		}
		if r.trendBars >= r.minTrendBars && bar.Close.Cmp(pullLevel) > 0 {
			r.pulledBack = true
		}
		return
	}
	if bar.Close.Cmp(trendLevel) > 0 {
		r.trendBars++
	}
	if r.trendBars >= r.minTrendBars && bar.Close.Cmp(pullLevel) < 0 {
		r.pulledBack = true
	}
}

func (r *vwapPullback) evaluate(bar market.Bar) (decimal.Decimal, bool) {
	if !r.haveVWAP || r.trendBars < r.minTrendBars || !r.pulledBack {
		return decimal.Decimal{}, false
	}
	held := bar.Low.Cmp(r.curVWAP) > 0
	if r.side == trade.SideShort {
		held = bar.High.Cmp(r.curVWAP) < 0
	}
	if !held {
		return decimal.Decimal{}, false
	}
	if r.volMult > 0 {
		if !r.havePriorVol || float64(bar.Volume) < r.volMult*r.priorVolMean {
			return decimal.Decimal{}, false
		}
	}
	r.pulledBack = false
	return bar.Close, true
}
