package engine

import (
	"github.com/shopspring/decimal"

	"intraday-backtest/services/market"
)

// Incremental per-day indicator state. Values at bar t depend only on bars
// up to and including t.

// vwapState tracks the session volume-weighted average price.
type vwapState struct {
	cumTPV decimal.Decimal
	cumVol decimal.Decimal
}

func (v *vwapState) update(bar market.Bar) {
	vol := decimal.NewFromInt(bar.Volume)
	v.cumTPV = v.cumTPV.Add(bar.TypicalPrice().Mul(vol))
	v.cumVol = v.cumVol.Add(vol)
}

// value returns the running VWAP, or false before any volume has traded.
func (v *vwapState) value() (decimal.Decimal, bool) {
	if v.cumVol.IsZero() {
		return decimal.Decimal{}, false
	}
	return v.cumTPV.Div(v.cumVol), true
}

// atrState computes a Wilder-smoothed average true range over the day's bars.
// Float64 is fine here: indicator values gate decisions, prices stay decimal.
type atrState struct {
	period    int
	prevClose float64
	haveClose bool
	seeded    int
	sumTR     float64
	atr       float64
}

func newATRState(period int) *atrState { return &atrState{period: period} }

func (a *atrState) update(bar market.Bar) {
	high := bar.High.InexactFloat64()
	low := bar.Low.InexactFloat64()
	tr := high - low
	if a.haveClose {
		if d := abs(high - a.prevClose); d > tr {
			tr = d
		}
		if d := abs(low - a.prevClose); d > tr {
			tr = d
		}
	}
	a.prevClose = bar.Close.InexactFloat64()
	a.haveClose = true

	if a.seeded < a.period {
		a.sumTR += tr
		a.seeded++
		if a.seeded == a.period {
			a.atr = a.sumTR / float64(a.period)
		}
		return
	}
	a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
}

// value returns the ATR once the warmup period has been seen.
func (a *atrState) value() (float64, bool) {
	if a.seeded < a.period {
		return 0, false
	}
	return a.atr, true
}

// volumeState tracks the running mean bar volume, excluding the current bar
// so that volume-confirmation filters compare against prior bars only.
type volumeState struct {
	sum   int64
	count int64
}

// priorMean returns the mean volume of bars seen so far.
func (v *volumeState) priorMean() (float64, bool) {
	if v.count == 0 {
		return 0, false
	}
	return float64(v.sum) / float64(v.count), true
}

func (v *volumeState) update(bar market.Bar) {
	v.sum += bar.Volume
	v.count++
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
