package engine

import (
	"github.com/shopspring/decimal"

	"intraday-backtest/services/market"
	"intraday-backtest/services/trade"
)

// TouchResult indicates which exit level a bar's range reached first.
type TouchResult int

const (
	TouchNone TouchResult = iota
	TouchStop
	TouchTarget
)

// ResolveFirstTouch determines whether a bar hits the stop or the target of
// an open position. When the bar's [low, high] range covers both levels the
// stop wins: with minute bars the true intrabar path is unknown, so the
// loss-first resolution is applied.
func ResolveFirstTouch(side trade.Side, bar market.Bar, stop, target decimal.Decimal) TouchResult {
	if side == trade.SideShort {
		stopHit := bar.High.Cmp(stop) >= 0
		targetHit := bar.Low.Cmp(target) <= 0
		if stopHit {
			return TouchStop
		}
		if targetHit {
			return TouchTarget
		}
		return TouchNone
	}
	stopHit := bar.Low.Cmp(stop) <= 0
	targetHit := bar.High.Cmp(target) >= 0
	if stopHit {
		return TouchStop
	}
	if targetHit {
		return TouchTarget
	}
	return TouchNone
}
