package engine

import (
	"github.com/shopspring/decimal"

	"intraday-backtest/services/market"
	"intraday-backtest/services/trade"
)

// Deterministic fill prices. A level touched inside the bar fills at the
// level; a bar that opens through the level fills at the open (gap handling).

// entryFillPrice prices a breakout-style entry: a long enters on a buy stop
// at the trigger level, a short on a sell stop.
func entryFillPrice(side trade.Side, level decimal.Decimal, bar market.Bar) decimal.Decimal {
	if side == trade.SideShort {
		if bar.Open.Cmp(level) <= 0 {
			return bar.Open
		}
		return level
	}
	if bar.Open.Cmp(level) >= 0 {
		return bar.Open
	}
	return level
}

// stopFillPrice prices a protective stop exit.
func stopFillPrice(side trade.Side, stop decimal.Decimal, bar market.Bar) decimal.Decimal {
	if side == trade.SideShort {
		if bar.Open.Cmp(stop) >= 0 {
			return bar.Open
		}
		return stop
	}
	if bar.Open.Cmp(stop) <= 0 {
		return bar.Open
	}
	return stop
}

// targetFillPrice prices a profit-target exit.
func targetFillPrice(side trade.Side, target decimal.Decimal, bar market.Bar) decimal.Decimal {
	if side == trade.SideShort {
		if bar.Open.Cmp(target) <= 0 {
			return bar.Open
		}
		return target
	}
	if bar.Open.Cmp(target) >= 0 {
		return bar.Open
	}
	return target
}
