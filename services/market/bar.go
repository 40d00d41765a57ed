// Package market holds minute-bar data types and session calendar logic
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents a single minute OHLCV bar
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// TypicalPrice returns (high+low+close)/3, the VWAP input price
func (b Bar) TypicalPrice() decimal.Decimal {
	three := decimal.NewFromInt(3)
	return b.High.Add(b.Low).Add(b.Close).Div(three)
}

// BarSeries is one symbol's bars for a single trading day, sorted by timestamp.
// PrevClose is the prior session's closing price when the provider knows it;
// zero means unknown.
type BarSeries struct {
	Symbol    string
	Day       time.Time
	PrevClose decimal.Decimal
	Bars      []Bar
}

// Validate checks ordering, timestamp uniqueness and OHLC relationships.
func (s BarSeries) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("bar series has empty symbol")
	}
	for i, b := range s.Bars {
		if b.High.Cmp(b.Low) < 0 {
			return fmt.Errorf("%s bar %s: high %s below low %s", s.Symbol, b.Timestamp, b.High, b.Low)
		}
		if b.Open.Cmp(b.Low) < 0 || b.Open.Cmp(b.High) > 0 {
			return fmt.Errorf("%s bar %s: open %s outside [low, high]", s.Symbol, b.Timestamp, b.Open)
		}
		if b.Close.Cmp(b.Low) < 0 || b.Close.Cmp(b.High) > 0 {
			return fmt.Errorf("%s bar %s: close %s outside [low, high]", s.Symbol, b.Timestamp, b.Close)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%s bar %s: negative volume %d", s.Symbol, b.Timestamp, b.Volume)
		}
		if i > 0 && !s.Bars[i-1].Timestamp.Before(b.Timestamp) {
			return fmt.Errorf("%s: bar %s not after %s", s.Symbol, b.Timestamp, s.Bars[i-1].Timestamp)
		}
	}
	return nil
}

// DetectGaps returns the timestamps after which a gap larger than step occurs.
func (s BarSeries) DetectGaps(step time.Duration) []time.Time {
	var gaps []time.Time
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].Timestamp.Sub(s.Bars[i-1].Timestamp) > step {
			gaps = append(gaps, s.Bars[i-1].Timestamp)
		}
	}
	return gaps
}
