// Package engine implements the per-symbol, per-day trade state machine:
// a bar stream plus one rule spec in, zero or more closed trades out.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"intraday-backtest/services/market"
	"intraday-backtest/services/rulespec"
	"intraday-backtest/services/trade"
)

// ErrDataGap marks a symbol-day whose bars are missing or corrupt. The day
// is skipped and logged; no bars are ever fabricated.
var ErrDataGap = errors.New("bar series has data gaps")

// Config bounds what counts as a processable day.
type Config struct {
	Session market.Session
	BarStep time.Duration
	MaxGap  time.Duration
	MinBars int
}

func DefaultConfig() Config {
	return Config{
		Session: market.NSE(),
		BarStep: time.Minute,
		MaxGap:  5 * time.Minute,
		MinBars: 30,
	}
}

// Position is the transient per-day state of an open trade. It exists only
// between the entry bar and the closing bar.
type Position struct {
	EntryPrice  decimal.Decimal
	EntryTime   time.Time
	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal
	Side        trade.Side

	entryIndex int
}

// StateMachine converts one day's bars into trade records under a rule spec.
// It has no side effects beyond its return value: rerunning it with the
// same inputs reproduces identical output.
type StateMachine struct {
	spec *rulespec.RuleSpec
	cfg  Config
	log  *zap.Logger
}

func New(spec *rulespec.RuleSpec, cfg Config, log *zap.Logger) *StateMachine {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateMachine{spec: spec, cfg: cfg, log: log}
}

// RunDay processes a single symbol-day. Per-bar evaluation order: exits of
// an open position first (stop, then target, then time exit), then entry
// evaluation against bars seen so far. The final bar force-closes any open
// position at its close.
func (m *StateMachine) RunDay(series market.BarSeries) ([]trade.Record, error) {
	if len(series.Bars) == 0 {
		return nil, nil
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataGap, err)
	}
	if len(series.Bars) < m.cfg.MinBars {
		return nil, fmt.Errorf("%w: %s %s has %d bars, need %d",
			ErrDataGap, series.Symbol, series.Day.Format("2006-01-02"), len(series.Bars), m.cfg.MinBars)
	}
	if gaps := series.DetectGaps(m.cfg.MaxGap); len(gaps) > 0 {
		return nil, fmt.Errorf("%w: %s %s missing bars after %s",
			ErrDataGap, series.Symbol, series.Day.Format("2006-01-02"), gaps[0].Format("15:04"))
	}

	rule := newEntryRule(m.spec, m.cfg.Session, series)
	atr := newATRState(int(m.spec.Param("atr_period", 14)))

	var records []trade.Record
	var pos *Position
	entriesAllowed := true
	last := len(series.Bars) - 1

	for i, bar := range series.Bars {
		if pos != nil && i > pos.entryIndex {
			switch ResolveFirstTouch(pos.Side, bar, pos.StopPrice, pos.TargetPrice) {
			case TouchStop:
				records = append(records, m.close(series.Symbol, pos, bar.Timestamp,
					stopFillPrice(pos.Side, pos.StopPrice, bar), trade.ExitStop))
				pos = nil
			case TouchTarget:
				records = append(records, m.close(series.Symbol, pos, bar.Timestamp,
					targetFillPrice(pos.Side, pos.TargetPrice, bar), trade.ExitTarget))
				pos = nil
			default:
				if m.spec.ExitTime.AtOrAfter(bar.Timestamp) {
					records = append(records, m.close(series.Symbol, pos, bar.Timestamp, bar.Close, trade.ExitTimeExit))
					pos = nil
				}
			}
			if pos == nil && !m.spec.AllowReentry {
				entriesAllowed = false
			}
		}

		rule.observe(bar)
		atr.update(bar)

		if pos == nil && entriesAllowed && i != last && m.spec.EntryWindow.Contains(bar) {
			if price, ok := rule.evaluate(bar); ok {
				stop, target, ok := m.exitLevels(price, atr)
				if !ok {
					continue
				}
				pos = &Position{
					EntryPrice:  price,
					EntryTime:   bar.Timestamp,
					StopPrice:   stop,
					TargetPrice: target,
					Side:        m.spec.Side,
					entryIndex:  i,
				}
			}
		}
	}

	if pos != nil {
		lastBar := series.Bars[last]
		records = append(records, m.close(series.Symbol, pos, lastBar.Timestamp, lastBar.Close, trade.ExitEOD))
	}
	return records, nil
}

// exitLevels computes stop and target once at entry time; they are never
// recomputed as the trade progresses.
func (m *StateMachine) exitLevels(entry decimal.Decimal, atr *atrState) (stop, target decimal.Decimal, ok bool) {
	stop, ok = priceLevel(m.spec.Stop, entry, m.spec.Side, true, atr)
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	target, ok = priceLevel(m.spec.Target, entry, m.spec.Side, false, atr)
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	if stop.Sign() <= 0 || target.Sign() <= 0 {
		m.log.Debug("skipping entry: non-positive exit level",
			zap.String("strategy", m.spec.Name),
			zap.String("stop", stop.String()),
			zap.String("target", target.String()))
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return stop, target, true
}

func priceLevel(rule rulespec.PriceRule, entry decimal.Decimal, side trade.Side, isStop bool, atr *atrState) (decimal.Decimal, bool) {
	// adverse direction for stops, favorable for targets
	down := isStop
	if side == trade.SideShort {
		down = !down
	}
	switch rule.Kind {
	case rulespec.DistanceATR:
		v, ready := atr.value()
		if !ready {
			return decimal.Decimal{}, false
		}
		dist := decimal.NewFromFloat(v * rule.Value)
		if down {
			return entry.Sub(dist), true
		}
		return entry.Add(dist), true
	default:
		pct := decimal.NewFromFloat(rule.Value)
		if down {
			return entry.Mul(decimal.NewFromInt(1).Sub(pct)), true
		}
		return entry.Mul(decimal.NewFromInt(1).Add(pct)), true
	}
}

func (m *StateMachine) close(symbol string, pos *Position, exitTime time.Time, exitPrice decimal.Decimal, reason trade.ExitReason) trade.Record {
	pnl := exitPrice.Sub(pos.EntryPrice).Mul(pos.Side.Sign())
	return trade.Record{
		Symbol:     symbol,
		Strategy:   m.spec.Name,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		ExitTime:   exitTime,
		ExitPrice:  exitPrice,
		Side:       pos.Side,
		ExitReason: reason,
		PnL:        pnl,
		Duration:   exitTime.Sub(pos.EntryTime),
	}
}
