// Package rulespec defines the declarative strategy description consumed by
// the trade state machine. Specs are loaded from YAML, validated once at
// construction and never mutated afterwards.
package rulespec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"intraday-backtest/services/market"
	"intraday-backtest/services/trade"
)

// EntryKind selects the entry rule variant.
type EntryKind string

const (
	EntryORBBreakout  EntryKind = "orb_breakout"
	EntryVWAPPullback EntryKind = "vwap_pullback"
)

// DistanceKind selects how a stop or target level is derived from the entry price.
type DistanceKind string

const (
	DistancePercent DistanceKind = "percent"
	DistanceATR     DistanceKind = "atr"
)

// PriceRule derives a stop or target level from the entry price.
// For percent the value is a fraction (0.02 = 2%); for atr it is an
// ATR multiplier.
type PriceRule struct {
	Kind  DistanceKind `yaml:"kind"`
	Value float64      `yaml:"value"`
}

// Window is the time-of-day interval during which entries may trigger.
type Window struct {
	Start market.Clock `yaml:"start"`
	End   market.Clock `yaml:"end"`
}

// Contains reports whether m's time of day falls in the window (inclusive).
func (w Window) Contains(m market.Bar) bool { return w.Start.Contains(m.Timestamp, w.End) }

// EntryRule names a tagged entry variant; its tunables live in Params.
type EntryRule struct {
	Kind EntryKind `yaml:"kind"`
}

// RuleSpec is the immutable declarative description of one strategy.
// Two specs with different parameters are different strategies; there is
// no implicit versioning.
type RuleSpec struct {
	Name         string             `yaml:"name"`
	Side         trade.Side         `yaml:"side"`
	EntryWindow  Window             `yaml:"entry_window"`
	ExitTime     market.Clock       `yaml:"exit_time"`
	Entry        EntryRule          `yaml:"entry"`
	Stop         PriceRule          `yaml:"stop"`
	Target       PriceRule          `yaml:"target"`
	Params       map[string]float64 `yaml:"params"`
	AllowReentry bool               `yaml:"allow_reentry"`
	Description  string             `yaml:"description"`
}

// Param returns a named parameter or def when unset.
func (s *RuleSpec) Param(name string, def float64) float64 {
	if v, ok := s.Params[name]; ok {
		return v
	}
	return def
}

// Load reads and validates a spec file, failing fast on malformed rules.
func Load(path string) (*RuleSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule spec: %w", err)
	}
	var spec RuleSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse rule spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("rule spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate rejects malformed specs before any run starts.
func (s *RuleSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !s.Side.Valid() {
		return fmt.Errorf("side %q must be LONG or SHORT", s.Side)
	}
	if !s.EntryWindow.Start.Before(s.EntryWindow.End) {
		return fmt.Errorf("entry window start %s not before end %s", s.EntryWindow.Start, s.EntryWindow.End)
	}
	if !s.EntryWindow.End.Before(s.ExitTime) {
		return fmt.Errorf("entry window end %s not before exit time %s", s.EntryWindow.End, s.ExitTime)
	}
	switch s.Entry.Kind {
	case EntryORBBreakout, EntryVWAPPullback:
	default:
		return fmt.Errorf("unknown entry rule kind %q", s.Entry.Kind)
	}
	if err := validatePriceRule("stop", s.Stop); err != nil {
		return err
	}
	if err := validatePriceRule("target", s.Target); err != nil {
		return err
	}
	if s.Stop.Kind == DistanceATR || s.Target.Kind == DistanceATR {
		if p := s.Param("atr_period", 14); p < 1 {
			return fmt.Errorf("atr_period must be >= 1, got %v", p)
		}
	}
	return nil
}

func validatePriceRule(field string, r PriceRule) error {
	switch r.Kind {
	case DistancePercent, DistanceATR:
	default:
		return fmt.Errorf("unknown %s rule kind %q", field, r.Kind)
	}
	if r.Value <= 0 {
		return fmt.Errorf("%s rule produces non-positive distance (value %v)", field, r.Value)
	}
	if r.Kind == DistancePercent && r.Value >= 1 {
		return fmt.Errorf("%s percent %v must be below 1", field, r.Value)
	}
	return nil
}
