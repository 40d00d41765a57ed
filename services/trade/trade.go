// Package trade defines the closed-trade record and run checkpoint types
// shared by the state machine, the runner and the stores.
package trade

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side of a strategy or trade.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideLong || s == SideShort }

// Sign returns +1 for longs, -1 for shorts.
func (s Side) Sign() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitStop     ExitReason = "STOP"
	ExitTarget   ExitReason = "TARGET"
	ExitTimeExit ExitReason = "TIME_EXIT"
	ExitEOD      ExitReason = "EOD"
)

// Record is one closed trade. Immutable once written; identified by
// (Strategy, Symbol, EntryTime).
type Record struct {
	Symbol     string          `json:"symbol"`
	Strategy   string          `json:"strategy"`
	EntryTime  time.Time       `json:"entry_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitTime   time.Time       `json:"exit_time"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Side       Side            `json:"side"`
	ExitReason ExitReason      `json:"exit_reason"`
	PnL        decimal.Decimal `json:"pnl"`
	Duration   time.Duration   `json:"duration"`
}

// Key is the natural identity used for deduplication on rewrite.
func (r Record) Key() string {
	return fmt.Sprintf("%s|%s|%d", r.Strategy, r.Symbol, r.EntryTime.UnixMilli())
}

// Dedup keeps the first record per natural key, preserving input order.
func Dedup(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Checkpoint tracks which symbols a run has fully processed and flushed.
type Checkpoint struct {
	Strategy   string    `json:"strategy"`
	RunID      string    `json:"run_id"`
	Processed  []string  `json:"processed"`
	LastSymbol string    `json:"last_symbol"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Done reports whether sym is already in the processed set.
func (c *Checkpoint) Done(sym string) bool {
	if c == nil {
		return false
	}
	i := sort.SearchStrings(c.Processed, sym)
	return i < len(c.Processed) && c.Processed[i] == sym
}

// Retain drops processed symbols that are not part of universe, keeping the
// processed set a subset of the symbols a run is configured with. It returns
// the dropped symbols.
func (c *Checkpoint) Retain(universe []string) []string {
	keep := make(map[string]struct{}, len(universe))
	for _, s := range universe {
		keep[s] = struct{}{}
	}
	var dropped []string
	out := c.Processed[:0]
	for _, s := range c.Processed {
		if _, ok := keep[s]; ok {
			out = append(out, s)
		} else {
			dropped = append(dropped, s)
		}
	}
	c.Processed = out
	return dropped
}

// MarkDone inserts sym into the processed set, keeping it sorted.
func (c *Checkpoint) MarkDone(sym string, now time.Time) {
	i := sort.SearchStrings(c.Processed, sym)
	if i == len(c.Processed) || c.Processed[i] != sym {
		c.Processed = append(c.Processed, "")
		copy(c.Processed[i+1:], c.Processed[i:])
		c.Processed[i] = sym
	}
	c.LastSymbol = sym
	c.UpdatedAt = now
}
