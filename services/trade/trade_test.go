package trade

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func rec(strategy, symbol string, entry time.Time) Record {
	return Record{
		Symbol:     symbol,
		Strategy:   strategy,
		EntryTime:  entry,
		EntryPrice: decimal.NewFromInt(100),
		ExitTime:   entry.Add(time.Hour),
		ExitPrice:  decimal.NewFromInt(101),
		Side:       SideLong,
		ExitReason: ExitTarget,
		PnL:        decimal.NewFromInt(1),
		Duration:   time.Hour,
	}
}

func TestDedupKeepsFirstPerKey(t *testing.T) {
	t0 := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	a := rec("s", "AAA", t0)
	dup := a
	dup.ExitPrice = decimal.NewFromInt(999)
	b := rec("s", "BBB", t0)
	c := rec("s", "AAA", t0.Add(time.Minute))

	out := Dedup([]Record{a, dup, b, c})
	require.Len(t, out, 3)
	require.Equal(t, a.ExitPrice, out[0].ExitPrice)
	require.Equal(t, []string{"AAA", "BBB", "AAA"}, []string{out[0].Symbol, out[1].Symbol, out[2].Symbol})
}

func TestSideSign(t *testing.T) {
	require.True(t, SideLong.Sign().Equal(decimal.NewFromInt(1)))
	require.True(t, SideShort.Sign().Equal(decimal.NewFromInt(-1)))
	require.True(t, SideLong.Valid())
	require.False(t, Side("SIDEWAYS").Valid())
}

func TestCheckpointMarkDoneKeepsSorted(t *testing.T) {
	cp := &Checkpoint{Strategy: "s", RunID: "r"}
	now := time.Now().UTC()
	for _, sym := range []string{"CCC", "AAA", "BBB", "AAA"} {
		cp.MarkDone(sym, now)
	}
	require.Equal(t, []string{"AAA", "BBB", "CCC"}, cp.Processed)
	require.True(t, cp.Done("BBB"))
	require.False(t, cp.Done("ZZZ"))
	require.Equal(t, "AAA", cp.LastSymbol)
}

func TestCheckpointRetain(t *testing.T) {
	cp := &Checkpoint{Strategy: "s", RunID: "r"}
	now := time.Now().UTC()
	for _, sym := range []string{"AAA", "BBB", "ZZZ"} {
		cp.MarkDone(sym, now)
	}
	dropped := cp.Retain([]string{"AAA", "BBB", "CCC"})
	require.Equal(t, []string{"ZZZ"}, dropped)
	require.Equal(t, []string{"AAA", "BBB"}, cp.Processed)
	require.Empty(t, cp.Retain([]string{"AAA", "BBB"}))
}

func TestNilCheckpointDone(t *testing.T) {
	var cp *Checkpoint
	require.False(t, cp.Done("AAA"))
}
