package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"intraday-backtest/services/trade"
)

func fileRec(symbol string, entry time.Time) trade.Record {
	return trade.Record{
		Symbol:     symbol,
		Strategy:   "orb_test",
		EntryTime:  entry,
		EntryPrice: decimal.NewFromFloat(100.5),
		ExitTime:   entry.Add(30 * time.Minute),
		ExitPrice:  decimal.NewFromFloat(102.51),
		Side:       trade.SideLong,
		ExitReason: trade.ExitTarget,
		PnL:        decimal.NewFromFloat(2.01),
		Duration:   30 * time.Minute,
	}
}

func TestFileStoreTradesRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	t0 := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := []trade.Record{fileRec("AAA", t0), fileRec("BBB", t0)}
	require.NoError(t, fs.WriteTrades(ctx, batch))

	got, err := fs.LoadTrades(ctx, "orb_test")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].EntryPrice.Equal(batch[0].EntryPrice))
	require.Equal(t, trade.ExitTarget, got[0].ExitReason)
}

func TestFileStoreRewriteDedups(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	t0 := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := []trade.Record{fileRec("AAA", t0)}
	require.NoError(t, fs.WriteTrades(ctx, batch))
	// reprocessing after a lost checkpoint appends the same records again
	require.NoError(t, fs.WriteTrades(ctx, batch))

	got, err := fs.LoadTrades(ctx, "orb_test")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFileStoreLoadMissingStrategy(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	got, err := fs.LoadTrades(context.Background(), "never_ran")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileStoreCheckpointRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// absent checkpoint is nil, not an error
	cp, err := fs.LoadCheckpoint(ctx, "orb_test")
	require.NoError(t, err)
	require.Nil(t, cp)

	saved := &trade.Checkpoint{Strategy: "orb_test", RunID: "run-1"}
	saved.MarkDone("AAA", time.Now().UTC())
	saved.MarkDone("BBB", time.Now().UTC())
	require.NoError(t, fs.SaveCheckpoint(ctx, saved))

	cp, err = fs.LoadCheckpoint(ctx, "orb_test")
	require.NoError(t, err)
	require.Equal(t, "run-1", cp.RunID)
	require.Equal(t, []string{"AAA", "BBB"}, cp.Processed)
	require.True(t, cp.Done("AAA"))
}

func TestMemoryStoreDedups(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	t0 := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, mem.WriteTrades(ctx, []trade.Record{fileRec("AAA", t0)}))
	require.NoError(t, mem.WriteTrades(ctx, []trade.Record{fileRec("AAA", t0)}))

	got, err := mem.LoadTrades(ctx, "orb_test")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
