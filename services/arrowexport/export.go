// Package arrowexport serializes closed trades to Apache Arrow IPC for
// downstream notebooks and cross-language analysis tools.
package arrowexport

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"intraday-backtest/services/trade"
)

// Exporter converts trade records into Arrow IPC streams.
type Exporter struct {
	pool memory.Allocator
}

func New() *Exporter {
	return &Exporter{pool: memory.NewGoAllocator()}
}

func tradeSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "strategy", Type: arrow.BinaryTypes.String},
		{Name: "entry_time_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "exit_time_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "side", Type: arrow.BinaryTypes.String},
		{Name: "exit_reason", Type: arrow.BinaryTypes.String},
		{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
		{Name: "duration_ms", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
}

// Export serializes records as a single-batch Arrow IPC stream.
func (e *Exporter) Export(records []trade.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no trades to export")
	}
	schema := tradeSchema()

	symbols := make([]string, len(records))
	strategies := make([]string, len(records))
	entryTimes := make([]int64, len(records))
	entryPrices := make([]float64, len(records))
	exitTimes := make([]int64, len(records))
	exitPrices := make([]float64, len(records))
	sides := make([]string, len(records))
	reasons := make([]string, len(records))
	pnls := make([]float64, len(records))
	durations := make([]int64, len(records))
	for i, r := range records {
		symbols[i] = r.Symbol
		strategies[i] = r.Strategy
		entryTimes[i] = r.EntryTime.UnixMilli()
		entryPrices[i] = r.EntryPrice.InexactFloat64()
		exitTimes[i] = r.ExitTime.UnixMilli()
		exitPrices[i] = r.ExitPrice.InexactFloat64()
		sides[i] = string(r.Side)
		reasons[i] = string(r.ExitReason)
		pnls[i] = r.PnL.InexactFloat64()
		durations[i] = r.Duration.Milliseconds()
	}

	builder := array.NewRecordBuilder(e.pool, schema)
	defer builder.Release()
	builder.Field(0).(*array.StringBuilder).AppendValues(symbols, nil)
	builder.Field(1).(*array.StringBuilder).AppendValues(strategies, nil)
	builder.Field(2).(*array.Int64Builder).AppendValues(entryTimes, nil)
	builder.Field(3).(*array.Float64Builder).AppendValues(entryPrices, nil)
	builder.Field(4).(*array.Int64Builder).AppendValues(exitTimes, nil)
	builder.Field(5).(*array.Float64Builder).AppendValues(exitPrices, nil)
	builder.Field(6).(*array.StringBuilder).AppendValues(sides, nil)
	builder.Field(7).(*array.StringBuilder).AppendValues(reasons, nil)
	builder.Field(8).(*array.Float64Builder).AppendValues(pnls, nil)
	builder.Field(9).(*array.Int64Builder).AppendValues(durations, nil)

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(e.pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}
