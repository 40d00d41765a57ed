// Package runner drives the trade state machine across a symbol universe
// and date range with bounded memory, checkpointed progress and resume-safe
// restarts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intraday-backtest/services/engine"
	"intraday-backtest/services/market"
	"intraday-backtest/services/monitoring"
	"intraday-backtest/services/rulespec"
	"intraday-backtest/services/store"
	"intraday-backtest/services/trade"
)

// Status is the final disposition of a run.
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusCompletedWithSkips Status = "completed_with_skips"
	StatusAborted            Status = "aborted"
)

// Skip records a symbol abandoned after a per-symbol failure.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunResult summarizes one run. An aborted result means the trade set is
// incomplete and must not be analyzed as final.
type RunResult struct {
	RunID     string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	Status    Status    `json:"status"`
	Processed int       `json:"processed"`
	Skipped   []Skip    `json:"skipped,omitempty"`
	Trades    int       `json:"trades"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Options bound the run's resources.
type Options struct {
	Workers      int
	FlushEvery   int
	FetchTimeout time.Duration
	Engine       engine.Config
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 10
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.Engine.BarStep == 0 {
		o.Engine = engine.DefaultConfig()
	}
}

// Engine orchestrates symbol processing: a worker pool runs the state
// machine, the Run goroutine is the single writer for the trade store and
// checkpoint.
type Engine struct {
	provider    store.BarProvider
	trades      store.TradeStore
	checkpoints store.CheckpointStore
	metrics     *monitoring.Metrics
	log         *zap.Logger
	opts        Options
}

func New(provider store.BarProvider, trades store.TradeStore, checkpoints store.CheckpointStore,
	log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	opts.withDefaults()
	return &Engine{
		provider:    provider,
		trades:      trades,
		checkpoints: checkpoints,
		log:         log,
		opts:        opts,
	}
}

// WithMetrics attaches Prometheus counters.
func (e *Engine) WithMetrics(m *monitoring.Metrics) *Engine {
	e.metrics = m
	return e
}

type symbolResult struct {
	symbol  string
	records []trade.Record
	gapDays int
	err     error
}

// Run processes every symbol in the universe not already checkpointed.
// Symbols are dispatched in lexicographic order; completion order does not
// affect trade content. Cancelling ctx stops the run between symbols and
// checkpoints only fully completed ones.
func (e *Engine) Run(ctx context.Context, spec *rulespec.RuleSpec, universe []string, from, to time.Time) (*RunResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("rule spec: %w", err)
	}

	symbols := normalizeUniverse(universe)
	cp, err := e.checkpoints.LoadCheckpoint(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		cp = &trade.Checkpoint{Strategy: spec.Name, RunID: uuid.New().String()}
	} else if dropped := cp.Retain(symbols); len(dropped) > 0 {
		e.log.Warn("dropping checkpointed symbols outside the configured universe",
			zap.String("strategy", spec.Name),
			zap.Strings("symbols", dropped))
	}

	result := &RunResult{RunID: cp.RunID, Strategy: spec.Name, Started: time.Now().UTC()}

	var pending []string
	for _, s := range symbols {
		if cp.Done(s) {
			continue
		}
		pending = append(pending, s)
	}
	e.log.Info("starting run",
		zap.String("strategy", spec.Name),
		zap.String("run_id", cp.RunID),
		zap.Int("universe", len(symbols)),
		zap.Int("pending", len(pending)),
		zap.Int("workers", e.opts.Workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	symbolChan := make(chan string, len(pending))
	resultChan := make(chan symbolResult, len(pending))
	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go e.worker(runCtx, i, spec, from, to, symbolChan, resultChan, &wg)
	}
	for _, s := range pending {
		symbolChan <- s
	}
	close(symbolChan)
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var (
		buffer    []trade.Record
		completed []string
		runErr    error
	)
	flush := func() error {
		if len(completed) == 0 {
			return nil
		}
		if err := e.flushBatch(ctx, cp, buffer, completed); err != nil {
			return err
		}
		result.Trades += len(buffer)
		result.Processed += len(completed)
		buffer = buffer[:0]
		completed = completed[:0]
		return nil
	}

	for res := range resultChan {
		if res.err != nil {
			e.log.Error("symbol failed, skipping",
				zap.String("strategy", spec.Name),
				zap.String("symbol", res.symbol),
				zap.Error(res.err))
			result.Skipped = append(result.Skipped, Skip{Symbol: res.symbol, Reason: res.err.Error()})
			if e.metrics != nil {
				e.metrics.SymbolsSkipped.WithLabelValues(spec.Name).Inc()
			}
			continue
		}
		buffer = append(buffer, res.records...)
		completed = append(completed, res.symbol)
		if e.metrics != nil {
			e.metrics.SymbolsProcessed.WithLabelValues(spec.Name).Inc()
			e.metrics.DaysSkipped.WithLabelValues(spec.Name).Add(float64(res.gapDays))
		}
		if len(completed) >= e.opts.FlushEvery {
			if err := flush(); err != nil {
				runErr = err
				cancel()
				break
			}
		}
	}
	// drain remaining results after an abort so workers can exit
	for range resultChan {
	}

	if runErr == nil {
		// flush symbols completed before cancellation or end of universe
		if err := flush(); err != nil {
			runErr = err
		}
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	result.Finished = time.Now().UTC()
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].Symbol < result.Skipped[j].Symbol })
	switch {
	case runErr != nil:
		result.Status = StatusAborted
		e.log.Error("run aborted",
			zap.String("strategy", spec.Name),
			zap.Int("processed", result.Processed),
			zap.Error(runErr))
		return result, runErr
	case len(result.Skipped) > 0:
		result.Status = StatusCompletedWithSkips
	default:
		result.Status = StatusCompleted
	}
	e.log.Info("run finished",
		zap.String("strategy", spec.Name),
		zap.String("status", string(result.Status)),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("trades", result.Trades))
	return result, nil
}

func (e *Engine) worker(ctx context.Context, id int, spec *rulespec.RuleSpec, from, to time.Time,
	symbols <-chan string, results chan<- symbolResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		e.log.Debug("worker processing symbol",
			zap.Int("worker_id", id),
			zap.String("symbol", symbol))
		records, gapDays, err := e.processSymbol(ctx, spec, symbol, from, to)
		if err != nil && ctx.Err() != nil {
			return
		}
		results <- symbolResult{symbol: symbol, records: records, gapDays: gapDays, err: err}
	}
}

// processSymbol loads one trading day at a time; the full history of a
// symbol is never resident at once.
func (e *Engine) processSymbol(ctx context.Context, spec *rulespec.RuleSpec, symbol string, from, to time.Time) ([]trade.Record, int, error) {
	days, err := e.provider.TradingDays(ctx, symbol, from, to)
	if err != nil {
		if errors.Is(err, store.ErrNoData) {
			return nil, 0, fmt.Errorf("no bar data in range")
		}
		return nil, 0, fmt.Errorf("list trading days: %w", err)
	}
	sm := engine.New(spec, e.opts.Engine, e.log)
	var records []trade.Record
	gapDays := 0
	for _, day := range days {
		series, err := e.loadDay(ctx, symbol, day)
		if err != nil {
			if errors.Is(err, store.ErrNoData) {
				continue
			}
			return nil, gapDays, fmt.Errorf("load %s: %w", day.Format("2006-01-02"), err)
		}
		dayRecords, err := sm.RunDay(series)
		if err != nil {
			if errors.Is(err, engine.ErrDataGap) {
				e.log.Warn("skipping symbol-day", zap.String("symbol", symbol), zap.Error(err))
				gapDays++
				continue
			}
			return nil, gapDays, fmt.Errorf("run %s: %w", day.Format("2006-01-02"), err)
		}
		records = append(records, dayRecords...)
	}
	return records, gapDays, nil
}

func (e *Engine) loadDay(ctx context.Context, symbol string, day time.Time) (market.BarSeries, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()
	return e.provider.DayBars(fetchCtx, symbol, day)
}

// flushBatch writes trades then the checkpoint, each retried once with
// backoff. A flush that still fails aborts the run; trades written without
// a checkpoint are rewritten idempotently on the next run.
func (e *Engine) flushBatch(ctx context.Context, cp *trade.Checkpoint, records []trade.Record, symbols []string) error {
	start := time.Now()
	if err := withRetry(ctx, func() error { return e.trades.WriteTrades(ctx, records) }); err != nil {
		return fmt.Errorf("write trades: %w", err)
	}
	now := time.Now().UTC()
	for _, s := range symbols {
		cp.MarkDone(s, now)
	}
	if err := withRetry(ctx, func() error { return e.checkpoints.SaveCheckpoint(ctx, cp) }); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if e.metrics != nil {
		e.metrics.TradesWritten.WithLabelValues(cp.Strategy).Add(float64(len(records)))
		e.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}
	e.log.Info("flushed batch",
		zap.String("strategy", cp.Strategy),
		zap.Int("symbols", len(symbols)),
		zap.Int("trades", len(records)))
	return nil
}

const retryBackoff = 500 * time.Millisecond

func withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryBackoff):
	}
	return op()
}

func normalizeUniverse(universe []string) []string {
	seen := make(map[string]struct{}, len(universe))
	var out []string
	for _, s := range universe {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
