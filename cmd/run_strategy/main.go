// Command run_strategy executes one rule spec over a symbol universe and
// date range, persisting trades and checkpoints so an interrupted run can
// be resumed by re-invoking the same command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"intraday-backtest/services/monitoring"
	"intraday-backtest/services/rulespec"
	"intraday-backtest/services/runner"
	"intraday-backtest/services/store"
)

func main() {
	specPath := flag.String("spec", "configs/orb_breakout.yaml", "Rule spec YAML path")
	symbols := flag.String("symbols", "", "Comma-separated symbol universe")
	universeFile := flag.String("universe", "", "File with one symbol per line; overrides -symbols")
	from := flag.String("from", "2018-01-01", "Start date (YYYY-MM-DD, inclusive)")
	to := flag.String("to", "2024-12-31", "End date (YYYY-MM-DD, inclusive)")
	dataDir := flag.String("data-dir", "", "Directory of per-symbol bar CSVs; if empty, use ClickHouse")
	storeDir := flag.String("store-dir", "./backtest_out", "Directory for JSONL trades and checkpoints in CSV mode")
	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	chDB := flag.String("ch-db", "backtest", "ClickHouse database")
	chUser := flag.String("ch-user", "backtest", "ClickHouse user")
	chPass := flag.String("ch-pass", "backtest123", "ClickHouse password")
	workers := flag.Int("workers", 0, "Worker goroutines (0 = NumCPU)")
	flushEvery := flag.Int("flush-every", 10, "Symbols per persistence flush")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec, err := rulespec.Load(*specPath)
	if err != nil {
		logger.Fatal("load rule spec", zap.Error(err))
	}

	universe, err := loadUniverse(*symbols, *universeFile)
	if err != nil {
		logger.Fatal("load universe", zap.Error(err))
	}
	if len(universe) == 0 {
		logger.Fatal("empty symbol universe, pass -symbols or -universe")
	}

	fromDate, err := time.Parse("2006-01-02", *from)
	if err != nil {
		logger.Fatal("parse -from", zap.Error(err))
	}
	toDate, err := time.Parse("2006-01-02", *to)
	if err != nil {
		logger.Fatal("parse -to", zap.Error(err))
	}
	// inclusive end date
	toDate = toDate.Add(24*time.Hour - time.Nanosecond)

	var (
		provider    store.BarProvider
		trades      store.TradeStore
		checkpoints store.CheckpointStore
	)
	if *dataDir != "" {
		provider = store.NewCSVProvider(*dataDir, logger)
		fs, err := store.NewFileStore(*storeDir)
		if err != nil {
			logger.Fatal("open file store", zap.Error(err))
		}
		trades, checkpoints = fs, fs
	} else {
		ch, err := store.NewClickHouse(ctx, store.ClickHouseConfig{
			Addr:     *chAddr,
			Database: *chDB,
			Username: *chUser,
			Password: *chPass,
		}, logger)
		if err != nil {
			logger.Fatal("connect clickhouse", zap.Error(err))
		}
		defer ch.Close()
		provider, trades, checkpoints = ch, ch, ch
	}

	metrics := monitoring.NewMetrics(nil)
	eng := runner.New(provider, trades, checkpoints, logger, runner.Options{
		Workers:    *workers,
		FlushEvery: *flushEvery,
	}).WithMetrics(metrics)

	result, err := eng.Run(ctx, spec, universe, fromDate, toDate)
	if err != nil {
		if result != nil {
			logger.Error("run aborted",
				zap.String("run_id", result.RunID),
				zap.Int("processed", result.Processed),
				zap.Error(err))
		}
		os.Exit(1)
	}

	fmt.Printf("=== %s ===\n", spec.Name)
	fmt.Printf("Run:       %s (%s)\n", result.RunID, result.Status)
	fmt.Printf("Processed: %d symbols, %d trades written\n", result.Processed, result.Trades)
	if len(result.Skipped) > 0 {
		fmt.Printf("Skipped:   %d symbols\n", len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Printf("  %-12s %s\n", s.Symbol, s.Reason)
		}
	}
	fmt.Printf("Elapsed:   %s\n", result.Finished.Sub(result.Started).Round(time.Millisecond))
}

func loadUniverse(symbols, universeFile string) ([]string, error) {
	if universeFile != "" {
		data, err := os.ReadFile(universeFile)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, line)
		}
		return out, nil
	}
	var out []string
	for _, s := range strings.Split(symbols, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
