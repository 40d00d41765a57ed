// Command analyze loads the closed trades of a strategy, computes the
// metric report, prints a summary with the policy verdict, and optionally
// writes the report as JSON and the trades as an Arrow IPC file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"go.uber.org/zap"

	"intraday-backtest/services/analytics"
	"intraday-backtest/services/arrowexport"
	"intraday-backtest/services/decision"
	"intraday-backtest/services/store"
)

func main() {
	strategy := flag.String("strategy", "", "Strategy name to analyze")
	storeDir := flag.String("store-dir", "./backtest_out", "Directory of JSONL trades; if empty, use ClickHouse")
	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	chDB := flag.String("ch-db", "backtest", "ClickHouse database")
	chUser := flag.String("ch-user", "backtest", "ClickHouse user")
	chPass := flag.String("ch-pass", "backtest123", "ClickHouse password")
	thresholdsPath := flag.String("thresholds", "", "Threshold YAML; defaults apply when empty")
	reportOut := flag.String("report", "", "Write the metric report JSON to this path")
	arrowOut := flag.String("arrow", "", "Write trades as Arrow IPC to this path")
	partial := flag.Bool("partial", false, "Mark the report partial (suppresses the verdict)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *strategy == "" {
		logger.Fatal("missing -strategy")
	}

	ctx := context.Background()
	var trades store.TradeStore
	if *storeDir != "" {
		fs, err := store.NewFileStore(*storeDir)
		if err != nil {
			logger.Fatal("open file store", zap.Error(err))
		}
		trades = fs
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
		trades = ch
	}

	records, err := trades.LoadTrades(ctx, *strategy)
	if err != nil {
		logger.Fatal("load trades", zap.Error(err))
	}
	rep := analytics.Analyze(*strategy, records, *partial)

	thresholds := decision.DefaultThresholds()
	if *thresholdsPath != "" {
		thresholds, err = decision.LoadThresholds(*thresholdsPath)
		if err != nil {
			logger.Fatal("load thresholds", zap.Error(err))
		}
	}

	printReport(rep)

	outcome, err := decision.Evaluate(rep, thresholds)
	switch {
	case errors.Is(err, decision.ErrPartialReport):
		fmt.Println("\nVerdict: (withheld, partial trade set)")
	case err != nil:
		logger.Fatal("evaluate", zap.Error(err))
	default:
		fmt.Printf("\nVerdict: %s\n", outcome.Verdict)
		for _, r := range outcome.Reasons {
			fmt.Printf("  - %s\n", r)
		}
	}

	if *reportOut != "" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			logger.Fatal("encode report", zap.Error(err))
		}
		if err := os.WriteFile(*reportOut, data, 0o644); err != nil {
			logger.Fatal("write report", zap.Error(err))
		}
		logger.Info("wrote report", zap.String("path", *reportOut))
	}
	if *arrowOut != "" && len(records) > 0 {
		data, err := arrowexport.New().Export(records)
		if err != nil {
			logger.Fatal("export arrow", zap.Error(err))
		}
		if err := os.WriteFile(*arrowOut, data, 0o644); err != nil {
			logger.Fatal("write arrow", zap.Error(err))
		}
		logger.Info("wrote arrow export", zap.String("path", *arrowOut), zap.Int("trades", len(records)))
	}
}

func printReport(rep *analytics.MetricReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Strategy:\t%s\n", rep.Strategy)
	fmt.Fprintf(w, "Trades:\t%d\n", rep.TradeCount)
	fmt.Fprintf(w, "Net PnL:\t%.2f\n", rep.NetPnL)
	fmt.Fprintf(w, "Win rate:\t%.1f%%\n", rep.WinRate*100)
	fmt.Fprintf(w, "Profit factor:\t%v\n", float64(rep.ProfitFactor))
	fmt.Fprintf(w, "Max drawdown:\t%.2f (peak equity %.2f)\n", rep.MaxDrawdown, rep.PeakEquity)
	fmt.Fprintf(w, "Sharpe-like:\t%.2f\n", rep.SharpeLike)
	fmt.Fprintf(w, "VaR 95/99:\t%.2f / %.2f\n", rep.VaR95, rep.VaR99)
	fmt.Fprintf(w, "Max consecutive losses:\t%d\n", rep.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Profitable years:\t%.0f%%\n", rep.YearlyStability*100)
	w.Flush()

	if len(rep.Yearly) > 0 {
		years := make([]int, 0, len(rep.Yearly))
		for y := range rep.Yearly {
			years = append(years, y)
		}
		sort.Ints(years)
		fmt.Println("\nYear\tTrades\tNet PnL\tWin rate")
		yw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, y := range years {
			gs := rep.Yearly[y]
			fmt.Fprintf(yw, "%d\t%d\t%.2f\t%.1f%%\n", y, gs.Trades, gs.NetPnL, gs.WinRate*100)
		}
		yw.Flush()
	}
}
