// Command data_generator writes synthetic NSE-session minute bars, one CSV
// per symbol, in the layout the CSV bar provider reads. Generation is
// deterministic for a given seed so runs are reproducible.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"intraday-backtest/services/market"
)

func main() {
	outDir := flag.String("out", "./testdata/bars", "Output directory for per-symbol CSVs")
	symbols := flag.String("symbols", "ALPHA,BRAVO,CHARLIE,DELTA,ECHO", "Comma-separated symbols")
	start := flag.String("start", "2022-01-03", "First trading day (YYYY-MM-DD)")
	days := flag.Int("days", 250, "Number of trading days (weekdays only)")
	seed := flag.Int64("seed", 42, "RNG seed")
	gapDayFrac := flag.Float64("gap-day-frac", 0.02, "Fraction of days with missing bar stretches")
	gapUpFrac := flag.Float64("gap-up-frac", 0.10, "Fraction of days opening well above prior close")
	flag.Parse()

	startDay, err := time.Parse("2006-01-02", *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse -start: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	session := market.NSE()
	for i, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		// per-symbol stream so adding a symbol does not reshuffle the others
		rng := rand.New(rand.NewSource(*seed + int64(i)*7919))
		path := filepath.Join(*outDir, symbol+".csv")
		bars, dayCount, err := writeSymbol(path, symbol, session, startDay, *days, rng, *gapDayFrac, *gapUpFrac)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", symbol, err)
			os.Exit(1)
		}
		fmt.Printf("%-10s %d days, %d bars -> %s\n", symbol, dayCount, bars, path)
	}
}

func writeSymbol(path, symbol string, session market.Session, startDay time.Time, days int,
	rng *rand.Rand, gapDayFrac, gapUpFrac float64) (int, int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "timestamp_ms,open,high,low,close,volume")

	price := 80 + rng.Float64()*400
	barsPerDay := session.Minutes()
	trendLeft := 0
	drift := 0.0
	totalBars := 0
	dayCount := 0

	day := startDay
	for dayCount < days {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		dayCount++

		prevClose := price
		open := prevClose * (1 + rng.NormFloat64()*0.002)
		if rng.Float64() < gapUpFrac {
			open = prevClose * (1 + 0.006 + rng.Float64()*0.015)
		}
		price = open

		// a few days lose a stretch of bars mid-session
		holeStart, holeEnd := -1, -1
		if rng.Float64() < gapDayFrac {
			holeStart = 60 + rng.Intn(barsPerDay-120)
			holeEnd = holeStart + 6 + rng.Intn(20)
		}

		dayStart := time.Date(day.Year(), day.Month(), day.Day(), session.Open.Hour, session.Open.Minute, 0, 0, time.UTC)
		for b := 0; b < barsPerDay; b++ {
			if trendLeft == 0 {
				trendLeft = 30 + rng.Intn(120)
				drift = rng.NormFloat64() * 0.0004
			}
			trendLeft--

			o := price
			c := o * (1 + drift + rng.NormFloat64()*0.0009)
			hi := math.Max(o, c) * (1 + rng.Float64()*0.0006)
			lo := math.Min(o, c) * (1 - rng.Float64()*0.0006)
			price = c

			if b >= holeStart && b < holeEnd {
				continue
			}
			vol := int64(2000 + rng.Intn(8000))
			if rng.Float64() < 0.03 {
				vol *= 4
			}
			ts := dayStart.Add(time.Duration(b) * time.Minute)
			fmt.Fprintf(w, "%d,%s,%s,%s,%s,%d\n",
				ts.UnixMilli(),
				decimal.NewFromFloat(o).Round(2),
				decimal.NewFromFloat(hi).Round(2),
				decimal.NewFromFloat(lo).Round(2),
				decimal.NewFromFloat(c).Round(2),
				vol)
			totalBars++
		}
		day = day.AddDate(0, 0, 1)
	}
	return totalBars, dayCount, w.Flush()
}
