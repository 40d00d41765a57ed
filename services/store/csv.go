package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"intraday-backtest/services/market"
)

// CSVProvider reads one CSV file per symbol (<dir>/<SYMBOL>.csv, columns
// timestamp_ms,open,high,low,close,volume). Parsed symbols are cached in a
// bounded, mutex-guarded map so concurrent workers never see another
// symbol's bars. Evicted entries are simply reparsed on the next request.
type CSVProvider struct {
	dir string
	log *zap.Logger

	mu       sync.Mutex
	maxCache int
	cache    map[string]*symbolBars
}

type symbolBars struct {
	days   []time.Time
	series map[int64]market.BarSeries
}

func NewCSVProvider(dir string, log *zap.Logger) *CSVProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSVProvider{
		dir: dir,
		log: log,
		// one slot per worker plus slack for interleaved requests
		maxCache: 2 * runtime.NumCPU(),
		cache:    make(map[string]*symbolBars),
	}
}

func (p *CSVProvider) TradingDays(_ context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	sb, err := p.load(symbol)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range sb.days {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *CSVProvider) DayBars(_ context.Context, symbol string, day time.Time) (market.BarSeries, error) {
	sb, err := p.load(symbol)
	if err != nil {
		return market.BarSeries{}, err
	}
	series, ok := sb.series[dayKey(day)]
	if !ok {
		return market.BarSeries{}, ErrNoData
	}
	return series, nil
}

// load returns an immutable snapshot of one symbol's bars. Callers hold the
// returned pointer, so eviction only costs a reparse.
func (p *CSVProvider) load(symbol string) (*symbolBars, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sb, ok := p.cache[symbol]; ok {
		return sb, nil
	}
	path := filepath.Join(p.dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
		}
		return nil, fmt.Errorf("open bars for %s: %w", symbol, err)
	}
	defer f.Close()

	series, days, err := parseBarCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("parse bars for %s: %w", symbol, err)
	}
	for k := range p.cache {
		if len(p.cache) < p.maxCache {
			break
		}
		delete(p.cache, k)
	}
	sb := &symbolBars{days: days, series: series}
	p.cache[symbol] = sb
	p.log.Debug("loaded symbol bars", zap.String("symbol", symbol), zap.Int("days", len(days)))
	return sb, nil
}

// parseBarCSV tolerates UTF-16 exports (BOM-sniffed, the way ClickHouse CSV
// dumps sometimes arrive) and quoted numeric fields.
func parseBarCSV(f *os.File, symbol string) (map[int64]market.BarSeries, []time.Time, error) {
	br := bufio.NewReader(f)
	var reader io.Reader = br
	if b, _ := br.Peek(2); len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, nil, err
		}
		reader = transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}

	byDay := make(map[int64][]market.Bar)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "\uFEFF")
		line = strings.ReplaceAll(line, "\"", "")
		if line == "" || strings.HasPrefix(line, "timestamp") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad timestamp %q", fields[0])
		}
		ts := time.UnixMilli(ms).UTC()
		bar := market.Bar{Symbol: symbol, Timestamp: ts}
		if bar.Open, err = decimal.NewFromString(fields[1]); err != nil {
			return nil, nil, fmt.Errorf("bad open %q", fields[1])
		}
		if bar.High, err = decimal.NewFromString(fields[2]); err != nil {
			return nil, nil, fmt.Errorf("bad high %q", fields[2])
		}
		if bar.Low, err = decimal.NewFromString(fields[3]); err != nil {
			return nil, nil, fmt.Errorf("bad low %q", fields[3])
		}
		if bar.Close, err = decimal.NewFromString(fields[4]); err != nil {
			return nil, nil, fmt.Errorf("bad close %q", fields[4])
		}
		vol, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad volume %q", fields[5])
		}
		bar.Volume = int64(vol)
		day := dayKey(ts)
		byDay[day] = append(byDay[day], bar)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	days := make([]time.Time, 0, len(byDay))
	for k := range byDay {
		days = append(days, time.Unix(k, 0).UTC())
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make(map[int64]market.BarSeries, len(byDay))
	var prevClose decimal.Decimal
	for _, day := range days {
		bars := byDay[dayKey(day)]
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
		out[dayKey(day)] = market.BarSeries{
			Symbol:    symbol,
			Day:       day,
			PrevClose: prevClose,
			Bars:      bars,
		}
		prevClose = bars[len(bars)-1].Close
	}
	return out, days, nil
}

var _ BarProvider = (*CSVProvider)(nil)
