package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:15")
	require.NoError(t, err)
	require.Equal(t, Clock{9, 15}, c)
	require.Equal(t, "09:15", c.String())

	for _, bad := range []string{"25:00", "09:75", "nonsense", ""} {
		_, err := ParseClock(bad)
		require.Error(t, err, bad)
	}
}

func TestClockComparisons(t *testing.T) {
	at := time.Date(2023, 3, 1, 10, 30, 0, 0, time.UTC)
	require.True(t, Clock{10, 30}.AtOrAfter(at))
	require.True(t, Clock{10, 0}.AtOrAfter(at))
	require.False(t, Clock{11, 0}.AtOrAfter(at))
	require.True(t, Clock{10, 0}.Contains(at, Clock{11, 0}))
	require.False(t, Clock{10, 31}.Contains(at, Clock{11, 0}))
}

func TestClockYAMLRoundTrip(t *testing.T) {
	var c Clock
	require.NoError(t, yaml.Unmarshal([]byte(`"15:15"`), &c))
	require.Equal(t, Clock{15, 15}, c)

	out, err := yaml.Marshal(Clock{9, 5})
	require.NoError(t, err)
	require.Equal(t, "\"09:05\"\n", string(out))
}

func TestNSESession(t *testing.T) {
	s := NSE()
	require.Equal(t, 375, s.Minutes())
	require.True(t, s.Contains(time.Date(2023, 3, 1, 9, 15, 0, 0, time.UTC)))
	require.True(t, s.Contains(time.Date(2023, 3, 1, 15, 29, 0, 0, time.UTC)))
	require.False(t, s.Contains(time.Date(2023, 3, 1, 15, 30, 0, 0, time.UTC)))
	require.False(t, s.Contains(time.Date(2023, 3, 1, 9, 14, 0, 0, time.UTC)))
}

func testBar(min int, o, h, l, c float64) Bar {
	total := 9*60 + 15 + min
	return Bar{
		Symbol:    "TEST",
		Timestamp: time.Date(2023, 3, 1, total/60, total%60, 0, 0, time.UTC),
		Open:      decimal.NewFromFloat(o),
		High:      decimal.NewFromFloat(h),
		Low:       decimal.NewFromFloat(l),
		Close:     decimal.NewFromFloat(c),
		Volume:    1000,
	}
}

func TestSeriesValidate(t *testing.T) {
	good := BarSeries{Symbol: "TEST", Bars: []Bar{testBar(0, 100, 101, 99, 100.5), testBar(1, 100.5, 101, 100, 100.8)}}
	require.NoError(t, good.Validate())

	highBelowLow := good
	highBelowLow.Bars = []Bar{testBar(0, 100, 99, 100.5, 100)}
	require.Error(t, highBelowLow.Validate())

	openOutside := good
	openOutside.Bars = []Bar{testBar(0, 102, 101, 99, 100)}
	require.Error(t, openOutside.Validate())

	misordered := BarSeries{Symbol: "TEST", Bars: []Bar{testBar(1, 100, 101, 99, 100), testBar(0, 100, 101, 99, 100)}}
	require.Error(t, misordered.Validate())

	noSymbol := BarSeries{}
	require.Error(t, noSymbol.Validate())
}

func TestDetectGaps(t *testing.T) {
	s := BarSeries{Symbol: "TEST", Bars: []Bar{
		testBar(0, 100, 101, 99, 100),
		testBar(1, 100, 101, 99, 100),
		testBar(10, 100, 101, 99, 100),
	}}
	gaps := s.DetectGaps(5 * time.Minute)
	require.Len(t, gaps, 1)
	require.Equal(t, s.Bars[1].Timestamp, gaps[0])

	require.Empty(t, s.DetectGaps(10*time.Minute))
}

func TestTypicalPrice(t *testing.T) {
	b := testBar(0, 100, 102, 98, 101)
	require.InDelta(t, (102.0+98+101)/3, b.TypicalPrice().InexactFloat64(), 1e-9)
}
