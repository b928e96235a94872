package valuation

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundlens/internal/dates"
	"fundlens/internal/models"
)

// fakeQuotes answers from fixed maps and can be told to fail a symbol for the
// first N calls.
type fakeQuotes struct {
	mu        sync.Mutex
	live      map[string]float64
	hist      map[string]float64
	failFirst map[string]int
	calls     map[string]int
}

func (f *fakeQuotes) Name() string { return "fake" }

func (f *fakeQuotes) LivePercentChange(ctx context.Context, symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[symbol]++
	if f.failFirst[symbol] >= f.calls[symbol] {
		return 0, false
	}
	pct, ok := f.live[symbol]
	return pct, ok
}

func (f *fakeQuotes) HistoricalPercentChange(ctx context.Context, symbol string, on dates.Date) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pct, ok := f.hist[symbol]
	return pct, ok
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testAggregator(q *fakeQuotes) *Aggregator {
	a := NewAggregator(q, quietLog())
	a.retryDelay = 0
	return a
}

func weight(pct float64) models.WeightFraction {
	w, _ := models.NewWeightFraction(pct)
	return w
}

func TestAggregate_WeightedAverageAtFullCoverage(t *testing.T) {
	agg := testAggregator(&fakeQuotes{live: map[string]float64{
		"NSE:AAA-EQ": 2.0,
		"NSE:BBB-EQ": -1.0,
	}})
	holdings := []models.Holding{
		{Symbol: "NSE:AAA-EQ", Weight: weight(60)},
		{Symbol: "NSE:BBB-EQ", Weight: weight(40)},
	}

	got, err := agg.AggregatePercentChange(context.Background(), holdings, AsOf{Live: true})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.PercentChange, 1e-9) // (0.6*2 - 0.4*1) / 1.0
	assert.InDelta(t, 1.0, got.Coverage, 1e-9)
	assert.Equal(t, 2, got.Quoted)
}

func TestAggregate_PartialCoverageStillWeighted(t *testing.T) {
	agg := testAggregator(&fakeQuotes{live: map[string]float64{
		"NSE:AAA-EQ": 2.0,
		"NSE:BBB-EQ": 1.0,
	}})
	holdings := []models.Holding{
		{Symbol: "NSE:AAA-EQ", Weight: weight(50)},
		{Symbol: "NSE:BBB-EQ", Weight: weight(30)},
		{Symbol: "NSE:CCC-EQ", Weight: weight(20)}, // never quotes
	}

	got, err := agg.AggregatePercentChange(context.Background(), holdings, AsOf{Live: true})
	require.NoError(t, err)
	assert.InDelta(t, 1.625, got.PercentChange, 1e-9) // (0.5*2 + 0.3*1) / 0.8
	assert.InDelta(t, 0.8, got.Coverage, 1e-9)
}

func TestAggregate_BelowLiveThreshold(t *testing.T) {
	agg := testAggregator(&fakeQuotes{live: map[string]float64{
		"NSE:AAA-EQ": 2.0,
	}})
	holdings := []models.Holding{
		{Symbol: "NSE:AAA-EQ", Weight: weight(40)},
		{Symbol: "NSE:BBB-EQ", Weight: weight(60)},
	}

	_, err := agg.AggregatePercentChange(context.Background(), holdings, AsOf{Live: true})
	assert.ErrorIs(t, err, models.ErrInsufficientCoverage)
}

func TestAggregate_HistoricalThresholdIsLooser(t *testing.T) {
	agg := testAggregator(&fakeQuotes{hist: map[string]float64{
		"NSE:AAA-EQ": 1.5,
	}})
	holdings := []models.Holding{
		{Symbol: "NSE:AAA-EQ", Weight: weight(55)},
		{Symbol: "NSE:BBB-EQ", Weight: weight(45)},
	}

	got, err := agg.AggregatePercentChange(context.Background(), holdings, AsOf{Date: dates.MustParse("2023-10-17")})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got.PercentChange, 1e-9)
	assert.InDelta(t, 0.55, got.Coverage, 1e-9)
}

func TestAggregate_RetryPassRecoversFailures(t *testing.T) {
	agg := testAggregator(&fakeQuotes{
		live:      map[string]float64{"NSE:AAA-EQ": 1.0, "NSE:BBB-EQ": 3.0},
		failFirst: map[string]int{"NSE:BBB-EQ": 1},
	})
	holdings := []models.Holding{
		{Symbol: "NSE:AAA-EQ", Weight: weight(50)},
		{Symbol: "NSE:BBB-EQ", Weight: weight(50)},
	}

	got, err := agg.AggregatePercentChange(context.Background(), holdings, AsOf{Live: true})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.PercentChange, 1e-9)
	assert.Equal(t, 2, got.Quoted)
}

func TestAggregate_UnresolvedSymbolsExcluded(t *testing.T) {
	agg := testAggregator(&fakeQuotes{live: map[string]float64{}})
	holdings := []models.Holding{
		{Name: "Unlisted Co", Weight: weight(100)},
	}

	_, err := agg.AggregatePercentChange(context.Background(), holdings, AsOf{Live: true})
	assert.ErrorIs(t, err, models.ErrInsufficientCoverage)
}
