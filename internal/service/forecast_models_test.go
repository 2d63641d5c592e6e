package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/backend/internal/model"
)

// seriesFrom builds a daily series starting at start with the given balances.
func seriesFrom(start string, balances ...float64) []model.SeriesPoint {
	base := day(start)
	series := make([]model.SeriesPoint, len(balances))
	for i, b := range balances {
		series[i] = model.SeriesPoint{Date: base.AddDate(0, 0, i), Balance: b}
	}
	return series
}

func assertForecastDates(t *testing.T, series []model.SeriesPoint, points []model.ForecastPoint) {
	t.Helper()
	last := series[len(series)-1].Date
	for i, p := range points {
		assert.Equal(t, last.AddDate(0, 0, i+1), p.Date, "point %d", i)
	}
}

func TestFlatModel(t *testing.T) {
	series := seriesFrom("2025-03-01", 42.5)
	points := flatModel{}.FitPredict(series, 5)

	require.Len(t, points, 5)
	assertForecastDates(t, series, points)
	for _, p := range points {
		assert.Equal(t, 42.5, p.PredictedBalance)
	}
}

func TestNaiveTrendModel(t *testing.T) {
	tests := []struct {
		name     string
		balances []float64
		horizon  int
		want     []float64
	}{
		{
			name:     "short series uses full span",
			balances: []float64{0, 10, 20, 30, 40},
			horizon:  3,
			want:     []float64{50, 60, 70},
		},
		{
			name:     "long series uses trailing week",
			balances: []float64{0, 0, 0, 100, 107, 114, 121, 128, 135, 142, 149, 156, 163, 170},
			horizon:  2,
			want:     []float64{177, 184},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := seriesFrom("2025-03-01", tt.balances...)
			points := naiveTrendModel{}.FitPredict(series, tt.horizon)

			require.Len(t, points, tt.horizon)
			assertForecastDates(t, series, points)
			for i, p := range points {
				assert.InDelta(t, tt.want[i], p.PredictedBalance, 1e-9, "point %d", i)
			}
		})
	}
}

func TestLinearModelRecoversExactLine(t *testing.T) {
	// Balances on the line y = 2x + 10 over ten days.
	balances := make([]float64, 10)
	for i := range balances {
		balances[i] = 2*float64(i) + 10
	}
	series := seriesFrom("2025-03-01", balances...)

	points := linearModel{}.FitPredict(series, 7)
	require.Len(t, points, 7)
	assertForecastDates(t, series, points)
	for i, p := range points {
		want := 2*float64(9+i+1) + 10
		assert.InDelta(t, want, p.PredictedBalance, 1e-6, "point %d", i)
	}
}

func TestMonteCarloDeterministicWhenDeltasConstant(t *testing.T) {
	// Every delta, including the implicit first one, equals 10, so the
	// fitted distribution has zero variance and the walk is exact.
	series := seriesFrom("2025-03-01", 10, 20, 30, 40, 50, 60, 70)
	m := &monteCarloModel{paths: 100, seed: 1}

	points := m.FitPredict(series, 5)
	require.Len(t, points, 5)
	assertForecastDates(t, series, points)
	for i, p := range points {
		assert.InDelta(t, 70+10*float64(i+1), p.PredictedBalance, 1e-6, "point %d", i)
	}
}

func TestMonteCarloSeedReproducible(t *testing.T) {
	series := seriesFrom("2025-03-01", 100, 95, 110, 90, 120, 105, 130)

	a := (&monteCarloModel{paths: 100, seed: 7}).FitPredict(series, 10)
	b := (&monteCarloModel{paths: 100, seed: 7}).FitPredict(series, 10)
	assert.Equal(t, a, b)
}

func TestRandomForestPlateaus(t *testing.T) {
	series := seriesFrom("2025-03-01", 10, 20, 30, 40, 50, 60, 70, 80, 90, 100)
	m := &randomForestModel{trees: 100, seed: 3}

	points := m.FitPredict(series, 14)
	require.Len(t, points, 14)
	assertForecastDates(t, series, points)

	// Trees cannot extrapolate: every future day maps to the rightmost
	// leaf, so the projection is flat and stays within the observed range.
	first := points[0].PredictedBalance
	for i, p := range points {
		assert.Equal(t, first, p.PredictedBalance, "point %d", i)
	}
	assert.GreaterOrEqual(t, first, 10.0)
	assert.LessOrEqual(t, first, 100.0)
}

func TestGradientBoostedFitsConstantSeries(t *testing.T) {
	series := seriesFrom("2025-03-01", 55, 55, 55, 55, 55, 55, 55, 55)
	m := newGradientBoostedModel()

	points := m.FitPredict(series, 5)
	require.Len(t, points, 5)
	assertForecastDates(t, series, points)
	for i, p := range points {
		assert.InDelta(t, 55.0, p.PredictedBalance, 1e-6, "point %d", i)
	}
}

func TestRegressionTreeSplits(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{0, 0, 10, 10}

	tree := buildRegressionTree(xs, ys, 1)
	assert.InDelta(t, 0.0, tree.predict(0), 1e-9)
	assert.InDelta(t, 0.0, tree.predict(1), 1e-9)
	assert.InDelta(t, 10.0, tree.predict(2), 1e-9)
	assert.InDelta(t, 10.0, tree.predict(100), 1e-9)
}

func TestRegressionTreePureXIsLeaf(t *testing.T) {
	tree := buildRegressionTree([]float64{5, 5, 5}, []float64{1, 2, 3}, 0)
	assert.True(t, tree.leaf)
	assert.InDelta(t, 2.0, tree.value, 1e-9)
}

func TestFutureDatesConsecutive(t *testing.T) {
	series := seriesFrom("2025-12-30", 1, 2)
	dates := futureDates(series, 3)
	require.Len(t, dates, 3)
	assert.Equal(t, day("2026-01-01"), dates[0])
	assert.Equal(t, day("2026-01-02"), dates[1])
	assert.Equal(t, day("2026-01-03"), dates[2])
}

func TestDayIndexSkipsGaps(t *testing.T) {
	series := []model.SeriesPoint{
		{Date: day("2025-03-01"), Balance: 1},
		{Date: day("2025-03-04"), Balance: 2},
		{Date: day("2025-03-10"), Balance: 3},
	}
	xs := dayIndex(series)
	assert.Equal(t, []float64{0, 3, 9}, xs)
}
