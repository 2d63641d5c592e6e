package service

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/finsight/backend/internal/model"
)

// ForecastModel projects an aggregated balance series forward. Implementations
// are pure: same series and horizon, same distribution of output (stochastic
// models draw fresh randomness per call but keep the date contract).
//
// Every implementation returns exactly horizon points, one per calendar day,
// starting the day after the last observed date.
type ForecastModel interface {
	FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint
}

// dayIndex returns each point's integer day offset from the first observed
// date, the regression feature shared by the trained models.
func dayIndex(series []model.SeriesPoint) []float64 {
	base := series[0].Date
	xs := make([]float64, len(series))
	for i, p := range series {
		xs[i] = float64(int(p.Date.Sub(base).Hours() / 24))
	}
	return xs
}

func balances(series []model.SeriesPoint) []float64 {
	ys := make([]float64, len(series))
	for i, p := range series {
		ys[i] = p.Balance
	}
	return ys
}

func toPoints(dates []time.Time, preds []float64) []model.ForecastPoint {
	out := make([]model.ForecastPoint, len(dates))
	for i := range dates {
		out[i] = model.ForecastPoint{Date: dates[i], PredictedBalance: preds[i]}
	}
	return out
}

// flatModel projects the last known balance unchanged. It is the fallback
// when the series has a single point and no trend can be fit.
type flatModel struct{}

func (flatModel) FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint {
	last := series[len(series)-1].Balance
	preds := make([]float64, horizon)
	for i := range preds {
		preds[i] = last
	}
	return toPoints(futureDates(series, horizon), preds)
}

// naiveTrendModel extends the average daily change over the trailing week
// (or the whole series when shorter). It is the fallback for short histories.
type naiveTrendModel struct{}

func (naiveTrendModel) FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint {
	n := len(series)
	last := series[n-1].Balance
	span := 7
	if n-1 < span {
		span = n - 1
	}
	daily := (last - series[n-1-span].Balance) / float64(span)

	preds := make([]float64, horizon)
	for i := range preds {
		preds[i] = last + daily*float64(i+1)
	}
	return toPoints(futureDates(series, horizon), preds)
}

// linearModel is ordinary least-squares regression of balance on day-index,
// extrapolated past the end of the series.
type linearModel struct{}

func (linearModel) FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint {
	xs := dayIndex(series)
	ys := balances(series)

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2 float64
	for i, x := range xs {
		sumX += x
		sumY += ys[i]
		sumXY += x * ys[i]
		sumX2 += x * x
	}
	var slope, intercept float64
	if denom := n*sumX2 - sumX*sumX; denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	} else {
		intercept = sumY / n
	}

	lastIdx := xs[len(xs)-1]
	preds := make([]float64, horizon)
	for i := range preds {
		preds[i] = intercept + slope*(lastIdx+float64(i+1))
	}
	return toPoints(futureDates(series, horizon), preds)
}

// monteCarloModel simulates 100 random walks whose steps are drawn from the
// Normal fit of the observed day-to-day deltas and returns the pointwise
// mean path. The first delta is the first balance itself, so a single-point
// series still yields a usable distribution.
type monteCarloModel struct {
	paths int
	seed  int64 // 0 seeds from the clock
}

func newMonteCarloModel() *monteCarloModel {
	return &monteCarloModel{paths: 100}
}

func (m *monteCarloModel) FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint {
	deltas := make([]float64, len(series))
	deltas[0] = series[0].Balance
	for i := 1; i < len(series); i++ {
		deltas[i] = series[i].Balance - series[i-1].Balance
	}

	var mu float64
	for _, d := range deltas {
		mu += d
	}
	mu /= float64(len(deltas))

	sigma := 0.0
	if len(deltas) >= 2 {
		var ss float64
		for _, d := range deltas {
			ss += (d - mu) * (d - mu)
		}
		sigma = math.Sqrt(ss / float64(len(deltas)-1))
	}

	seed := m.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	last := series[len(series)-1].Balance
	sums := make([]float64, horizon)
	for p := 0; p < m.paths; p++ {
		balance := last
		for i := 0; i < horizon; i++ {
			balance += mu + sigma*rng.NormFloat64()
			sums[i] += balance
		}
	}
	preds := make([]float64, horizon)
	for i := range preds {
		preds[i] = sums[i] / float64(m.paths)
	}
	return toPoints(futureDates(series, horizon), preds)
}

// randomForestModel averages fully-grown regression trees fit on bootstrap
// resamples of (day-index, balance). Trees cannot extrapolate past the
// training range, so projections plateau near the last observed balance;
// that plateau is the documented behavior of this variant.
type randomForestModel struct {
	trees int
	seed  int64
}

func newRandomForestModel() *randomForestModel {
	return &randomForestModel{trees: 100}
}

func (m *randomForestModel) FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint {
	xs := dayIndex(series)
	ys := balances(series)
	n := len(xs)

	seed := m.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	lastIdx := xs[n-1]
	future := make([]float64, horizon)
	for i := range future {
		future[i] = lastIdx + float64(i+1)
	}

	sums := make([]float64, horizon)
	bx := make([]float64, n)
	by := make([]float64, n)
	for t := 0; t < m.trees; t++ {
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			bx[i] = xs[j]
			by[i] = ys[j]
		}
		tree := buildRegressionTree(bx, by, 0)
		for i, x := range future {
			sums[i] += tree.predict(x)
		}
	}

	preds := make([]float64, horizon)
	for i := range preds {
		preds[i] = sums[i] / float64(m.trees)
	}
	return toPoints(futureDates(series, horizon), preds)
}

// gradientBoostedModel fits an additive ensemble of shallow regression
// trees on the residuals, 200 rounds at learning rate 0.1, depth 3.
type gradientBoostedModel struct {
	rounds       int
	learningRate float64
	maxDepth     int
}

func newGradientBoostedModel() *gradientBoostedModel {
	return &gradientBoostedModel{rounds: 200, learningRate: 0.1, maxDepth: 3}
}

func (m *gradientBoostedModel) FitPredict(series []model.SeriesPoint, horizon int) []model.ForecastPoint {
	xs := dayIndex(series)
	ys := balances(series)
	n := len(xs)

	var base float64
	for _, y := range ys {
		base += y
	}
	base /= float64(n)

	lastIdx := xs[n-1]
	future := make([]float64, horizon)
	preds := make([]float64, horizon)
	for i := range future {
		future[i] = lastIdx + float64(i+1)
		preds[i] = base
	}

	fitted := make([]float64, n)
	for i := range fitted {
		fitted[i] = base
	}
	residuals := make([]float64, n)
	for r := 0; r < m.rounds; r++ {
		for i := range residuals {
			residuals[i] = ys[i] - fitted[i]
		}
		tree := buildRegressionTree(xs, residuals, m.maxDepth)
		for i := range fitted {
			fitted[i] += m.learningRate * tree.predict(xs[i])
		}
		for i, x := range future {
			preds[i] += m.learningRate * tree.predict(x)
		}
	}
	return toPoints(futureDates(series, horizon), preds)
}

// regressionTree is a binary tree splitting on a single feature, used by
// both ensemble models.
type regressionTree struct {
	leaf      bool
	value     float64
	threshold float64
	left      *regressionTree
	right     *regressionTree
}

func (t *regressionTree) predict(x float64) float64 {
	for !t.leaf {
		if x <= t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

// buildRegressionTree grows a tree greedily, choosing at each node the split
// minimizing summed squared error via prefix sums over the x-sorted samples.
// maxDepth 0 grows until nodes are pure in x.
func buildRegressionTree(xs, ys []float64, maxDepth int) *regressionTree {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	sx := make([]float64, len(xs))
	sy := make([]float64, len(ys))
	for i, j := range idx {
		sx[i] = xs[j]
		sy[i] = ys[j]
	}
	return growTree(sx, sy, maxDepth, 1)
}

func growTree(xs, ys []float64, maxDepth, depth int) *regressionTree {
	n := len(xs)
	mean := 0.0
	for _, y := range ys {
		mean += y
	}
	mean /= float64(n)

	if n < 2 || xs[0] == xs[n-1] || (maxDepth > 0 && depth > maxDepth) {
		return &regressionTree{leaf: true, value: mean}
	}

	// Prefix sums of y and y² let each candidate split's SSE be computed
	// in constant time.
	prefix := make([]float64, n+1)
	prefixSq := make([]float64, n+1)
	for i, y := range ys {
		prefix[i+1] = prefix[i] + y
		prefixSq[i+1] = prefixSq[i] + y*y
	}
	sse := func(lo, hi int) float64 {
		cnt := float64(hi - lo)
		sum := prefix[hi] - prefix[lo]
		sumSq := prefixSq[hi] - prefixSq[lo]
		return sumSq - sum*sum/cnt
	}

	bestCost := math.Inf(1)
	bestSplit := -1
	for i := 1; i < n; i++ {
		if xs[i] == xs[i-1] {
			continue
		}
		cost := sse(0, i) + sse(i, n)
		if cost < bestCost {
			bestCost = cost
			bestSplit = i
		}
	}
	if bestSplit < 0 {
		return &regressionTree{leaf: true, value: mean}
	}

	return &regressionTree{
		threshold: (xs[bestSplit-1] + xs[bestSplit]) / 2,
		left:      growTree(xs[:bestSplit], ys[:bestSplit], maxDepth, depth+1),
		right:     growTree(xs[bestSplit:], ys[bestSplit:], maxDepth, depth+1),
	}
}
