package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/store"
)

const (
	anomalyWindowDays  = 90
	anomalyMinTxs      = 10
	unusualMinSamples  = 5
	unusualSigmas      = 3.0
	spikeRecentDays    = 7
	spikeCompareDays   = 37
	spikeWeeksInWindow = 4.3
	duplicateMaxGap    = 3
	creepTolerance     = 5.0
	creepMinCharges    = 3
	creepIncrease      = 1.1
)

// AnomalyDetector scans a user's trailing 90-day transaction window for
// irregular activity. Anomalies are computed fresh on every pass and never
// persisted; the insights generator consumes them immediately.
type AnomalyDetector struct {
	store store.Store
	now   func() time.Time
}

// NewAnomalyDetector creates a detector reading from st.
func NewAnomalyDetector(st store.Store) *AnomalyDetector {
	return &AnomalyDetector{store: st, now: time.Now}
}

// DetectAnomalies runs all sub-scans and concatenates their findings.
// Fewer than 10 transactions in the window yields an empty result, not an
// error. The detector does not rank or deduplicate across scans.
func (d *AnomalyDetector) DetectAnomalies(ctx context.Context, userID string) ([]*model.Anomaly, error) {
	asOf := model.Day(d.now())
	start := asOf.AddDate(0, 0, -anomalyWindowDays)

	txs, err := d.store.ListTransactions(ctx, userID, &start, &asOf)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if len(txs) < anomalyMinTxs {
		return nil, nil
	}

	var anomalies []*model.Anomaly
	anomalies = append(anomalies, detectUnusualAmounts(txs)...)
	anomalies = append(anomalies, detectCategorySpikes(txs, asOf)...)
	anomalies = append(anomalies, detectDuplicateCharges(txs)...)
	anomalies = append(anomalies, detectSubscriptionCreep(txs)...)
	return anomalies, nil
}

// detectUnusualAmounts flags expenses deviating from their category mean by
// more than three sample standard deviations. Categories need at least five
// expense observations to establish a baseline.
func detectUnusualAmounts(txs []*model.Transaction) []*model.Anomaly {
	byCategory := make(map[string][]float64)
	for _, tx := range txs {
		if tx.IsExpense() {
			byCategory[tx.Label] = append(byCategory[tx.Label], math.Abs(tx.Amount))
		}
	}

	var anomalies []*model.Anomaly
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		amounts := byCategory[tx.Label]
		if len(amounts) < unusualMinSamples {
			continue
		}
		mean, stdev := meanStdev(amounts)
		amount := math.Abs(tx.Amount)
		if stdev > 0 && math.Abs(amount-mean) > unusualSigmas*stdev {
			deviation := math.Abs(amount-mean) / mean * 100
			anomalies = append(anomalies, &model.Anomaly{
				Type:           model.AnomalyUnusualAmount,
				Category:       tx.Label,
				Title:          fmt.Sprintf("Unusual %s expense", tx.Label),
				Description:    fmt.Sprintf("$%.2f is %.0f%% higher than your typical %s expense of $%.2f", amount, deviation, tx.Label, mean),
				TransactionIDs: []int64{tx.ID},
				Dates:          []time.Time{tx.TxDate},
				Amount:         amount,
				Baseline:       mean,
				Percent:        deviation,
			})
		}
	}
	return anomalies
}

// detectCategorySpikes compares the most recent week's expense total per
// category against the average weekly rate of the preceding ~30 days and
// flags categories whose recent total more than doubles the baseline.
func detectCategorySpikes(txs []*model.Transaction, asOf time.Time) []*model.Anomaly {
	recentStart := asOf.AddDate(0, 0, -spikeRecentDays)
	compareStart := asOf.AddDate(0, 0, -spikeCompareDays)

	recent := make(map[string]float64)
	previous := make(map[string]float64)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		switch {
		case !tx.TxDate.Before(recentStart):
			recent[tx.Label] += math.Abs(tx.Amount)
		case !tx.TxDate.Before(compareStart):
			previous[tx.Label] += math.Abs(tx.Amount)
		}
	}

	categories := make([]string, 0, len(recent))
	for category := range recent {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var anomalies []*model.Anomaly
	for _, category := range categories {
		prevTotal, ok := previous[category]
		if !ok {
			continue
		}
		weeklyAvg := prevTotal / spikeWeeksInWindow
		if weeklyAvg <= 0 {
			continue
		}
		recentTotal := recent[category]
		if recentTotal > 2*weeklyAvg {
			increase := (recentTotal - weeklyAvg) / weeklyAvg * 100
			anomalies = append(anomalies, &model.Anomaly{
				Type:        model.AnomalyCategorySpike,
				Category:    category,
				Title:       fmt.Sprintf("Spike in %s spending", category),
				Description: fmt.Sprintf("You spent $%.2f on %s this week, %.0f%% more than your typical weekly spending of $%.2f", recentTotal, category, increase, weeklyAvg),
				Amount:      recentTotal,
				Baseline:    weeklyAvg,
				Percent:     increase,
			})
		}
	}
	return anomalies
}

// detectDuplicateCharges flags unordered pairs of expenses with identical
// amount and category, one to three days apart. Pairs are the reported
// unit; a transaction may appear in several pairs. Candidates are bucketed
// by (amount, category) so only same-bucket pairs are compared.
func detectDuplicateCharges(txs []*model.Transaction) []*model.Anomaly {
	type bucketKey struct {
		amount float64
		label  string
	}
	buckets := make(map[bucketKey][]*model.Transaction)
	var order []bucketKey
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		key := bucketKey{amount: tx.Amount, label: tx.Label}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], tx)
	}

	var anomalies []*model.Anomaly
	for _, key := range order {
		group := buckets[key]
		for i, tx1 := range group {
			for _, tx2 := range group[i+1:] {
				daysApart := int(math.Abs(tx1.TxDate.Sub(tx2.TxDate).Hours() / 24))
				if daysApart == 0 || daysApart > duplicateMaxGap {
					continue
				}
				amount := math.Abs(tx1.Amount)
				anomalies = append(anomalies, &model.Anomaly{
					Type:           model.AnomalyDuplicateCharge,
					Category:       tx1.Label,
					Title:          fmt.Sprintf("Potential duplicate %s charge", tx1.Label),
					Description:    fmt.Sprintf("Two identical charges of $%.2f for %s within %d days", amount, tx1.Label, daysApart),
					TransactionIDs: []int64{tx1.ID, tx2.ID},
					Dates:          []time.Time{tx1.TxDate, tx2.TxDate},
					Amount:         amount,
				})
			}
		}
	}
	return anomalies
}

// detectSubscriptionCreep finds categories of recurring, near-identical
// charges whose latest amount exceeds the earliest by more than 10%.
func detectSubscriptionCreep(txs []*model.Transaction) []*model.Anomaly {
	type charge struct {
		amount float64
		date   time.Time
	}
	byCategory := make(map[string][]charge)
	var order []string
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		similar := 0
		for _, other := range txs {
			if other.ID == tx.ID || other.Label != tx.Label {
				continue
			}
			if math.Abs(math.Abs(other.Amount)-math.Abs(tx.Amount)) < creepTolerance {
				similar++
			}
		}
		if similar >= creepMinCharges-1 {
			if _, seen := byCategory[tx.Label]; !seen {
				order = append(order, tx.Label)
			}
			byCategory[tx.Label] = append(byCategory[tx.Label], charge{amount: math.Abs(tx.Amount), date: tx.TxDate})
		}
	}

	var anomalies []*model.Anomaly
	for _, category := range order {
		charges := byCategory[category]
		if len(charges) < creepMinCharges {
			continue
		}
		sort.SliceStable(charges, func(i, j int) bool { return charges[i].date.Before(charges[j].date) })
		first := charges[0].amount
		last := charges[len(charges)-1].amount
		if last > first*creepIncrease {
			increase := (last - first) / first * 100
			anomalies = append(anomalies, &model.Anomaly{
				Type:        model.AnomalySubscriptionCreep,
				Category:    category,
				Title:       fmt.Sprintf("%s subscription cost increased", category),
				Description: fmt.Sprintf("Your %s subscription has increased from $%.2f to $%.2f (%.0f%% increase)", category, first, last, increase),
				Amount:      last,
				Baseline:    first,
				Percent:     increase,
			})
		}
	}
	return anomalies
}

// meanStdev returns the mean and sample standard deviation.
func meanStdev(values []float64) (mean, stdev float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n
	if len(values) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / (n - 1))
}
