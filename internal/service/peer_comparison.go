package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/store"
)

// DefaultDemographic is the benchmark group used until real demographic
// segmentation exists.
const DefaultDemographic = "all_users"

// benchmarkCategories is the fixed set benchmarked across users.
var benchmarkCategories = []string{
	"food", "entertainment", "shopping", "transport",
	"education", "utilities", "health", "personal",
}

const (
	benchmarkMinUsers  = 5
	benchmarkMinPoints = 5
	benchmarkWindow    = 30
)

// PeerComparisonService aggregates anonymized cross-user spending
// percentiles and compares individual users against them.
type PeerComparisonService struct {
	store store.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewPeerComparisonService creates a service reading from st.
func NewPeerComparisonService(st store.Store, log *logrus.Logger) *PeerComparisonService {
	return &PeerComparisonService{store: st, log: log, now: time.Now}
}

// UpdateBenchmarks recomputes the per-category percentile benchmarks over
// the trailing 30 days. Fewer than five active users, or fewer than five
// spenders in a category, yields no benchmark for anonymity.
func (s *PeerComparisonService) UpdateBenchmarks(ctx context.Context, demographic string) error {
	now := s.now().UTC()
	start := model.Day(now).AddDate(0, 0, -benchmarkWindow)

	users, err := s.store.ListActiveUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) < benchmarkMinUsers {
		s.log.WithField("users", len(users)).Info("not enough users for peer comparison")
		return nil
	}

	// Per-user per-category expense totals for the window.
	totals := make(map[string]map[string]float64)
	for _, userID := range users {
		txs, err := s.store.ListTransactions(ctx, userID, &start, nil)
		if err != nil {
			return fmt.Errorf("list transactions for %s: %w", userID, err)
		}
		for _, tx := range txs {
			if !tx.IsExpense() {
				continue
			}
			if totals[tx.Label] == nil {
				totals[tx.Label] = make(map[string]float64)
			}
			totals[tx.Label][userID] += math.Abs(tx.Amount)
		}
	}

	for _, category := range benchmarkCategories {
		byUser := totals[category]
		amounts := make([]float64, 0, len(byUser))
		for _, total := range byUser {
			if total > 0 {
				amounts = append(amounts, total)
			}
		}
		if len(amounts) < benchmarkMinPoints {
			continue
		}
		sort.Float64s(amounts)

		count := len(amounts)
		var sum float64
		for _, a := range amounts {
			sum += a
		}
		mean := sum / float64(count)
		data := map[string]float64{
			"mean":       mean,
			"median":     amounts[count/2],
			"p10":        amounts[count/10],
			"p25":        amounts[count/4],
			"p75":        amounts[count*3/4],
			"p90":        amounts[count*9/10],
			"min":        amounts[0],
			"max":        amounts[count-1],
			"user_count": float64(count),
		}

		benchmark := &model.SpendingBenchmark{
			Category:       category,
			Demographic:    demographic,
			MedianAmount:   data["median"],
			AveragePercent: mean / 1000 * 100,
			Data:           data,
			UpdatedAt:      now,
		}
		if err := s.store.UpsertBenchmark(ctx, benchmark); err != nil {
			return fmt.Errorf("upsert benchmark %s: %w", category, err)
		}
	}

	s.log.WithField("demographic", demographic).Info("benchmarks updated")
	return nil
}

// UserComparison compares the user's trailing-30-day category spend against
// the stored benchmarks.
func (s *PeerComparisonService) UserComparison(ctx context.Context, userID string) (*model.PeerComparison, error) {
	now := s.now().UTC()
	start := model.Day(now).AddDate(0, 0, -benchmarkWindow)

	txs, err := s.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	spending := expenseByCategory(txs)

	var comparisons []model.CategoryComparison
	for _, category := range sortedKeys(spending) {
		if category == "" {
			continue
		}
		benchmark, err := s.store.GetBenchmark(ctx, category, DefaultDemographic)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get benchmark %s: %w", category, err)
		}

		amount := spending[category]
		data := benchmark.Data
		var status, message string
		switch {
		case amount <= data["p25"]:
			status = "excellent"
			message = "You're spending less than 75% of your peers!"
		case amount <= data["median"]:
			status = "good"
			message = "You're spending less than most peers."
		case amount <= data["p75"]:
			status = "average"
			message = "Your spending is typical for this category."
		default:
			status = "high"
			message = "You're spending more than 75% of your peers."
		}

		comparisons = append(comparisons, model.CategoryComparison{
			Category:   category,
			UserAmount: amount,
			PeerMedian: data["median"],
			PeerMean:   data["mean"],
			Percentile: percentileRank(amount, data),
			Status:     status,
			Message:    message,
			PeerLow:    data["p25"],
			PeerHigh:   data["p75"],
		})
	}

	result := &model.PeerComparison{
		Comparisons: comparisons,
		LastUpdated: now,
	}
	if len(comparisons) == 0 {
		result.OverallPercentile = 50
		result.OverallStatus = "no_data"
		return result, nil
	}

	var sum float64
	for _, c := range comparisons {
		sum += c.Percentile
	}
	avg := sum / float64(len(comparisons))
	result.OverallPercentile = avg
	switch {
	case avg <= 25:
		result.OverallStatus = "excellent"
	case avg <= 50:
		result.OverallStatus = "good"
	case avg <= 75:
		result.OverallStatus = "average"
	default:
		result.OverallStatus = "high"
	}
	return result, nil
}

// SavingsOpportunities lists the user's high-status categories with the
// savings available by matching the peer median, largest first.
func (s *PeerComparisonService) SavingsOpportunities(ctx context.Context, userID string) ([]model.SavingsOpportunity, error) {
	comparison, err := s.UserComparison(ctx, userID)
	if err != nil {
		return nil, err
	}

	var opportunities []model.SavingsOpportunity
	for _, comp := range comparison.Comparisons {
		if comp.Status != "high" {
			continue
		}
		savings := comp.UserAmount - comp.PeerMedian
		opportunities = append(opportunities, model.SavingsOpportunity{
			Category:                comp.Category,
			CurrentSpending:         comp.UserAmount,
			PeerMedian:              comp.PeerMedian,
			PotentialMonthlySavings: savings,
			PotentialAnnualSavings:  savings * 12,
			Recommendation:          fmt.Sprintf("Try to reduce %s spending by $%.0f/month to match typical peers", comp.Category, savings),
		})
	}
	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].PotentialMonthlySavings > opportunities[j].PotentialMonthlySavings
	})
	return opportunities, nil
}

// percentileRank maps an amount onto the coarse percentile ladder of a
// benchmark's distribution.
func percentileRank(value float64, data map[string]float64) float64 {
	switch {
	case value <= data["p10"]:
		return 10
	case value <= data["p25"]:
		return 25
	case value <= data["median"]:
		return 50
	case value <= data["p75"]:
		return 75
	case value <= data["p90"]:
		return 90
	default:
		return 95
	}
}
