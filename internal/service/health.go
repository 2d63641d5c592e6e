package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/store"
)

// Health score component weights.
const (
	weightBudgetAdherence     = 0.3
	weightSpendingConsistency = 0.2
	weightSavingsRate         = 0.3
	weightCategoryBalance     = 0.2
)

const neutralScore = 50.0

// CalculateHealthScore computes the composite 0-100 financial health score
// from four weighted sub-scores. The trend compares against the previous
// stored score with a two point dead zone; degenerate inputs fall back to
// the neutral 50 per component.
func (g *InsightsGenerator) CalculateHealthScore(ctx context.Context, userID string) (*model.FinancialHealthScore, error) {
	now := g.now().UTC()

	adherence, err := g.budgetAdherenceScore(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	consistency, err := g.spendingConsistencyScore(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	savings, err := g.savingsRateScore(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	balance, err := g.categoryBalanceScore(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	total := adherence*weightBudgetAdherence +
		consistency*weightSpendingConsistency +
		savings*weightSavingsRate +
		balance*weightCategoryBalance

	trend := model.TrendStable
	previous, err := g.store.LatestHealthScore(ctx, userID)
	switch {
	case err == nil:
		if total > previous.Score+2 {
			trend = model.TrendImproving
		} else if total < previous.Score-2 {
			trend = model.TrendDeclining
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("latest health score: %w", err)
	}

	return &model.FinancialHealthScore{
		UserID: userID,
		Score:  total,
		Components: map[string]float64{
			model.ComponentBudgetAdherence:     adherence,
			model.ComponentSpendingConsistency: consistency,
			model.ComponentSavingsRate:         savings,
			model.ComponentCategoryBalance:     balance,
		},
		Trend:        trend,
		CalculatedAt: now,
	}, nil
}

// HealthRecommendations maps weak score components to advice strings.
func HealthRecommendations(score *model.FinancialHealthScore) []string {
	var recs []string
	if score.Components[model.ComponentBudgetAdherence] < 70 {
		recs = append(recs, "Consider setting more realistic budget goals")
	}
	if score.Components[model.ComponentSpendingConsistency] < 60 {
		recs = append(recs, "Try to maintain more consistent spending patterns")
	}
	if score.Components[model.ComponentSavingsRate] < 50 {
		recs = append(recs, "Focus on increasing your savings rate")
	}
	if score.Components[model.ComponentCategoryBalance] < 60 {
		recs = append(recs, "Diversify your spending across different categories")
	}
	return recs
}

// budgetAdherenceScore averages min(100, goal/spend*100) over the last
// ~3 months of budget goals. Neutral 50 when no goals exist.
func (g *InsightsGenerator) budgetAdherenceScore(ctx context.Context, userID string, now time.Time) (float64, error) {
	since := model.MonthStart(now).AddDate(0, 0, -90)
	goals, err := g.store.ListBudgetGoals(ctx, userID, since)
	if err != nil {
		return 0, fmt.Errorf("list budget goals: %w", err)
	}
	if len(goals) == 0 {
		return neutralScore, nil
	}

	var scores []float64
	for _, goal := range goals {
		if goal.Amount <= 0 {
			continue
		}
		monthEnd := goal.Month.AddDate(0, 1, -1)
		txs, err := g.store.ListTransactions(ctx, userID, &goal.Month, &monthEnd)
		if err != nil {
			return 0, fmt.Errorf("list transactions: %w", err)
		}
		var spending float64
		for _, tx := range txs {
			if tx.IsExpense() {
				spending += math.Abs(tx.Amount)
			}
		}
		adherence := 100.0
		if spending > 0 {
			adherence = math.Min(100, goal.Amount/spending*100)
		}
		scores = append(scores, adherence)
	}
	if len(scores) == 0 {
		return neutralScore, nil
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), nil
}

// spendingConsistencyScore converts the coefficient of variation of the
// last 8 weekly expense totals into a 0-100 score; steadier is better.
func (g *InsightsGenerator) spendingConsistencyScore(ctx context.Context, userID string, now time.Time) (float64, error) {
	today := model.Day(now)
	start := today.AddDate(0, 0, -8*7)
	txs, err := g.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	weekly := make([]float64, 8)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		daysAgo := int(today.Sub(model.Day(tx.TxDate)).Hours() / 24)
		if daysAgo >= 1 && daysAgo <= 8*7 {
			weekly[(daysAgo-1)/7] += math.Abs(tx.Amount)
		}
	}

	mean, stdev := meanStdev(weekly)
	if mean <= 0 {
		return neutralScore, nil
	}
	cv := stdev / mean
	return math.Max(0, math.Min(100, 100*(1-cv))), nil
}

// savingsRateScore scales the trailing-30-day savings rate so a 20% rate
// maps to 100. All expenses and no income scores 0; no activity at all is
// neutral.
func (g *InsightsGenerator) savingsRateScore(ctx context.Context, userID string, now time.Time) (float64, error) {
	start := model.Day(now).AddDate(0, 0, -30)
	txs, err := g.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	var income, expenses float64
	for _, tx := range txs {
		if tx.IsExpense() {
			expenses += math.Abs(tx.Amount)
		} else {
			income += tx.Amount
		}
	}

	if income > 0 {
		rate := (income - expenses) / income
		return math.Max(0, math.Min(100, rate*500)), nil
	}
	if expenses > 0 {
		return 0, nil
	}
	return neutralScore, nil
}

// categoryBalanceScore measures how evenly expenses spread across
// categories via normalized Shannon entropy. Needs at least 10 expense
// transactions and 2 categories; otherwise neutral.
func (g *InsightsGenerator) categoryBalanceScore(ctx context.Context, userID string, now time.Time) (float64, error) {
	start := model.Day(now).AddDate(0, 0, -30)
	txs, err := g.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	spending := make(map[string]float64)
	var total float64
	count := 0
	for _, tx := range txs {
		if tx.IsExpense() {
			amount := math.Abs(tx.Amount)
			spending[tx.Label] += amount
			total += amount
			count++
		}
	}
	if count < 10 || total == 0 || len(spending) < 2 {
		return neutralScore, nil
	}

	entropy := 0.0
	for _, amount := range spending {
		p := amount / total
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	maxEntropy := math.Log(float64(len(spending)))
	if maxEntropy <= 0 {
		return neutralScore, nil
	}
	return math.Min(100, entropy/maxEntropy*100), nil
}
