package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/store"
)

const (
	insightRetentionDays  = 30
	insightDedupDays      = 7
	savingsWindowDays     = 30
	savingsMinCount       = 10
	savingsReduction      = 0.2
	achievementMinDollar  = 50.0
	achievementMinPct     = 20.0
	recommendationCushion = 1.1
)

// InsightsGenerator produces the full de-duplicated insight list for a user
// and the composite financial health score.
type InsightsGenerator struct {
	store    store.Store
	detector *AnomalyDetector
	log      *logrus.Logger
	now      func() time.Time
}

// NewInsightsGenerator creates a generator reading from st.
func NewInsightsGenerator(st store.Store, log *logrus.Logger) *InsightsGenerator {
	return &InsightsGenerator{
		store:    st,
		detector: NewAnomalyDetector(st),
		log:      log,
		now:      time.Now,
	}
}

// GenerateInsights runs every scan and returns the combined insight list.
// The insights are plain values; persistence, dedup and pruning happen in
// GenerateAndStore.
func (g *InsightsGenerator) GenerateInsights(ctx context.Context, userID string) ([]*model.Insight, error) {
	now := g.now().UTC()

	var insights []*model.Insight

	anomalies, err := g.detector.DetectAnomalies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("detect anomalies: %w", err)
	}
	for _, a := range anomalies {
		priority := model.PriorityMedium
		if a.Type == model.AnomalyDuplicateCharge {
			priority = model.PriorityHigh
		}
		insights = append(insights, &model.Insight{
			ID:          uuid.New().String(),
			UserID:      userID,
			Type:        model.InsightAnomaly,
			Priority:    priority,
			Title:       a.Title,
			Description: a.Description,
			Data:        a.Data(),
			CreatedAt:   now,
		})
	}

	scans := []func(context.Context, string, time.Time) ([]*model.Insight, error){
		g.savingsOpportunities,
		g.achievements,
		g.predictions,
		g.recommendations,
	}
	for _, scan := range scans {
		batch, err := scan(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		insights = append(insights, batch...)
	}
	return insights, nil
}

// GenerateAndStore generates insights, prunes stored insights past the
// 30-day retention window, persists new insights that do not duplicate a
// same-type same-title insight from the last 7 days, and stores a fresh
// health score.
func (g *InsightsGenerator) GenerateAndStore(ctx context.Context, userID string) error {
	now := g.now().UTC()

	pruned, err := g.store.DeleteInsightsBefore(ctx, userID, now.AddDate(0, 0, -insightRetentionDays))
	if err != nil {
		return fmt.Errorf("prune insights: %w", err)
	}

	insights, err := g.GenerateInsights(ctx, userID)
	if err != nil {
		return err
	}

	stored := 0
	dedupSince := now.AddDate(0, 0, -insightDedupDays)
	for _, insight := range insights {
		exists, err := g.store.HasRecentInsight(ctx, userID, insight.Type, insight.Title, dedupSince)
		if err != nil {
			return fmt.Errorf("check recent insight: %w", err)
		}
		if exists {
			continue
		}
		if err := g.store.CreateInsight(ctx, insight); err != nil {
			return fmt.Errorf("store insight: %w", err)
		}
		stored++
	}

	score, err := g.CalculateHealthScore(ctx, userID)
	if err != nil {
		return fmt.Errorf("calculate health score: %w", err)
	}
	if err := g.store.CreateHealthScore(ctx, score); err != nil {
		return fmt.Errorf("store health score: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"user":      userID,
		"generated": len(insights),
		"stored":    stored,
		"pruned":    pruned,
		"score":     score.Score,
	}).Info("insights generated")
	return nil
}

// savingsOpportunities flags expense categories charged more than 10 times
// in the trailing 30 days with a 20% reduction estimate.
func (g *InsightsGenerator) savingsOpportunities(ctx context.Context, userID string, now time.Time) ([]*model.Insight, error) {
	start := model.Day(now).AddDate(0, 0, -savingsWindowDays)
	txs, err := g.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	spending := make(map[string]float64)
	counts := make(map[string]int)
	for _, tx := range txs {
		if tx.IsExpense() {
			spending[tx.Label] += math.Abs(tx.Amount)
			counts[tx.Label]++
		}
	}

	categories := sortedKeys(spending)
	var insights []*model.Insight
	for _, category := range categories {
		count := counts[category]
		if count <= savingsMinCount {
			continue
		}
		total := spending[category]
		savings := total * savingsReduction
		insights = append(insights, &model.Insight{
			ID:          uuid.New().String(),
			UserID:      userID,
			Type:        model.InsightSavingsOpportunity,
			Priority:    model.PriorityMedium,
			Title:       fmt.Sprintf("Save on %s expenses", category),
			Description: fmt.Sprintf("You spent $%.2f on %s across %d transactions. Reducing by 20%% could save you $%.2f/month!", total, category, count, savings),
			Data: map[string]any{
				"category":            category,
				"total_spent":         total,
				"transaction_count":   count,
				"potential_savings":   savings,
				"avg_per_transaction": total / float64(count),
			},
			CreatedAt: now,
		})
	}
	return insights, nil
}

// achievements recognizes categories whose spending fell by more than $50
// and more than 20% versus the previous calendar month.
func (g *InsightsGenerator) achievements(ctx context.Context, userID string, now time.Time) ([]*model.Insight, error) {
	currentStart := model.MonthStart(now)
	lastStart := currentStart.AddDate(0, -1, 0)
	lastEnd := currentStart.AddDate(0, 0, -1)

	current, err := g.store.ListTransactions(ctx, userID, &currentStart, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	previous, err := g.store.ListTransactions(ctx, userID, &lastStart, &lastEnd)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	currentSpending := expenseByCategory(current)
	lastSpending := expenseByCategory(previous)

	var insights []*model.Insight
	for _, category := range sortedKeys(lastSpending) {
		currentAmount, ok := currentSpending[category]
		if !ok {
			continue
		}
		lastAmount := lastSpending[category]
		reduction := lastAmount - currentAmount
		reductionPct := reduction / lastAmount * 100
		if reduction > achievementMinDollar && reductionPct > achievementMinPct {
			insights = append(insights, &model.Insight{
				ID:          uuid.New().String(),
				UserID:      userID,
				Type:        model.InsightAchievement,
				Priority:    model.PriorityLow,
				Title:       fmt.Sprintf("Great job reducing %s spending! 🎉", category),
				Description: fmt.Sprintf("You've reduced your %s spending by $%.2f (%.0f%%) compared to last month!", category, reduction, reductionPct),
				Data: map[string]any{
					"category":             category,
					"last_month":           lastAmount,
					"current_month":        currentAmount,
					"reduction":            reduction,
					"reduction_percentage": reductionPct,
				},
				CreatedAt: now,
			})
		}
	}
	return insights, nil
}

// predictions projects month-end spend from the current daily rate and
// warns when the projection exceeds the month's budget goal.
func (g *InsightsGenerator) predictions(ctx context.Context, userID string, now time.Time) ([]*model.Insight, error) {
	monthStart := model.MonthStart(now)
	goal, err := g.store.GetBudgetGoal(ctx, userID, monthStart)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get budget goal: %w", err)
	}

	txs, err := g.store.ListTransactions(ctx, userID, &monthStart, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	var spending float64
	for _, tx := range txs {
		if tx.IsExpense() {
			spending += math.Abs(tx.Amount)
		}
	}

	daysPassed := now.Day()
	if daysPassed == 0 {
		return nil, nil
	}
	const daysInMonth = 30
	dailyRate := spending / float64(daysPassed)
	projected := dailyRate * daysInMonth
	if projected <= goal.Amount || dailyRate == 0 {
		return nil, nil
	}

	daysUntilExceed := int((goal.Amount - spending) / dailyRate)
	overage := projected - goal.Amount
	priority := model.PriorityMedium
	if daysUntilExceed < 7 {
		priority = model.PriorityHigh
	}

	shown := daysUntilExceed
	if shown < 0 {
		shown = 0
	}
	return []*model.Insight{{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        model.InsightPrediction,
		Priority:    priority,
		Title:       "Budget alert: You're on track to exceed your budget",
		Description: fmt.Sprintf("At your current spending rate of $%.2f/day, you'll exceed your $%.2f budget in %d days. Projected overage: $%.2f", dailyRate, goal.Amount, shown, overage),
		Data: map[string]any{
			"current_spending":  spending,
			"daily_rate":        dailyRate,
			"projected_total":   projected,
			"budget":            goal.Amount,
			"days_until_exceed": daysUntilExceed,
			"overage":           overage,
		},
		CreatedAt: now,
	}}, nil
}

// recommendations suggests a budget goal at 110% of trailing-30-day spend
// when the user has activity but no goal for the current month.
func (g *InsightsGenerator) recommendations(ctx context.Context, userID string, now time.Time) ([]*model.Insight, error) {
	if _, err := g.store.GetBudgetGoal(ctx, userID, model.MonthStart(now)); err == nil {
		return nil, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get budget goal: %w", err)
	}

	start := model.Day(now).AddDate(0, 0, -savingsWindowDays)
	txs, err := g.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if len(txs) <= savingsMinCount {
		return nil, nil
	}

	var spending float64
	for _, tx := range txs {
		if tx.IsExpense() {
			spending += math.Abs(tx.Amount)
		}
	}
	recommended := spending * recommendationCushion

	return []*model.Insight{{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        model.InsightRecommendation,
		Priority:    model.PriorityMedium,
		Title:       "Set a monthly budget goal",
		Description: fmt.Sprintf("Based on your spending patterns, we recommend setting a monthly budget of $%.2f. This gives you a 10%% cushion while encouraging mindful spending.", recommended),
		Data: map[string]any{
			"recommended_budget": recommended,
			"current_spending":   spending,
		},
		ActionURL: "/dashboard",
		CreatedAt: now,
	}}, nil
}

func expenseByCategory(txs []*model.Transaction) map[string]float64 {
	out := make(map[string]float64)
	for _, tx := range txs {
		if tx.IsExpense() {
			out[tx.Label] += math.Abs(tx.Amount)
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
