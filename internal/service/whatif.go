package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/finsight/backend/internal/model"
	"github.com/finsight/backend/internal/store"
)

// WhatIfResult is the outcome of a spending-reduction scenario.
type WhatIfResult struct {
	CurrentMonthlySpending   float64 `json:"current_monthly_spending"`
	ProjectedMonthlySpending float64 `json:"projected_monthly_spending"`
	MonthlySavings           float64 `json:"monthly_savings"`
	AnnualSavings            float64 `json:"annual_savings"`
	ImpactOnBudget           string  `json:"impact_on_budget"`
}

// WhatIf projects the effect of cutting a category's spend by the given
// percentage, based on the trailing 30 days, and classifies the impact on
// the current month's budget goal.
func (g *InsightsGenerator) WhatIf(ctx context.Context, userID, category string, reductionPct float64) (*WhatIfResult, error) {
	now := g.now().UTC()
	start := model.Day(now).AddDate(0, 0, -30)

	txs, err := g.store.ListTransactions(ctx, userID, &start, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	var categorySpending float64
	for _, tx := range txs {
		if tx.IsExpense() && tx.Label == category {
			categorySpending += math.Abs(tx.Amount)
		}
	}

	projected := categorySpending * (1 - reductionPct/100)
	monthlySavings := categorySpending - projected

	impact := "No budget set"
	monthStart := model.MonthStart(now)
	goal, err := g.store.GetBudgetGoal(ctx, userID, monthStart)
	switch {
	case err == nil:
		var monthSpending float64
		for _, tx := range txs {
			if tx.IsExpense() && !tx.TxDate.Before(monthStart) {
				monthSpending += math.Abs(tx.Amount)
			}
		}
		newTotal := monthSpending - monthlySavings
		switch {
		case newTotal < goal.Amount*0.8:
			impact = "Well within budget (>20% margin)"
		case newTotal < goal.Amount:
			impact = "Within budget"
		default:
			impact = "Still over budget"
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("get budget goal: %w", err)
	}

	return &WhatIfResult{
		CurrentMonthlySpending:   categorySpending,
		ProjectedMonthlySpending: projected,
		MonthlySavings:           monthlySavings,
		AnnualSavings:            monthlySavings * 12,
		ImpactOnBudget:           impact,
	}, nil
}
