package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/backend/internal/model"
)

func TestWhatIfWithoutBudget(t *testing.T) {
	g, st := newTestGenerator(t, "2025-06-15")
	seedTx(t, st, "u1", "2025-06-05", -200, "food")
	seedTx(t, st, "u1", "2025-06-10", -100, "food")
	seedTx(t, st, "u1", "2025-06-12", -50, "transport")

	result, err := g.WhatIf(context.Background(), "u1", "food", 20)
	require.NoError(t, err)

	assert.InDelta(t, 300.0, result.CurrentMonthlySpending, 1e-9)
	assert.InDelta(t, 240.0, result.ProjectedMonthlySpending, 1e-9)
	assert.InDelta(t, 60.0, result.MonthlySavings, 1e-9)
	assert.InDelta(t, 720.0, result.AnnualSavings, 1e-9)
	assert.Equal(t, "No budget set", result.ImpactOnBudget)
}

func TestWhatIfBudgetImpact(t *testing.T) {
	tests := []struct {
		name   string
		goal   float64
		impact string
	}{
		// June spending is $300; a 20% food cut saves $60, leaving $240.
		{"well within budget", 400, "Well within budget (>20% margin)"},
		{"within budget", 250, "Within budget"},
		{"still over budget", 200, "Still over budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, st := newTestGenerator(t, "2025-06-15")
			ctx := context.Background()
			require.NoError(t, st.UpsertBudgetGoal(ctx, &model.BudgetGoal{
				UserID: "u1", Month: day("2025-06-01"), Amount: tt.goal,
			}))
			seedTx(t, st, "u1", "2025-06-05", -300, "food")

			result, err := g.WhatIf(ctx, "u1", "food", 20)
			require.NoError(t, err)
			assert.Equal(t, tt.impact, result.ImpactOnBudget)
		})
	}
}

func TestWhatIfUnknownCategory(t *testing.T) {
	g, st := newTestGenerator(t, "2025-06-15")
	seedTx(t, st, "u1", "2025-06-05", -300, "food")

	result, err := g.WhatIf(context.Background(), "u1", "yachts", 50)
	require.NoError(t, err)
	assert.Zero(t, result.CurrentMonthlySpending)
	assert.Zero(t, result.MonthlySavings)
}

func TestWhatIfIgnoresSpendingOutsideWindow(t *testing.T) {
	g, st := newTestGenerator(t, "2025-06-15")
	seedTx(t, st, "u1", "2025-03-01", -900, "food")
	seedTx(t, st, "u1", "2025-06-05", -100, "food")

	result, err := g.WhatIf(context.Background(), "u1", "food", 10)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.CurrentMonthlySpending, 1e-9)
}
