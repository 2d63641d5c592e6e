package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/backend/internal/model"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// runStoreSuite exercises the Store contract against a fresh backend per
// subtest.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("transactions", func(t *testing.T) {
		st := open(t)

		tx := &model.Transaction{UserID: "u1", TxDate: date("2025-03-05"), Amount: -20, Label: "food"}
		require.NoError(t, st.CreateTransaction(ctx, tx))
		assert.NotZero(t, tx.ID)

		require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
			UserID: "u1", TxDate: date("2025-03-01"), Amount: 100, Label: "salary", Notes: "march pay",
		}))
		require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
			UserID: "u2", TxDate: date("2025-03-02"), Amount: -5, Label: "food",
		}))

		txs, err := st.ListTransactions(ctx, "u1", nil, nil)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, "salary", txs[0].Label)
		assert.Equal(t, "march pay", txs[0].Notes)
		assert.Equal(t, "food", txs[1].Label)
		assert.True(t, txs[0].TxDate.Before(txs[1].TxDate))
	})

	t.Run("transaction date bounds are inclusive", func(t *testing.T) {
		st := open(t)
		for _, d := range []string{"2025-03-01", "2025-03-02", "2025-03-03", "2025-03-04"} {
			require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
				UserID: "u1", TxDate: date(d), Amount: -1, Label: "food",
			}))
		}

		start, end := date("2025-03-02"), date("2025-03-03")
		txs, err := st.ListTransactions(ctx, "u1", &start, &end)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.True(t, txs[0].TxDate.Equal(start))
		assert.True(t, txs[1].TxDate.Equal(end))
	})

	t.Run("latest transaction date", func(t *testing.T) {
		st := open(t)

		_, err := st.LatestTransactionDate(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)

		for _, d := range []string{"2025-03-03", "2025-03-10", "2025-03-07"} {
			require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
				UserID: "u1", TxDate: date(d), Amount: -1, Label: "food",
			}))
		}
		latest, err := st.LatestTransactionDate(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, latest.Equal(date("2025-03-10")))
	})

	t.Run("budget goals", func(t *testing.T) {
		st := open(t)

		_, err := st.GetBudgetGoal(ctx, "u1", date("2025-03-01"))
		assert.ErrorIs(t, err, ErrNotFound)

		// Month is normalized to its first day on write and lookup.
		require.NoError(t, st.UpsertBudgetGoal(ctx, &model.BudgetGoal{
			UserID: "u1", Month: date("2025-03-15"), Amount: 500,
		}))
		goal, err := st.GetBudgetGoal(ctx, "u1", date("2025-03-20"))
		require.NoError(t, err)
		assert.Equal(t, 500.0, goal.Amount)
		assert.True(t, goal.Month.Equal(date("2025-03-01")))

		// Upsert replaces the amount for the same month.
		require.NoError(t, st.UpsertBudgetGoal(ctx, &model.BudgetGoal{
			UserID: "u1", Month: date("2025-03-01"), Amount: 750,
		}))
		goal, err = st.GetBudgetGoal(ctx, "u1", date("2025-03-01"))
		require.NoError(t, err)
		assert.Equal(t, 750.0, goal.Amount)
	})

	t.Run("list budget goals since", func(t *testing.T) {
		st := open(t)
		for _, month := range []string{"2025-01-01", "2025-02-01", "2025-03-01"} {
			require.NoError(t, st.UpsertBudgetGoal(ctx, &model.BudgetGoal{
				UserID: "u1", Month: date(month), Amount: 100,
			}))
		}

		goals, err := st.ListBudgetGoals(ctx, "u1", date("2025-02-01"))
		require.NoError(t, err)
		require.Len(t, goals, 2)
		assert.True(t, goals[0].Month.Equal(date("2025-02-01")))
		assert.True(t, goals[1].Month.Equal(date("2025-03-01")))
	})

	t.Run("insight ordering and filters", func(t *testing.T) {
		st := open(t)
		seed := []*model.Insight{
			{ID: "low-old", UserID: "u1", Type: model.InsightAchievement, Priority: model.PriorityLow, Title: "a", CreatedAt: ts("2025-03-01T10:00:00Z")},
			{ID: "high", UserID: "u1", Type: model.InsightAnomaly, Priority: model.PriorityHigh, Title: "b", CreatedAt: ts("2025-03-02T10:00:00Z")},
			{ID: "medium-new", UserID: "u1", Type: model.InsightRecommendation, Priority: model.PriorityMedium, Title: "c", CreatedAt: ts("2025-03-03T10:00:00Z")},
			{ID: "medium-old", UserID: "u1", Type: model.InsightRecommendation, Priority: model.PriorityMedium, Title: "d", CreatedAt: ts("2025-03-01T10:00:00Z")},
			{ID: "other-user", UserID: "u2", Type: model.InsightAnomaly, Priority: model.PriorityUrgent, Title: "e", CreatedAt: ts("2025-03-02T10:00:00Z")},
		}
		for _, ins := range seed {
			require.NoError(t, st.CreateInsight(ctx, ins))
		}

		insights, err := st.ListInsights(ctx, "u1", InsightFilter{})
		require.NoError(t, err)
		require.Len(t, insights, 4)
		assert.Equal(t, "high", insights[0].ID)
		assert.Equal(t, "medium-new", insights[1].ID)
		assert.Equal(t, "medium-old", insights[2].ID)
		assert.Equal(t, "low-old", insights[3].ID)

		byType, err := st.ListInsights(ctx, "u1", InsightFilter{Type: model.InsightRecommendation})
		require.NoError(t, err)
		assert.Len(t, byType, 2)

		byPriority, err := st.ListInsights(ctx, "u1", InsightFilter{Priority: model.PriorityHigh})
		require.NoError(t, err)
		require.Len(t, byPriority, 1)
		assert.Equal(t, "high", byPriority[0].ID)

		paged, err := st.ListInsights(ctx, "u1", InsightFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 2)
		assert.Equal(t, "medium-new", paged[0].ID)
		assert.Equal(t, "medium-old", paged[1].ID)
	})

	t.Run("insight flags", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.CreateInsight(ctx, &model.Insight{
			ID: "i1", UserID: "u1", Type: model.InsightAnomaly, Priority: model.PriorityHigh,
			Title: "t", CreatedAt: ts("2025-03-01T10:00:00Z"),
		}))

		// Flagging requires ownership.
		assert.ErrorIs(t, st.MarkInsightRead(ctx, "u2", "i1"), ErrNotFound)
		assert.ErrorIs(t, st.DismissInsight(ctx, "u2", "i1"), ErrNotFound)
		assert.ErrorIs(t, st.MarkInsightRead(ctx, "u1", "missing"), ErrNotFound)

		require.NoError(t, st.MarkInsightRead(ctx, "u1", "i1"))
		unread, err := st.ListInsights(ctx, "u1", InsightFilter{UnreadOnly: true})
		require.NoError(t, err)
		assert.Empty(t, unread)

		require.NoError(t, st.DismissInsight(ctx, "u1", "i1"))
		visible, err := st.ListInsights(ctx, "u1", InsightFilter{})
		require.NoError(t, err)
		assert.Empty(t, visible)

		all, err := st.ListInsights(ctx, "u1", InsightFilter{IncludeDismissed: true})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0].IsRead)
		assert.True(t, all[0].IsDismissed)
	})

	t.Run("insight data payload roundtrip", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.CreateInsight(ctx, &model.Insight{
			ID: "i1", UserID: "u1", Type: model.InsightSavingsOpportunity, Priority: model.PriorityMedium,
			Title: "t", CreatedAt: ts("2025-03-01T10:00:00Z"),
			Data:  map[string]any{"category": "food", "total_spent": 110.0},
		}))

		insights, err := st.ListInsights(ctx, "u1", InsightFilter{})
		require.NoError(t, err)
		require.Len(t, insights, 1)
		assert.Equal(t, "food", insights[0].Data["category"])
		assert.Equal(t, 110.0, insights[0].Data["total_spent"])
	})

	t.Run("has recent insight", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.CreateInsight(ctx, &model.Insight{
			ID: "i1", UserID: "u1", Type: model.InsightRecommendation, Priority: model.PriorityMedium,
			Title: "Set a monthly budget goal", CreatedAt: ts("2025-03-10T10:00:00Z"),
		}))

		found, err := st.HasRecentInsight(ctx, "u1", model.InsightRecommendation, "Set a monthly budget goal", ts("2025-03-08T00:00:00Z"))
		require.NoError(t, err)
		assert.True(t, found)

		found, err = st.HasRecentInsight(ctx, "u1", model.InsightRecommendation, "Set a monthly budget goal", ts("2025-03-11T00:00:00Z"))
		require.NoError(t, err)
		assert.False(t, found)

		found, err = st.HasRecentInsight(ctx, "u1", model.InsightAnomaly, "Set a monthly budget goal", ts("2025-03-08T00:00:00Z"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete insights before", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.CreateInsight(ctx, &model.Insight{
			ID: "old", UserID: "u1", Type: model.InsightAnomaly, Priority: model.PriorityLow,
			Title: "a", CreatedAt: ts("2025-02-01T10:00:00Z"),
		}))
		require.NoError(t, st.CreateInsight(ctx, &model.Insight{
			ID: "new", UserID: "u1", Type: model.InsightAnomaly, Priority: model.PriorityLow,
			Title: "b", CreatedAt: ts("2025-03-10T10:00:00Z"),
		}))

		deleted, err := st.DeleteInsightsBefore(ctx, "u1", ts("2025-03-01T00:00:00Z"))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		remaining, err := st.ListInsights(ctx, "u1", InsightFilter{})
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "new", remaining[0].ID)
	})

	t.Run("health scores", func(t *testing.T) {
		st := open(t)

		_, err := st.LatestHealthScore(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, st.CreateHealthScore(ctx, &model.FinancialHealthScore{
			UserID: "u1", Score: 60,
			Components:   map[string]float64{model.ComponentSavingsRate: 70},
			Trend:        model.TrendStable,
			CalculatedAt: ts("2025-03-01T10:00:00Z"),
		}))
		require.NoError(t, st.CreateHealthScore(ctx, &model.FinancialHealthScore{
			UserID: "u1", Score: 72,
			Components:   map[string]float64{model.ComponentSavingsRate: 90},
			Trend:        model.TrendImproving,
			CalculatedAt: ts("2025-03-08T10:00:00Z"),
		}))

		latest, err := st.LatestHealthScore(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 72.0, latest.Score)
		assert.Equal(t, model.TrendImproving, latest.Trend)
		assert.Equal(t, 90.0, latest.Components[model.ComponentSavingsRate])
	})

	t.Run("benchmarks", func(t *testing.T) {
		st := open(t)

		_, err := st.GetBenchmark(ctx, "food", "all_users")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, st.UpsertBenchmark(ctx, &model.SpendingBenchmark{
			Category: "food", Demographic: "all_users", MedianAmount: 300, AveragePercent: 30,
			Data:      map[string]float64{"median": 300, "p75": 400},
			UpdatedAt: ts("2025-03-01T10:00:00Z"),
		}))
		b, err := st.GetBenchmark(ctx, "food", "all_users")
		require.NoError(t, err)
		assert.Equal(t, 300.0, b.MedianAmount)
		assert.Equal(t, 400.0, b.Data["p75"])

		require.NoError(t, st.UpsertBenchmark(ctx, &model.SpendingBenchmark{
			Category: "food", Demographic: "all_users", MedianAmount: 350, AveragePercent: 35,
			Data:      map[string]float64{"median": 350},
			UpdatedAt: ts("2025-03-02T10:00:00Z"),
		}))
		b, err = st.GetBenchmark(ctx, "food", "all_users")
		require.NoError(t, err)
		assert.Equal(t, 350.0, b.MedianAmount)
	})

	t.Run("active users", func(t *testing.T) {
		st := open(t)
		for _, userID := range []string{"bob", "alice", "bob"} {
			require.NoError(t, st.CreateTransaction(ctx, &model.Transaction{
				UserID: userID, TxDate: date("2025-03-01"), Amount: -1, Label: "food",
			}))
		}

		users, err := st.ListActiveUserIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, users)
	})

	t.Run("user preferences", func(t *testing.T) {
		st := open(t)

		prefs, err := st.GetUserPreferences(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, prefs.InsightsEnabled)
		assert.True(t, prefs.PeerComparisonOptIn)

		require.NoError(t, st.UpsertUserPreferences(ctx, &model.UserPreferences{
			UserID: "u1", InsightsEnabled: false, PeerComparisonOptIn: true,
		}))
		prefs, err = st.GetUserPreferences(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, prefs.InsightsEnabled)
		assert.True(t, prefs.PeerComparisonOptIn)
	})
}
