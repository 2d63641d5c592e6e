package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/finsight/backend/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// InsightFilter narrows and pages ListInsights results. Results are always
// ordered by priority descending, then creation time descending.
type InsightFilter struct {
	Type             model.InsightType
	Priority         model.InsightPriority
	UnreadOnly       bool
	IncludeDismissed bool
	Limit            int
	Offset           int
}

// sortInsights orders insights by priority descending, then creation time
// descending. Backends without a native priority ordering call this after
// fetching.
func sortInsights(insights []*model.Insight) {
	sort.Slice(insights, func(i, j int) bool {
		pi, pj := insights[i].Priority.Rank(), insights[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return insights[i].CreatedAt.After(insights[j].CreatedAt)
	})
}

// Store defines every persistence operation used by the engine and its
// surrounding plumbing. The engine treats the transaction feed as read-only
// and hands every entity it produces to the store as a plain value.
type Store interface {
	// Transaction feed
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	// ListTransactions returns the user's transactions ordered by date
	// ascending. Either bound may be nil; bounds are inclusive.
	ListTransactions(ctx context.Context, userID string, start, end *time.Time) ([]*model.Transaction, error)
	// LatestTransactionDate returns the most recent transaction date for
	// the user, or ErrNotFound when they have none.
	LatestTransactionDate(ctx context.Context, userID string) (time.Time, error)

	// Budget goals
	UpsertBudgetGoal(ctx context.Context, goal *model.BudgetGoal) error
	GetBudgetGoal(ctx context.Context, userID string, month time.Time) (*model.BudgetGoal, error)
	// ListBudgetGoals returns goals with Month >= since, ascending by month.
	ListBudgetGoals(ctx context.Context, userID string, since time.Time) ([]*model.BudgetGoal, error)

	// Insights
	CreateInsight(ctx context.Context, insight *model.Insight) error
	ListInsights(ctx context.Context, userID string, filter InsightFilter) ([]*model.Insight, error)
	// HasRecentInsight reports whether an insight with the same type and
	// title was created for the user at or after since.
	HasRecentInsight(ctx context.Context, userID string, typ model.InsightType, title string, since time.Time) (bool, error)
	MarkInsightRead(ctx context.Context, userID, insightID string) error
	DismissInsight(ctx context.Context, userID, insightID string) error
	// DeleteInsightsBefore prunes insights created before cutoff and
	// returns how many were removed.
	DeleteInsightsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// Health scores
	CreateHealthScore(ctx context.Context, score *model.FinancialHealthScore) error
	LatestHealthScore(ctx context.Context, userID string) (*model.FinancialHealthScore, error)

	// Peer benchmarks
	UpsertBenchmark(ctx context.Context, benchmark *model.SpendingBenchmark) error
	GetBenchmark(ctx context.Context, category, demographic string) (*model.SpendingBenchmark, error)

	// Users and preferences. Active users are the distinct owners of at
	// least one transaction; identity itself lives outside this service.
	ListActiveUserIDs(ctx context.Context) ([]string, error)
	GetUserPreferences(ctx context.Context, userID string) (*model.UserPreferences, error)
	UpsertUserPreferences(ctx context.Context, prefs *model.UserPreferences) error
}
