package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/backend/internal/model"
)

// MemoryStore implements Store with in-memory maps. It backs local
// development and the test suite.
type MemoryStore struct {
	mu sync.RWMutex

	nextTxID     int64
	transactions map[int64]*model.Transaction
	goals        map[string]*model.BudgetGoal
	insights     map[string]*model.Insight
	healthScores map[string][]*model.FinancialHealthScore
	benchmarks   map[string]*model.SpendingBenchmark
	preferences  map[string]*model.UserPreferences
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextTxID:     1,
		transactions: make(map[int64]*model.Transaction),
		goals:        make(map[string]*model.BudgetGoal),
		insights:     make(map[string]*model.Insight),
		healthScores: make(map[string][]*model.FinancialHealthScore),
		benchmarks:   make(map[string]*model.SpendingBenchmark),
		preferences:  make(map[string]*model.UserPreferences),
	}
}

func goalKey(userID string, month time.Time) string {
	return userID + "/" + model.MonthStart(month).Format("2006-01")
}

func benchmarkKey(category, demographic string) string {
	return category + "/" + demographic
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.ID == 0 {
		tx.ID = m.nextTxID
		m.nextTxID++
	} else if tx.ID >= m.nextTxID {
		m.nextTxID = tx.ID + 1
	}
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, start, end *time.Time) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Transaction
	for _, tx := range m.transactions {
		if tx.UserID != userID {
			continue
		}
		if start != nil && tx.TxDate.Before(*start) {
			continue
		}
		if end != nil && tx.TxDate.After(*end) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TxDate.Equal(out[j].TxDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].TxDate.Before(out[j].TxDate)
	})
	return out, nil
}

func (m *MemoryStore) LatestTransactionDate(ctx context.Context, userID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	found := false
	for _, tx := range m.transactions {
		if tx.UserID != userID {
			continue
		}
		if !found || tx.TxDate.After(latest) {
			latest = tx.TxDate
			found = true
		}
	}
	if !found {
		return time.Time{}, ErrNotFound
	}
	return latest, nil
}

// Budget goal operations

func (m *MemoryStore) UpsertBudgetGoal(ctx context.Context, goal *model.BudgetGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *goal
	cp.Month = model.MonthStart(goal.Month)
	m.goals[goalKey(goal.UserID, goal.Month)] = &cp
	return nil
}

func (m *MemoryStore) GetBudgetGoal(ctx context.Context, userID string, month time.Time) (*model.BudgetGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	goal, ok := m.goals[goalKey(userID, month)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *goal
	return &cp, nil
}

func (m *MemoryStore) ListBudgetGoals(ctx context.Context, userID string, since time.Time) ([]*model.BudgetGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since = model.MonthStart(since)
	var out []*model.BudgetGoal
	for _, goal := range m.goals {
		if goal.UserID != userID || goal.Month.Before(since) {
			continue
		}
		cp := *goal
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// Insight operations

func (m *MemoryStore) CreateInsight(ctx context.Context, insight *model.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	cp := *insight
	m.insights[insight.ID] = &cp
	return nil
}

func (m *MemoryStore) ListInsights(ctx context.Context, userID string, filter InsightFilter) ([]*model.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Insight
	for _, ins := range m.insights {
		if ins.UserID != userID {
			continue
		}
		if filter.Type != "" && ins.Type != filter.Type {
			continue
		}
		if filter.Priority != "" && ins.Priority != filter.Priority {
			continue
		}
		if filter.UnreadOnly && ins.IsRead {
			continue
		}
		if !filter.IncludeDismissed && ins.IsDismissed {
			continue
		}
		cp := *ins
		out = append(out, &cp)
	}
	sortInsights(out)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) HasRecentInsight(ctx context.Context, userID string, typ model.InsightType, title string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ins := range m.insights {
		if ins.UserID == userID && ins.Type == typ && ins.Title == title && !ins.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) MarkInsightRead(ctx context.Context, userID, insightID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ins, ok := m.insights[insightID]
	if !ok || ins.UserID != userID {
		return ErrNotFound
	}
	ins.IsRead = true
	return nil
}

func (m *MemoryStore) DismissInsight(ctx context.Context, userID, insightID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ins, ok := m.insights[insightID]
	if !ok || ins.UserID != userID {
		return ErrNotFound
	}
	ins.IsDismissed = true
	return nil
}

func (m *MemoryStore) DeleteInsightsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, ins := range m.insights {
		if ins.UserID == userID && ins.CreatedAt.Before(cutoff) {
			delete(m.insights, id)
			deleted++
		}
	}
	return deleted, nil
}

// Health score operations

func (m *MemoryStore) CreateHealthScore(ctx context.Context, score *model.FinancialHealthScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *score
	m.healthScores[score.UserID] = append(m.healthScores[score.UserID], &cp)
	return nil
}

func (m *MemoryStore) LatestHealthScore(ctx context.Context, userID string) (*model.FinancialHealthScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scores := m.healthScores[userID]
	if len(scores) == 0 {
		return nil, ErrNotFound
	}
	latest := scores[0]
	for _, s := range scores[1:] {
		if s.CalculatedAt.After(latest.CalculatedAt) {
			latest = s
		}
	}
	cp := *latest
	return &cp, nil
}

// Benchmark operations

func (m *MemoryStore) UpsertBenchmark(ctx context.Context, benchmark *model.SpendingBenchmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *benchmark
	m.benchmarks[benchmarkKey(benchmark.Category, benchmark.Demographic)] = &cp
	return nil
}

func (m *MemoryStore) GetBenchmark(ctx context.Context, category, demographic string) (*model.SpendingBenchmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.benchmarks[benchmarkKey(category, demographic)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// User operations

func (m *MemoryStore) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, tx := range m.transactions {
		seen[tx.UserID] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) GetUserPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefs, ok := m.preferences[userID]
	if !ok {
		return model.DefaultPreferences(userID), nil
	}
	cp := *prefs
	return &cp, nil
}

func (m *MemoryStore) UpsertUserPreferences(ctx context.Context, prefs *model.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *prefs
	m.preferences[prefs.UserID] = &cp
	return nil
}
