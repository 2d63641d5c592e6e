package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/finsight/backend/internal/model"
)

// FirestoreStore implements Store using Firestore. Entities live in
// top-level collections keyed by natural IDs and filtered on the UserID
// field; transaction document IDs are the decimal form of the numeric ID.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// Transaction operations

func (s *FirestoreStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == 0 {
		tx.ID = time.Now().UnixNano()
	}
	_, err := s.client.Collection("transactions").Doc(strconv.FormatInt(tx.ID, 10)).Set(ctx, tx)
	return err
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID string, start, end *time.Time) ([]*model.Transaction, error) {
	query := s.client.Collection("transactions").Where("UserID", "==", userID)
	if start != nil {
		query = query.Where("TxDate", ">=", *start)
	}
	if end != nil {
		query = query.Where("TxDate", "<=", *end)
	}
	query = query.OrderBy("TxDate", firestore.Asc)

	var out []*model.Transaction
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
		var tx model.Transaction
		if err := doc.DataTo(&tx); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

func (s *FirestoreStore) LatestTransactionDate(ctx context.Context, userID string) (time.Time, error) {
	iter := s.client.Collection("transactions").
		Where("UserID", "==", userID).
		OrderBy("TxDate", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest transaction: %w", err)
	}
	var tx model.Transaction
	if err := doc.DataTo(&tx); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return tx.TxDate, nil
}

// Budget goal operations

func (s *FirestoreStore) UpsertBudgetGoal(ctx context.Context, goal *model.BudgetGoal) error {
	g := *goal
	g.Month = model.MonthStart(goal.Month)
	docID := g.UserID + "_" + g.Month.Format("2006-01")
	_, err := s.client.Collection("budgetGoals").Doc(docID).Set(ctx, &g)
	return err
}

func (s *FirestoreStore) GetBudgetGoal(ctx context.Context, userID string, month time.Time) (*model.BudgetGoal, error) {
	docID := userID + "_" + model.MonthStart(month).Format("2006-01")
	doc, err := s.client.Collection("budgetGoals").Doc(docID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get budget goal: %w", err)
	}
	var goal model.BudgetGoal
	if err := doc.DataTo(&goal); err != nil {
		return nil, fmt.Errorf("failed to parse budget goal: %w", err)
	}
	return &goal, nil
}

func (s *FirestoreStore) ListBudgetGoals(ctx context.Context, userID string, since time.Time) ([]*model.BudgetGoal, error) {
	iter := s.client.Collection("budgetGoals").
		Where("UserID", "==", userID).
		Where("Month", ">=", model.MonthStart(since)).
		OrderBy("Month", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.BudgetGoal
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list budget goals: %w", err)
		}
		var goal model.BudgetGoal
		if err := doc.DataTo(&goal); err != nil {
			return nil, fmt.Errorf("failed to parse budget goal: %w", err)
		}
		out = append(out, &goal)
	}
	return out, nil
}

// Insight operations

func (s *FirestoreStore) CreateInsight(ctx context.Context, insight *model.Insight) error {
	if insight.ID == "" {
		insight.ID = s.client.Collection("insights").NewDoc().ID
	}
	_, err := s.client.Collection("insights").Doc(insight.ID).Set(ctx, insight)
	return err
}

func (s *FirestoreStore) ListInsights(ctx context.Context, userID string, filter InsightFilter) ([]*model.Insight, error) {
	query := s.client.Collection("insights").Where("UserID", "==", userID)
	if filter.Type != "" {
		query = query.Where("Type", "==", string(filter.Type))
	}
	if filter.Priority != "" {
		query = query.Where("Priority", "==", string(filter.Priority))
	}
	if filter.UnreadOnly {
		query = query.Where("IsRead", "==", false)
	}
	if !filter.IncludeDismissed {
		query = query.Where("IsDismissed", "==", false)
	}

	// Priority is stored as a string, so the priority-desc ordering is
	// applied client-side after fetching.
	var out []*model.Insight
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list insights: %w", err)
		}
		var ins model.Insight
		if err := doc.DataTo(&ins); err != nil {
			return nil, fmt.Errorf("failed to parse insight: %w", err)
		}
		out = append(out, &ins)
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

func (s *FirestoreStore) HasRecentInsight(ctx context.Context, userID string, typ model.InsightType, title string, since time.Time) (bool, error) {
	iter := s.client.Collection("insights").
		Where("UserID", "==", userID).
		Where("Type", "==", string(typ)).
		Where("Title", "==", title).
		Where("CreatedAt", ">=", since).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query recent insights: %w", err)
	}
	return true, nil
}

func (s *FirestoreStore) MarkInsightRead(ctx context.Context, userID, insightID string) error {
	return s.updateOwnedInsight(ctx, userID, insightID, []firestore.Update{{Path: "IsRead", Value: true}})
}

func (s *FirestoreStore) DismissInsight(ctx context.Context, userID, insightID string) error {
	return s.updateOwnedInsight(ctx, userID, insightID, []firestore.Update{{Path: "IsDismissed", Value: true}})
}

func (s *FirestoreStore) updateOwnedInsight(ctx context.Context, userID, insightID string, updates []firestore.Update) error {
	ref := s.client.Collection("insights").Doc(insightID)
	doc, err := ref.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get insight: %w", err)
	}
	owner, _ := doc.Data()["UserID"].(string)
	if owner != userID {
		return ErrNotFound
	}
	_, err = ref.Update(ctx, updates)
	return err
}

func (s *FirestoreStore) DeleteInsightsBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	iter := s.client.Collection("insights").
		Where("UserID", "==", userID).
		Where("CreatedAt", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to list stale insights: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("failed to delete insight: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// Health score operations

func (s *FirestoreStore) CreateHealthScore(ctx context.Context, score *model.FinancialHealthScore) error {
	_, _, err := s.client.Collection("healthScores").Add(ctx, score)
	return err
}

func (s *FirestoreStore) LatestHealthScore(ctx context.Context, userID string) (*model.FinancialHealthScore, error) {
	iter := s.client.Collection("healthScores").
		Where("UserID", "==", userID).
		OrderBy("CalculatedAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query health scores: %w", err)
	}
	var score model.FinancialHealthScore
	if err := doc.DataTo(&score); err != nil {
		return nil, fmt.Errorf("failed to parse health score: %w", err)
	}
	return &score, nil
}

// Benchmark operations

func (s *FirestoreStore) UpsertBenchmark(ctx context.Context, benchmark *model.SpendingBenchmark) error {
	docID := benchmark.Category + "_" + benchmark.Demographic
	_, err := s.client.Collection("spendingBenchmarks").Doc(docID).Set(ctx, benchmark)
	return err
}

func (s *FirestoreStore) GetBenchmark(ctx context.Context, category, demographic string) (*model.SpendingBenchmark, error) {
	doc, err := s.client.Collection("spendingBenchmarks").Doc(category + "_" + demographic).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get benchmark: %w", err)
	}
	var b model.SpendingBenchmark
	if err := doc.DataTo(&b); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark: %w", err)
	}
	return &b, nil
}

// User operations

func (s *FirestoreStore) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	iter := s.client.Collection("transactions").Select("UserID").Documents(ctx)
	defer iter.Stop()

	seen := make(map[string]bool)
	var out []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan users: %w", err)
		}
		id, _ := doc.Data()["UserID"].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *FirestoreStore) GetUserPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	doc, err := s.client.Collection("userPreferences").Doc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return model.DefaultPreferences(userID), nil
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	var prefs model.UserPreferences
	if err := doc.DataTo(&prefs); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return &prefs, nil
}

func (s *FirestoreStore) UpsertUserPreferences(ctx context.Context, prefs *model.UserPreferences) error {
	_, err := s.client.Collection("userPreferences").Doc(prefs.UserID).Set(ctx, prefs)
	return err
}
