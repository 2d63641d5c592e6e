package model

import "time"

// Health score component keys.
const (
	ComponentBudgetAdherence     = "budget_adherence"
	ComponentSpendingConsistency = "spending_consistency"
	ComponentSavingsRate         = "savings_rate"
	ComponentCategoryBalance     = "category_balance"
)

// Health score trends, derived by comparing against the previous stored
// score with a ±2 point dead zone.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// FinancialHealthScore is the composite 0-100 score with its four weighted
// sub-scores. One is produced per generation cycle.
type FinancialHealthScore struct {
	UserID       string             `json:"user_id" firestore:"UserID"`
	Score        float64            `json:"score" firestore:"Score"`
	Components   map[string]float64 `json:"components" firestore:"Components"`
	Trend        string             `json:"trend" firestore:"Trend"`
	CalculatedAt time.Time          `json:"calculated_at" firestore:"CalculatedAt"`
}
