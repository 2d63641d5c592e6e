package model

import "time"

// InsightType classifies what kind of finding an insight carries.
type InsightType string

const (
	InsightAnomaly            InsightType = "anomaly"
	InsightSavingsOpportunity InsightType = "savings_opportunity"
	InsightAchievement        InsightType = "achievement"
	InsightPrediction         InsightType = "prediction"
	InsightRecommendation     InsightType = "recommendation"
	InsightComparison         InsightType = "comparison"
)

// InsightPriority orders insights for display; Rank gives the sort order.
type InsightPriority string

const (
	PriorityLow    InsightPriority = "low"
	PriorityMedium InsightPriority = "medium"
	PriorityHigh   InsightPriority = "high"
	PriorityUrgent InsightPriority = "urgent"
)

// Rank maps a priority to an integer for descending sorts. Unknown
// priorities sort below low.
func (p InsightPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Insight is a single generated finding for a user. The engine produces
// insights as plain values; the store owns them afterwards, and the API
// layer flips the read/dismissed flags.
type Insight struct {
	ID          string          `json:"id" firestore:"ID"`
	UserID      string          `json:"user_id" firestore:"UserID"`
	Type        InsightType     `json:"type" firestore:"Type"`
	Priority    InsightPriority `json:"priority" firestore:"Priority"`
	Title       string          `json:"title" firestore:"Title"`
	Description string          `json:"description" firestore:"Description"`
	Data        map[string]any  `json:"data,omitempty" firestore:"Data"`
	ActionURL   string          `json:"action_url,omitempty" firestore:"ActionURL"`
	IsRead      bool            `json:"is_read" firestore:"IsRead"`
	IsDismissed bool            `json:"is_dismissed" firestore:"IsDismissed"`
	CreatedAt   time.Time       `json:"created_at" firestore:"CreatedAt"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty" firestore:"ExpiresAt"`
}

// AnomalyType tags the kind of irregularity a detector scan flagged.
type AnomalyType string

const (
	AnomalyUnusualAmount     AnomalyType = "unusual_amount"
	AnomalyCategorySpike     AnomalyType = "category_spike"
	AnomalyDuplicateCharge   AnomalyType = "duplicate_charge"
	AnomalySubscriptionCreep AnomalyType = "subscription_creep"
)

// Anomaly is a flagged irregularity in a user's recent transactions.
// Anomalies are ephemeral: they are computed fresh on every detection pass
// and consumed immediately to produce insights.
//
// The evidence fields are interpreted per type: Amount/Baseline are the
// outlier amount and category mean for unusual_amount, the recent weekly
// total and typical weekly average for category_spike, and the latest and
// initial charge for subscription_creep. Percent is the deviation or
// increase percentage.
type Anomaly struct {
	Type           AnomalyType
	Category       string
	Title          string
	Description    string
	TransactionIDs []int64
	Dates          []time.Time
	Amount         float64
	Baseline       float64
	Percent        float64
}

// Data flattens the anomaly into the structured payload stored on the
// resulting insight.
func (a *Anomaly) Data() map[string]any {
	d := map[string]any{
		"type":     string(a.Type),
		"category": a.Category,
	}
	if len(a.TransactionIDs) == 1 {
		d["transaction_id"] = a.TransactionIDs[0]
	} else if len(a.TransactionIDs) > 1 {
		d["transaction_ids"] = a.TransactionIDs
	}
	if len(a.Dates) > 0 {
		dates := make([]string, len(a.Dates))
		for i, t := range a.Dates {
			dates[i] = t.Format("2006-01-02")
		}
		if len(dates) == 1 {
			d["date"] = dates[0]
		} else {
			d["dates"] = dates
		}
	}
	switch a.Type {
	case AnomalyUnusualAmount:
		d["amount"] = a.Amount
		d["average"] = a.Baseline
		d["deviation"] = a.Percent
	case AnomalyCategorySpike:
		d["recent_amount"] = a.Amount
		d["typical_amount"] = a.Baseline
		d["increase_percentage"] = a.Percent
	case AnomalyDuplicateCharge:
		d["amount"] = a.Amount
	case AnomalySubscriptionCreep:
		d["current_amount"] = a.Amount
		d["initial_amount"] = a.Baseline
		d["increase_percentage"] = a.Percent
	}
	return d
}
