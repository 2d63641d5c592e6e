package model

import "time"

// SpendingBenchmark holds anonymized cross-user spending statistics for one
// category and demographic group. Data carries the full percentile spread:
// mean, median, p10, p25, p75, p90, min, max, user_count.
type SpendingBenchmark struct {
	Category       string             `json:"category" firestore:"Category"`
	Demographic    string             `json:"user_demographic" firestore:"Demographic"`
	MedianAmount   float64            `json:"median_amount" firestore:"MedianAmount"`
	AveragePercent float64            `json:"average_percentage" firestore:"AveragePercent"`
	Data           map[string]float64 `json:"benchmark_data" firestore:"Data"`
	UpdatedAt      time.Time          `json:"updated_at" firestore:"UpdatedAt"`
}

// CategoryComparison is a user's standing against peers in one category.
type CategoryComparison struct {
	Category   string  `json:"category"`
	UserAmount float64 `json:"user_amount"`
	PeerMedian float64 `json:"peer_median"`
	PeerMean   float64 `json:"peer_mean"`
	Percentile float64 `json:"percentile"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	PeerLow    float64 `json:"peer_low"`
	PeerHigh   float64 `json:"peer_high"`
}

// PeerComparison is the full cross-category comparison for one user.
type PeerComparison struct {
	OverallPercentile float64              `json:"overall_percentile"`
	OverallStatus     string               `json:"overall_status"`
	Comparisons       []CategoryComparison `json:"comparisons"`
	LastUpdated       time.Time            `json:"last_updated"`
}

// SavingsOpportunity is a peer-derived suggestion to bring a category's
// spend down toward the peer median.
type SavingsOpportunity struct {
	Category                string  `json:"category"`
	CurrentSpending         float64 `json:"current_spending"`
	PeerMedian              float64 `json:"peer_median"`
	PotentialMonthlySavings float64 `json:"potential_monthly_savings"`
	PotentialAnnualSavings  float64 `json:"potential_annual_savings"`
	Recommendation          string  `json:"recommendation"`
}

// UserPreferences controls which background jobs touch a user's data.
type UserPreferences struct {
	UserID              string `json:"user_id" firestore:"UserID"`
	InsightsEnabled     bool   `json:"insights_enabled" firestore:"InsightsEnabled"`
	PeerComparisonOptIn bool   `json:"peer_comparison_opt_in" firestore:"PeerComparisonOptIn"`
}

// DefaultPreferences returns the preferences assumed for a user who has
// never saved any.
func DefaultPreferences(userID string) *UserPreferences {
	return &UserPreferences{
		UserID:              userID,
		InsightsEnabled:     true,
		PeerComparisonOptIn: true,
	}
}
