package model

import "time"

// Transaction is a single dated ledger entry. Amount is signed: positive
// values are income, negative values are expenses. Transactions are owned
// by the store; the engine only ever reads them.
type Transaction struct {
	ID        int64     `json:"id" firestore:"ID"`
	UserID    string    `json:"user_id" firestore:"UserID"`
	TxDate    time.Time `json:"tx_date" firestore:"TxDate"`
	Amount    float64   `json:"amount" firestore:"Amount"`
	Label     string    `json:"label" firestore:"Label"`
	Notes     string    `json:"notes,omitempty" firestore:"Notes"`
	Recurring bool      `json:"recurring" firestore:"Recurring"`
	SeriesID  int64     `json:"series_id,omitempty" firestore:"SeriesID"`
}

// IsExpense reports whether the transaction is an outflow.
func (t *Transaction) IsExpense() bool {
	return t.Amount < 0
}

// BudgetGoal is a per-user monthly spending target. Month is the first day
// of the calendar month, normalized to midnight UTC.
type BudgetGoal struct {
	UserID string    `json:"user_id" firestore:"UserID"`
	Month  time.Time `json:"month" firestore:"Month"`
	Amount float64   `json:"amount" firestore:"Amount"`
}

// Day truncates a timestamp to its calendar date in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayOrdinal returns the number of whole days since the Unix epoch for the
// calendar date of t. Used as the staleness component of forecast cache keys.
func DayOrdinal(t time.Time) int64 {
	return Day(t).Unix() / 86400
}

// MonthStart returns the first day of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
