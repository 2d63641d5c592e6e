package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/backend/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func tx(date string, amount float64, label string) *model.Transaction {
	return &model.Transaction{TxDate: day(date), Amount: amount, Label: label}
}

func TestAggregateDailyBalance(t *testing.T) {
	tests := []struct {
		name string
		txs  []*model.Transaction
		want []model.SeriesPoint
	}{
		{
			name: "empty input",
			txs:  nil,
			want: nil,
		},
		{
			name: "single transaction",
			txs:  []*model.Transaction{tx("2025-03-01", 100, "salary")},
			want: []model.SeriesPoint{{Date: day("2025-03-01"), Balance: 100}},
		},
		{
			name: "same day amounts are summed",
			txs: []*model.Transaction{
				tx("2025-03-01", 100, "salary"),
				tx("2025-03-01", -30, "food"),
			},
			want: []model.SeriesPoint{{Date: day("2025-03-01"), Balance: 70}},
		},
		{
			name: "unordered input sorts chronologically with running total",
			txs: []*model.Transaction{
				tx("2025-03-05", -20, "food"),
				tx("2025-03-01", 100, "salary"),
				tx("2025-03-03", -10, "transport"),
			},
			want: []model.SeriesPoint{
				{Date: day("2025-03-01"), Balance: 100},
				{Date: day("2025-03-03"), Balance: 90},
				{Date: day("2025-03-05"), Balance: 70},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateDailyBalance(tt.txs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregateDailyBalanceGapsImplicit(t *testing.T) {
	txs := []*model.Transaction{
		tx("2025-03-01", 10, "a"),
		tx("2025-03-10", 10, "a"),
	}
	series := AggregateDailyBalance(txs)
	require.Len(t, series, 2)
	assert.Equal(t, day("2025-03-01"), series[0].Date)
	assert.Equal(t, day("2025-03-10"), series[1].Date)
}
