package service

import (
	"sort"
	"time"

	"github.com/finsight/backend/internal/model"
)

// AggregateDailyBalance collapses a user's transactions into the daily
// cumulative balance series the forecasting models consume. Amounts on the
// same calendar day are summed, days are ordered ascending, and the running
// total is carried forward. Days without transactions do not appear.
func AggregateDailyBalance(txs []*model.Transaction) []model.SeriesPoint {
	if len(txs) == 0 {
		return nil
	}

	totals := make(map[time.Time]float64)
	for _, tx := range txs {
		totals[model.Day(tx.TxDate)] += tx.Amount
	}

	days := make([]time.Time, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	series := make([]model.SeriesPoint, len(days))
	balance := 0.0
	for i, day := range days {
		balance += totals[day]
		series[i] = model.SeriesPoint{Date: day, Balance: balance}
	}
	return series
}

// futureDates returns the horizon consecutive calendar days following the
// last point of the series.
func futureDates(series []model.SeriesPoint, horizon int) []time.Time {
	last := series[len(series)-1].Date
	dates := make([]time.Time, horizon)
	for i := range dates {
		dates[i] = last.AddDate(0, 0, i+1)
	}
	return dates
}
