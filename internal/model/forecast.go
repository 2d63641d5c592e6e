package model

import (
	"encoding/json"
	"time"
)

// SeriesPoint is one entry of the daily cumulative balance series: the
// running signed balance as of the end of Date. Only dates with at least
// one transaction appear in a series; gaps are implicit.
type SeriesPoint struct {
	Date    time.Time
	Balance float64
}

// ForecastPoint is a single projected balance for a future calendar day.
type ForecastPoint struct {
	Date             time.Time
	PredictedBalance float64
}

// forecastPointJSON is the wire shape consumed by the existing UI. The
// literal field names must not change.
type forecastPointJSON struct {
	TxDate           string  `json:"tx_date"`
	PredictedBalance float64 `json:"predicted_balance"`
}

func (p ForecastPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(forecastPointJSON{
		TxDate:           p.Date.Format("2006-01-02"),
		PredictedBalance: p.PredictedBalance,
	})
}

func (p *ForecastPoint) UnmarshalJSON(data []byte) error {
	var raw forecastPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.Parse("2006-01-02", raw.TxDate)
	if err != nil {
		return err
	}
	p.Date = d
	p.PredictedBalance = raw.PredictedBalance
	return nil
}
