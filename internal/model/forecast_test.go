package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecastPointWireShape(t *testing.T) {
	p := ForecastPoint{
		Date:             time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		PredictedBalance: 1234.5,
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tx_date":"2025-03-15","predicted_balance":1234.5}`, string(b))

	var back ForecastPoint
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Date.Equal(p.Date))
	assert.Equal(t, p.PredictedBalance, back.PredictedBalance)
}

func TestForecastPointUnmarshalRejectsBadDate(t *testing.T) {
	var p ForecastPoint
	err := json.Unmarshal([]byte(`{"tx_date":"15/03/2025","predicted_balance":1}`), &p)
	assert.Error(t, err)
}

func TestDayHelpers(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	stamp := time.Date(2025, 3, 15, 23, 45, 12, 999, loc)

	d := Day(stamp)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), d)

	assert.Equal(t, int64(0), DayOrdinal(time.Unix(0, 0).UTC()))
	assert.Equal(t, int64(1), DayOrdinal(time.Date(1970, 1, 2, 15, 0, 0, 0, time.UTC)))

	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), MonthStart(stamp))
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Greater(t, PriorityLow.Rank(), InsightPriority("bogus").Rank())
}

func TestAnomalyDataPayload(t *testing.T) {
	dup := &Anomaly{
		Type:           AnomalyDuplicateCharge,
		Category:       "food",
		TransactionIDs: []int64{7, 8},
		Dates: []time.Time{
			time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		},
		Amount: 12.5,
	}
	d := dup.Data()
	assert.Equal(t, "duplicate_charge", d["type"])
	assert.Equal(t, []int64{7, 8}, d["transaction_ids"])
	assert.Equal(t, []string{"2025-03-01", "2025-03-03"}, d["dates"])
	assert.Equal(t, 12.5, d["amount"])

	unusual := &Anomaly{
		Type:           AnomalyUnusualAmount,
		Category:       "food",
		TransactionIDs: []int64{9},
		Dates:          []time.Time{time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		Amount:         100,
		Baseline:       17.5,
		Percent:        471.4,
	}
	d = unusual.Data()
	assert.Equal(t, int64(9), d["transaction_id"])
	assert.Equal(t, "2025-03-02", d["date"])
	assert.Equal(t, 17.5, d["average"])
	assert.Equal(t, 471.4, d["deviation"])
}
