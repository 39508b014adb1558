package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestNewPricePanel_AlignsOnCommonTimestamps(t *testing.T) {
	obs := []Observation{
		{Timestamp: day(0), Asset: "B", Price: 50},
		{Timestamp: day(1), Asset: "B", Price: 51},
		{Timestamp: day(2), Asset: "B", Price: 52},
		{Timestamp: day(0), Asset: "A", Price: 100},
		{Timestamp: day(2), Asset: "A", Price: 102},
	}

	panel, err := NewPricePanel(obs)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, panel.Assets())
	assert.Equal(t, 2, panel.Len())
	assert.Equal(t, []float64{100, 102}, panel.Prices("A"))
	assert.Equal(t, []float64{50, 52}, panel.Prices("B"))
	assert.True(t, panel.Timestamp(1).Equal(day(2)))
	assert.False(t, panel.Has("C"))
}

func TestNewPricePanel_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		obs  []Observation
	}{
		{"empty", nil},
		{"duplicate timestamp", []Observation{
			{Timestamp: day(0), Asset: "A", Price: 1},
			{Timestamp: day(0), Asset: "A", Price: 2},
		}},
		{"out of order", []Observation{
			{Timestamp: day(1), Asset: "A", Price: 1},
			{Timestamp: day(0), Asset: "A", Price: 2},
		}},
		{"non-positive price", []Observation{
			{Timestamp: day(0), Asset: "A", Price: 0},
		}},
		{"no common timestamps", []Observation{
			{Timestamp: day(0), Asset: "A", Price: 1},
			{Timestamp: day(1), Asset: "B", Price: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPricePanel(tt.obs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataQuality))
		})
	}
}

func TestSeries_AlignedArithmetic(t *testing.T) {
	a := NewSeries([]time.Time{day(0), day(1), day(2)}, []float64{1, 2, 3})
	b := NewSeries([]time.Time{day(1), day(2), day(3)}, []float64{10, 20, 30})

	sum := a.Add(b)
	assert.Equal(t, []float64{1, 12, 23, 30}, sum.Values)
	assert.Len(t, sum.Index, 4)

	prod := a.Mul(b)
	assert.Equal(t, []float64{20, 60}, prod.Values)
	assert.True(t, prod.Index[0].Equal(day(1)))

	assert.Equal(t, []float64{2, 4, 6}, a.Scale(2).Values)
	assert.Equal(t, []float64{1, 1}, a.Diff().Values)
	assert.Equal(t, []float64{1, 2}, a.Lag().Values)
	assert.True(t, a.Lag().Index[0].Equal(day(1)))
	assert.Equal(t, []float64{1, 3, 6}, a.CumSum().Values)
}

func TestPortfolioState_Weights(t *testing.T) {
	s := NewPortfolioState(100, map[string]float64{"A": 0.6, "B": 0.3})
	w := s.Weights()
	assert.InDelta(t, 0.6, w["A"], 1e-12)
	assert.InDelta(t, 0.3, w["B"], 1e-12)
	assert.InDelta(t, 0.1, w[CashAsset], 1e-12)
	assert.InDelta(t, 100, s.TotalValue(), 1e-12)
}

func TestKPIReport_UndefinedMetricsMarshalAsNull(t *testing.T) {
	r := NewKPIReport()
	r.Set(KPITotalReturn, 0.2)
	r.SetUndefined(KPISharpe, "zero deviation")

	v, ok := r.Get(KPITotalReturn)
	assert.True(t, ok)
	assert.Equal(t, 0.2, v)

	v, ok = r.Get(KPISharpe)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v))

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded struct {
		Metrics   map[string]*float64 `json:"metrics"`
		Undefined map[string]string   `json:"undefined"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded.Metrics[KPISharpe])
	require.NotNil(t, decoded.Metrics[KPITotalReturn])
	assert.Equal(t, 0.2, *decoded.Metrics[KPITotalReturn])
	assert.Equal(t, "zero deviation", decoded.Undefined[KPISharpe])
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = NewConfigurationError("window_size", "must be >= 2, got %d", 1)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrDataQuality))
	assert.Contains(t, err.Error(), "window_size")

	err = &InsufficientDataError{Metric: "hist_var", Have: 3, Need: 20}
	assert.True(t, errors.Is(err, ErrInsufficientData))

	var dq *DataQualityError
	err = &DataQualityError{Timestamp: day(0), Asset: "A", Value: math.NaN(), Reason: "non-finite price"}
	require.True(t, errors.As(err, &dq))
	assert.Equal(t, "A", dq.Asset)
}
