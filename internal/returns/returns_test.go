package returns

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

func panelOf(t *testing.T, prices map[string][]float64) *types.PricePanel {
	t.Helper()
	var obs []types.Observation
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for asset, ps := range prices {
		for i, p := range ps {
			obs = append(obs, types.Observation{Timestamp: start.AddDate(0, 0, i), Asset: asset, Price: p})
		}
	}
	panel, err := types.NewPricePanel(obs)
	require.NoError(t, err)
	return panel
}

func TestCalculator_SimpleReturns(t *testing.T) {
	panel := panelOf(t, map[string][]float64{"A": {10, 11, 9, 12}})
	c, err := New(types.ReturnSimple)
	require.NoError(t, err)

	s, err := c.Returns(panel, "A")
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.InDelta(t, 0.1, s.Values[0], 1e-12)
	assert.InDelta(t, 9.0/11-1, s.Values[1], 1e-12)
	assert.InDelta(t, 12.0/9-1, s.Values[2], 1e-12)
	assert.True(t, s.Index[0].Equal(panel.Timestamp(1)))
}

func TestCalculator_LogReturnsCompoundBack(t *testing.T) {
	panel := panelOf(t, map[string][]float64{"A": {10, 11, 9, 12}})
	c, err := New(types.ReturnLog)
	require.NoError(t, err)

	w, err := c.Window(panel, []string{"A"}, 0, 3)
	require.NoError(t, err)

	growth := 1.0
	for _, r := range w["A"] {
		growth *= c.Growth(r)
	}
	assert.InDelta(t, 1.2, growth, 1e-12)
}

func TestCalculator_NonFinitePriceIsDataQualityError(t *testing.T) {
	panel := panelOf(t, map[string][]float64{"A": {10, math.Inf(1), 12}})
	c, err := New("")
	require.NoError(t, err)

	_, err = c.Window(panel, []string{"A"}, 0, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDataQuality))

	var dq *types.DataQualityError
	require.True(t, errors.As(err, &dq))
	assert.Equal(t, "A", dq.Asset)
	assert.True(t, dq.Timestamp.Equal(panel.Timestamp(1)))
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	_, err := New("geometric")
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}
