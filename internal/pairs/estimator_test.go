package pairs

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// cointegrated 生成 a = hedge(i)·b 的无噪声价格
func cointegrated(n int, hedge func(i int) float64) ([]float64, []float64) {
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 50 + 5*math.Sin(float64(i)/7) + 0.2*float64(i)
		a[i] = hedge(i) * b[i]
	}
	return a, b
}

func feed(t *testing.T, est SpreadEstimator, a, b []float64) []types.SpreadState {
	t.Helper()
	var out []types.SpreadState
	for i := range a {
		if s, ok := est.Update(day0.AddDate(0, 0, i), a[i], b[i]); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestEstimators_ConvergeToUnitHedge(t *testing.T) {
	a, b := cointegrated(200, func(int) float64 { return 1.0 })

	for _, mode := range []types.EstimatorMode{types.EstimatorRecursive, types.EstimatorRollingOLS} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := types.DefaultPairsConfig()
			cfg.EstimatorMode = mode
			cfg.OLSWindow = 30

			est, err := NewSpreadEstimator(cfg)
			require.NoError(t, err)
			assert.Equal(t, mode, est.Mode())

			states := feed(t, est, a, b)
			require.NotEmpty(t, states)
			last := states[len(states)-1]
			assert.InDelta(t, 1.0, last.HedgeRatio, 1e-6)
			assert.InDelta(t, 0.0, last.Spread, 1e-6)
		})
	}
}

func TestEstimators_TrackHedgeShift(t *testing.T) {
	a, b := cointegrated(240, func(i int) float64 {
		if i < 120 {
			return 1.0
		}
		return 1.5
	})

	for _, mode := range []types.EstimatorMode{types.EstimatorRecursive, types.EstimatorRollingOLS} {
		cfg := types.DefaultPairsConfig()
		cfg.EstimatorMode = mode
		cfg.OLSWindow = 20

		est, err := NewSpreadEstimator(cfg)
		require.NoError(t, err)
		states := feed(t, est, a, b)
		assert.InDelta(t, 1.5, states[len(states)-1].HedgeRatio, 1e-3, string(mode))
	}
}

func TestKalman_NoOutputBeforeSeed(t *testing.T) {
	cfg := types.DefaultPairsConfig()
	cfg.SeedSize = 5
	est, err := NewKalmanEstimator(cfg)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(est.HedgeRatio()))

	a, b := cointegrated(6, func(int) float64 { return 2.0 })
	for i := 0; i < 4; i++ {
		_, ok := est.Update(day0.AddDate(0, 0, i), a[i], b[i])
		assert.False(t, ok, "step %d", i)
	}
	s, ok := est.Update(day0.AddDate(0, 0, 4), a[4], b[4])
	require.True(t, ok)
	assert.InDelta(t, 2.0, s.HedgeRatio, 1e-12)
	assert.Equal(t, day0.AddDate(0, 0, 4), s.Timestamp)
	assert.Equal(t, cfg.InitialCovariance, s.HedgeVariance)
}

func TestRollingOLS_WaitsForFullWindow(t *testing.T) {
	cfg := types.DefaultPairsConfig()
	cfg.EstimatorMode = types.EstimatorRollingOLS
	cfg.OLSWindow = 10

	est, err := NewSpreadEstimator(cfg)
	require.NoError(t, err)
	a, b := cointegrated(25, func(int) float64 { return 0.8 })
	states := feed(t, est, a, b)
	assert.Len(t, states, 16)
	assert.InDelta(t, 0.0, states[0].HedgeVariance, 1e-12)
}

func TestEstimators_LogPrices(t *testing.T) {
	cfg := types.DefaultPairsConfig()
	cfg.UseLogPrices = true
	est, err := NewSpreadEstimator(cfg)
	require.NoError(t, err)

	a, b := cointegrated(40, func(int) float64 { return 1.0 })
	states := feed(t, est, a, b)
	last := states[len(states)-1]
	assert.InDelta(t, 1.0, last.HedgeRatio, 1e-9)
	assert.InDelta(t, 0.0, last.Spread, 1e-9)
}

func TestEstimators_SpreadVariance(t *testing.T) {
	cfg := types.DefaultPairsConfig()
	cfg.EstimatorMode = types.EstimatorRollingOLS
	cfg.OLSWindow = 5
	cfg.SpreadLookback = 3

	est, err := NewSpreadEstimator(cfg)
	require.NoError(t, err)

	// b 恒定, 价差为 a 减去窗口均值
	b := []float64{10, 10, 10, 10, 10, 10, 10}
	a := []float64{10, 10, 10, 10, 10, 10, 10}
	states := feed(t, est, a, b)
	require.Len(t, states, 3)
	for _, s := range states {
		assert.InDelta(t, 0.0, s.SpreadVariance, 1e-18)
	}
}

func TestNewSpreadEstimator_InvalidConfig(t *testing.T) {
	cases := map[string]func(*types.PairsConfig){
		"unknown mode":      func(c *types.PairsConfig) { c.EstimatorMode = "particle" },
		"lookback":          func(c *types.PairsConfig) { c.SpreadLookback = 1 },
		"seed":              func(c *types.PairsConfig) { c.SeedSize = 0 },
		"observation noise": func(c *types.PairsConfig) { c.ObservationVariance = 0 },
		"ols window": func(c *types.PairsConfig) {
			c.EstimatorMode = types.EstimatorRollingOLS
			c.OLSWindow = 1
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := types.DefaultPairsConfig()
			mutate(&cfg)
			_, err := NewSpreadEstimator(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConfiguration))
		})
	}
}

func TestRolling_Order(t *testing.T) {
	r := newRolling(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.Push(v)
	}
	assert.True(t, r.Full())
	assert.Equal(t, []float64{3, 4, 5}, r.Values())

	mean, std := r.MeanStd()
	assert.InDelta(t, 4.0, mean, 1e-12)
	assert.InDelta(t, 1.0, std, 1e-12)
}
