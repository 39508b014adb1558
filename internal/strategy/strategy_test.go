package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

var ts = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestDriftPolicy_TriggersAboveThreshold(t *testing.T) {
	p, err := NewDriftPolicy(types.StrategyConfig{DriftThreshold: 0.05}, cost.NewFlatCostModel(types.CostConfig{CostRate: 0.01}))
	require.NoError(t, err)

	target := map[string]float64{"A": 0.6, "B": 0.4}
	current := map[string]float64{"A": 0.7, "B": 0.3, types.CashAsset: 0}

	instr, ok := p.Evaluate(ts, current, target)
	require.True(t, ok)
	require.Len(t, instr.Trades, 2)

	assert.Equal(t, "A", instr.Trades[0].Asset)
	assert.InDelta(t, -0.1, instr.Trades[0].DeltaWeight, 1e-12)
	assert.InDelta(t, 0.001, instr.Trades[0].EstimatedCost, 1e-12)
	assert.Equal(t, "B", instr.Trades[1].Asset)
	assert.InDelta(t, 0.1, instr.Trades[1].DeltaWeight, 1e-12)
	assert.InDelta(t, 0.002, instr.TotalCost(), 1e-12)
	assert.Equal(t, target, instr.Target)
}

func TestDriftPolicy_NoOpWithinThreshold(t *testing.T) {
	p, err := NewDriftPolicy(types.StrategyConfig{DriftThreshold: 0.05}, nil)
	require.NoError(t, err)

	_, ok := p.Evaluate(ts, map[string]float64{"A": 0.63, "B": 0.37}, map[string]float64{"A": 0.6, "B": 0.4})
	assert.False(t, ok)

	// 恰好等于阈值不触发
	p, err = NewDriftPolicy(types.StrategyConfig{DriftThreshold: 0.25}, nil)
	require.NoError(t, err)
	_, ok = p.Evaluate(ts, map[string]float64{"A": 0.75, "B": 0.25}, map[string]float64{"A": 0.5, "B": 0.5})
	assert.False(t, ok)
}

func TestDriftPolicy_Idempotent(t *testing.T) {
	p, err := NewDriftPolicy(types.StrategyConfig{DriftThreshold: 0.01}, cost.NewFlatCostModel(types.CostConfig{CostRate: 0.001}))
	require.NoError(t, err)

	target := map[string]float64{"A": 0.5, "B": 0.5}
	current := map[string]float64{"A": 0.8, "B": 0.2}

	instr, ok := p.Evaluate(ts, current, target)
	require.True(t, ok)
	require.NotEmpty(t, instr.Trades)

	// 执行后权重等于目标, 再次调用不产生交易
	_, ok = p.Evaluate(ts, instr.Target, target)
	assert.False(t, ok)
}

func TestDriftPolicy_SellsAssetsOutsideTarget(t *testing.T) {
	p, err := NewDriftPolicy(types.StrategyConfig{DriftThreshold: 0.05}, nil)
	require.NoError(t, err)

	instr, ok := p.Evaluate(ts, map[string]float64{"A": 0.5, "C": 0.5}, map[string]float64{"A": 1.0})
	require.True(t, ok)
	require.Len(t, instr.Trades, 2)
	assert.Equal(t, "C", instr.Trades[1].Asset)
	assert.InDelta(t, -0.5, instr.Trades[1].DeltaWeight, 1e-12)
}

func TestPeriodicPolicy_Interval(t *testing.T) {
	p, err := NewPeriodicPolicy(types.StrategyConfig{Interval: 3}, nil)
	require.NoError(t, err)

	target := map[string]float64{"A": 0.5, "B": 0.5}
	current := map[string]float64{"A": 0.51, "B": 0.49}

	var fired []bool
	for i := 0; i < 6; i++ {
		_, ok := p.Evaluate(ts, current, target)
		fired = append(fired, ok)
	}
	assert.Equal(t, []bool{false, false, true, false, false, true}, fired)
}

func TestPeriodicPolicy_ResetRestartsCount(t *testing.T) {
	p, err := NewPeriodicPolicy(types.StrategyConfig{Interval: 3}, nil)
	require.NoError(t, err)

	target := map[string]float64{"A": 0.5, "B": 0.5}
	current := map[string]float64{"A": 0.51, "B": 0.49}

	p.Evaluate(ts, current, target)
	p.Evaluate(ts, current, target)
	p.Reset()

	var fired []bool
	for i := 0; i < 3; i++ {
		_, ok := p.Evaluate(ts, current, target)
		fired = append(fired, ok)
	}
	assert.Equal(t, []bool{false, false, true}, fired)
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(types.StrategyConfig{Mode: "valuation"}, nil)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestValidateTargetWeights(t *testing.T) {
	assert.NoError(t, ValidateTargetWeights("w", map[string]float64{"A": 0.5, "B": 0.4}))
	assert.Error(t, ValidateTargetWeights("w", map[string]float64{"A": 0.7, "B": 0.4}))
	assert.Error(t, ValidateTargetWeights("w", map[string]float64{"A": -0.1, "B": 0.4}))
	assert.Error(t, ValidateTargetWeights("w", map[string]float64{types.CashAsset: 0.1}))
	assert.Error(t, ValidateTargetWeights("w", nil))
}
