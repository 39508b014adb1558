package pairs

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// RollingOLSEstimator 在固定尾部窗口上重新回归对冲比例
type RollingOLSEstimator struct {
	spreadBase

	as, bs *rolling
}

// NewRollingOLSEstimator 创建滚动OLS估计器
func NewRollingOLSEstimator(config types.PairsConfig) (*RollingOLSEstimator, error) {
	if config.OLSWindow < 2 {
		return nil, types.NewConfigurationError("ols_window", "must be >= 2, got %d", config.OLSWindow)
	}
	if config.SpreadLookback < 2 {
		return nil, types.NewConfigurationError("spread_lookback", "must be >= 2, got %d", config.SpreadLookback)
	}
	return &RollingOLSEstimator{
		spreadBase: newSpreadBase(config),
		as:         newRolling(config.OLSWindow),
		bs:         newRolling(config.OLSWindow),
	}, nil
}

// Mode 估计模式
func (e *RollingOLSEstimator) Mode() types.EstimatorMode {
	return types.EstimatorRollingOLS
}

// Update 窗口填满后每步重新回归
func (e *RollingOLSEstimator) Update(ts time.Time, priceA, priceB float64) (types.SpreadState, bool) {
	a, b := e.inputs(priceA, priceB)
	e.as.Push(a)
	e.bs.Push(b)
	if !e.as.Full() {
		return types.SpreadState{}, false
	}

	ya, xb := e.as.Values(), e.bs.Values()
	beta := olsThroughOrigin(ya, xb)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return types.SpreadState{}, false
	}
	return e.emit(ts, beta, a, b, slopeVariance(ya, xb, beta)), true
}

// slopeVariance 斜率估计的方差 s²/Σx²
func slopeVariance(a, b []float64, beta float64) float64 {
	if len(a) < 2 {
		return math.NaN()
	}
	resid := make([]float64, len(a))
	for i := range a {
		resid[i] = a[i] - beta*b[i]
	}
	sxx := floats.Dot(b, b)
	if sxx == 0 {
		return math.NaN()
	}
	return floats.Dot(resid, resid) / float64(len(a)-1) / sxx
}
