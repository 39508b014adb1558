// Package pairs 配对交易: 价差估计, Z分数信号与配对回测
package pairs

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// SpreadEstimator 价差估计器接口, 递归滤波与滚动OLS共用
type SpreadEstimator interface {
	// Update 输入一对价格, 未完成初始化时返回 false
	Update(ts time.Time, priceA, priceB float64) (types.SpreadState, bool)
	Mode() types.EstimatorMode
}

// NewSpreadEstimator 按配置创建估计器
func NewSpreadEstimator(config types.PairsConfig) (SpreadEstimator, error) {
	if config.SpreadLookback < 2 {
		return nil, types.NewConfigurationError("spread_lookback", "must be >= 2, got %d", config.SpreadLookback)
	}
	switch config.EstimatorMode {
	case types.EstimatorRecursive, "":
		return NewKalmanEstimator(config)
	case types.EstimatorRollingOLS:
		return NewRollingOLSEstimator(config)
	default:
		return nil, types.NewConfigurationError("estimator_mode", "unknown mode %q", config.EstimatorMode)
	}
}

// rolling 固定容量的环形缓冲区
type rolling struct {
	buf  []float64
	next int
	full bool
}

func newRolling(size int) *rolling {
	return &rolling{buf: make([]float64, size)}
}

func (r *rolling) Push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *rolling) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *rolling) Full() bool {
	return r.full
}

// Values 按时间顺序返回缓冲区内容
func (r *rolling) Values() []float64 {
	if !r.full {
		out := make([]float64, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]float64, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// MeanStd 样本均值与样本标准差, 少于2个点时标准差为NaN
func (r *rolling) MeanStd() (float64, float64) {
	vals := r.Values()
	switch len(vals) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return vals[0], math.NaN()
	}
	return stat.MeanStdDev(vals, nil)
}

// spreadBase 两种估计器共享的价格变换与价差方差跟踪
type spreadBase struct {
	useLog  bool
	spreads *rolling
}

func newSpreadBase(config types.PairsConfig) spreadBase {
	return spreadBase{useLog: config.UseLogPrices, spreads: newRolling(config.SpreadLookback)}
}

func (b *spreadBase) inputs(priceA, priceB float64) (float64, float64) {
	if b.useLog {
		return math.Log(priceA), math.Log(priceB)
	}
	return priceA, priceB
}

func (b *spreadBase) emit(ts time.Time, hedge, a, x, hedgeVar float64) types.SpreadState {
	spread := a - hedge*x
	b.spreads.Push(spread)
	variance := 0.0
	if b.spreads.Len() >= 2 {
		_, std := b.spreads.MeanStd()
		variance = std * std
	}
	return types.SpreadState{
		Timestamp:      ts,
		HedgeRatio:     hedge,
		Spread:         spread,
		SpreadVariance: variance,
		HedgeVariance:  hedgeVar,
	}
}

// olsThroughOrigin 过原点回归 a = beta·b
func olsThroughOrigin(a, b []float64) float64 {
	_, beta := stat.LinearRegression(b, a, nil, true)
	return beta
}
