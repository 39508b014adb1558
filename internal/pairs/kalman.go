package pairs

import (
	"math"
	"time"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// KalmanEstimator 递归估计对冲比例
// 状态方程 beta[t] = beta[t-1] + w, 观测方程 a[t] = beta[t]·b[t] + v
type KalmanEstimator struct {
	spreadBase

	seedSize int
	q        float64 // 过程噪声方差
	r        float64 // 观测噪声方差
	p0       float64

	seedA, seedB []float64
	seeded       bool
	beta         float64
	p            float64
}

// NewKalmanEstimator 创建递归估计器
func NewKalmanEstimator(config types.PairsConfig) (*KalmanEstimator, error) {
	if config.SeedSize < 1 {
		return nil, types.NewConfigurationError("seed_size", "must be >= 1, got %d", config.SeedSize)
	}
	if config.ProcessVariance < 0 || math.IsNaN(config.ProcessVariance) {
		return nil, types.NewConfigurationError("process_variance", "must be >= 0, got %v", config.ProcessVariance)
	}
	if !(config.ObservationVariance > 0) {
		return nil, types.NewConfigurationError("observation_variance", "must be > 0, got %v", config.ObservationVariance)
	}
	if !(config.InitialCovariance > 0) {
		return nil, types.NewConfigurationError("initial_covariance", "must be > 0, got %v", config.InitialCovariance)
	}
	if config.SpreadLookback < 2 {
		return nil, types.NewConfigurationError("spread_lookback", "must be >= 2, got %d", config.SpreadLookback)
	}
	return &KalmanEstimator{
		spreadBase: newSpreadBase(config),
		seedSize:   config.SeedSize,
		q:          config.ProcessVariance,
		r:          config.ObservationVariance,
		p0:         config.InitialCovariance,
		seedA:      make([]float64, 0, config.SeedSize),
		seedB:      make([]float64, 0, config.SeedSize),
	}, nil
}

// Mode 估计模式
func (k *KalmanEstimator) Mode() types.EstimatorMode {
	return types.EstimatorRecursive
}

// HedgeRatio 当前对冲比例, 未初始化时为 NaN
func (k *KalmanEstimator) HedgeRatio() float64 {
	if !k.seeded {
		return math.NaN()
	}
	return k.beta
}

// Update 预测-校正一步
func (k *KalmanEstimator) Update(ts time.Time, priceA, priceB float64) (types.SpreadState, bool) {
	a, b := k.inputs(priceA, priceB)

	if !k.seeded {
		k.seedA = append(k.seedA, a)
		k.seedB = append(k.seedB, b)
		if len(k.seedA) < k.seedSize {
			return types.SpreadState{}, false
		}
		beta := olsThroughOrigin(k.seedA, k.seedB)
		if math.IsNaN(beta) || math.IsInf(beta, 0) {
			// 种子样本退化 (b 全为0), 丢弃最早一个继续收集
			k.seedA = k.seedA[1:]
			k.seedB = k.seedB[1:]
			return types.SpreadState{}, false
		}
		k.beta = beta
		k.p = k.p0
		k.seeded = true
		k.seedA, k.seedB = nil, nil
		return k.emit(ts, k.beta, a, b, k.p), true
	}

	// 预测
	k.p += k.q

	// 校正
	s := b*b*k.p + k.r
	gain := k.p * b / s
	k.beta += gain * (a - k.beta*b)
	k.p = (1 - gain*b) * k.p

	return k.emit(ts, k.beta, a, b, k.p), true
}
