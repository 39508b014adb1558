package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// RebalancePolicy 再平衡策略接口
type RebalancePolicy interface {
	// Name 策略名称
	Name() string

	// Evaluate 根据当前权重与目标权重判断是否需要再平衡, 需要时返回指令
	Evaluate(ts time.Time, current, target map[string]float64) (types.RebalanceInstruction, bool)

	// Reset 清空运行间的内部状态, 每次回测开始时调用
	Reset()
}

// New 按配置创建再平衡策略
func New(config types.StrategyConfig, costModel cost.CostModel) (RebalancePolicy, error) {
	switch config.Mode {
	case types.RebalanceDrift, "":
		return NewDriftPolicy(config, costModel)
	case types.RebalancePeriodic:
		return NewPeriodicPolicy(config, costModel)
	default:
		return nil, types.NewConfigurationError("rebalance.mode", "unknown mode %q (allowed: drift|periodic)", config.Mode)
	}
}

// weightEpsilon 小于该值的权重变化视为未变化
const weightEpsilon = 1e-12

// buildInstruction 生成把权重重置到目标的指令, 每个权重变化的资产记录一条交易
func buildInstruction(ts time.Time, current, target map[string]float64, costModel cost.CostModel) types.RebalanceInstruction {
	assets := make(map[string]struct{}, len(current)+len(target))
	for a := range target {
		assets[a] = struct{}{}
	}
	for a := range current {
		if a != types.CashAsset {
			assets[a] = struct{}{}
		}
	}
	names := make([]string, 0, len(assets))
	for a := range assets {
		names = append(names, a)
	}
	sort.Strings(names)

	instr := types.RebalanceInstruction{Timestamp: ts, Target: copyWeights(target)}
	for _, asset := range names {
		delta := target[asset] - current[asset]
		if math.Abs(delta) <= weightEpsilon {
			continue
		}
		instr.Trades = append(instr.Trades, types.TradeLogEntry{
			Timestamp:     ts,
			Asset:         asset,
			DeltaWeight:   delta,
			EstimatedCost: costModel.RebalanceCost(delta),
		})
	}
	return instr
}

// maxDrift 目标资产中的最大偏离 |current - target|
func maxDrift(current, target map[string]float64) float64 {
	drift := 0.0
	for asset, w := range target {
		if d := math.Abs(current[asset] - w); d > drift {
			drift = d
		}
	}
	return drift
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// ValidateTargetWeights 校验目标权重: 非负, 和不超过1, 剩余部分为现金
func ValidateTargetWeights(field string, weights map[string]float64) error {
	if len(weights) == 0 {
		return types.NewConfigurationError(field, "at least one asset weight is required")
	}
	sum := 0.0
	for asset, w := range weights {
		if asset == types.CashAsset {
			return types.NewConfigurationError(field, "%s is implied by the residual weight", types.CashAsset)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return types.NewConfigurationError(field, "weight for %s must be a finite non-negative number, got %v", asset, w)
		}
		sum += w
	}
	if sum <= 0 {
		return types.NewConfigurationError(field, "weights must sum to a positive value")
	}
	if sum > 1+1e-9 {
		return types.NewConfigurationError(field, "weights sum to %.6f, must not exceed 1", sum)
	}
	return nil
}
