package strategy

import (
	"math"
	"time"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// DriftPolicy 偏离阈值再平衡策略
// 任一资产 |当前权重 - 目标权重| 超过阈值时, 把全部权重重置为目标
type DriftPolicy struct {
	name      string
	threshold float64
	costModel cost.CostModel
}

// NewDriftPolicy 创建偏离阈值策略
func NewDriftPolicy(config types.StrategyConfig, costModel cost.CostModel) (*DriftPolicy, error) {
	if config.DriftThreshold < 0 || math.IsNaN(config.DriftThreshold) {
		return nil, types.NewConfigurationError("rebalance.drift_threshold", "must be >= 0, got %v", config.DriftThreshold)
	}
	if costModel == nil {
		costModel = cost.NewZeroCostModel()
	}
	return &DriftPolicy{
		name:      config.Name,
		threshold: config.DriftThreshold,
		costModel: costModel,
	}, nil
}

// Name 返回策略名称
func (p *DriftPolicy) Name() string {
	if p.name != "" {
		return p.name
	}
	return "DriftCheck"
}

// Threshold 偏离阈值
func (p *DriftPolicy) Threshold() float64 {
	return p.threshold
}

// Reset 无状态, 什么都不做
func (p *DriftPolicy) Reset() {}

// Evaluate 最大偏离超过阈值时返回再平衡指令, 否则不做任何操作
func (p *DriftPolicy) Evaluate(ts time.Time, current, target map[string]float64) (types.RebalanceInstruction, bool) {
	if maxDrift(current, target) <= p.threshold {
		return types.RebalanceInstruction{}, false
	}
	instr := buildInstruction(ts, current, target, p.costModel)
	if len(instr.Trades) == 0 {
		return types.RebalanceInstruction{}, false
	}
	return instr, true
}
