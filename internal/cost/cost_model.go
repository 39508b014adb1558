package cost

import (
	"math"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// CostModel 成本模型接口
type CostModel interface {
	// RebalanceCost 权重变动的估计成本 (组合市值占比)
	RebalanceCost(deltaWeight float64) float64

	// PairTradeCost 配对交易每次平仓的固定成本
	PairTradeCost() float64
}

// FlatCostModel 固定费率成本模型
type FlatCostModel struct {
	CostRate  float64 // 再平衡成本率
	TradeCost float64 // 配对平仓成本
}

// NewFlatCostModel 创建固定费率成本模型
func NewFlatCostModel(config types.CostConfig) *FlatCostModel {
	return &FlatCostModel{
		CostRate:  config.CostRate,
		TradeCost: config.PairTradeCost,
	}
}

// NewZeroCostModel 创建零成本模型 (用于测试)
func NewZeroCostModel() *FlatCostModel {
	return &FlatCostModel{}
}

// RebalanceCost 计算 |Δw| × 成本率
func (m *FlatCostModel) RebalanceCost(deltaWeight float64) float64 {
	return math.Abs(deltaWeight) * m.CostRate
}

// PairTradeCost 返回配对平仓成本
func (m *FlatCostModel) PairTradeCost() float64 {
	return m.TradeCost
}
