package types

import (
	"time"
)

// CashAsset 现金在权重表中的键
const CashAsset = "CASH"

// PortfolioState 组合状态: 各资产持仓市值与现金
// 只由回测引擎在估值和再平衡时修改, 每次运行独占一个实例
type PortfolioState struct {
	Timestamp time.Time
	Holdings  map[string]float64 // 资产 -> 持仓市值
	Cash      float64
}

// NewPortfolioState 按初始权重建仓, 剩余部分为现金
func NewPortfolioState(capital float64, weights map[string]float64) *PortfolioState {
	s := &PortfolioState{Holdings: make(map[string]float64, len(weights))}
	invested := 0.0
	for asset, w := range weights {
		s.Holdings[asset] = capital * w
		invested += capital * w
	}
	s.Cash = capital - invested
	return s
}

// TotalValue 组合总市值
func (s *PortfolioState) TotalValue() float64 {
	total := s.Cash
	for _, v := range s.Holdings {
		total += v
	}
	return total
}

// Weights 当前权重 (含现金)
func (s *PortfolioState) Weights() map[string]float64 {
	weights := make(map[string]float64, len(s.Holdings)+1)
	total := s.TotalValue()
	if total == 0 {
		return weights
	}
	for asset, v := range s.Holdings {
		weights[asset] = v / total
	}
	weights[CashAsset] = s.Cash / total
	return weights
}

// Clone 深拷贝
func (s *PortfolioState) Clone() *PortfolioState {
	c := &PortfolioState{Timestamp: s.Timestamp, Cash: s.Cash, Holdings: make(map[string]float64, len(s.Holdings))}
	for k, v := range s.Holdings {
		c.Holdings[k] = v
	}
	return c
}

// EquityPoint 净值曲线上的一个点
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// EquityCurve 净值曲线, 运行中只追加, 完成后不再修改
type EquityCurve []EquityPoint

// Values 净值数值
func (c EquityCurve) Values() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Value
	}
	return out
}

// Series 转为Series
func (c EquityCurve) Series() Series {
	idx := make([]time.Time, len(c))
	for i, p := range c {
		idx[i] = p.Timestamp
	}
	return NewSeries(idx, c.Values())
}

// TradeLogEntry 再平衡交易记录
type TradeLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Asset         string    `json:"asset"`
	DeltaWeight   float64   `json:"delta_weight"`
	EstimatedCost float64   `json:"estimated_cost"`
}

// RebalanceInstruction 再平衡指令: 把权重重置到目标
type RebalanceInstruction struct {
	Timestamp time.Time
	Target    map[string]float64
	Trades    []TradeLogEntry
}

// TotalCost 指令的总成本 (组合市值占比)
func (r RebalanceInstruction) TotalCost() float64 {
	total := 0.0
	for _, t := range r.Trades {
		total += t.EstimatedCost
	}
	return total
}

// BacktestResult 组合回测结果
type BacktestResult struct {
	Config        BacktestConfig
	Windows       []Window
	Equity        EquityCurve
	Trades        []TradeLogEntry
	PeriodReturns Series // 每个价格步的组合简单收益率
	Rebalances    int
	FinalValue    float64
	TotalReturn   float64
	TotalCost     float64
	KPIs          KPIReport
	Aborted       bool // 被取消时为true, 已有数据仍然有效
	StartDate     time.Time
	EndDate       time.Time
}
