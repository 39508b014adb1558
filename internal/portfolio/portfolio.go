package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// Manager 投资组合管理器, 每次回测独占一个实例
type Manager struct {
	portfolio  *types.PortfolioState
	trades     []types.TradeLogEntry
	rebalances int
	totalCost  float64
}

// NewManager 按初始权重建仓
func NewManager(initialCapital float64, weights map[string]float64) *Manager {
	return &Manager{
		portfolio: types.NewPortfolioState(initialCapital, weights),
		trades:    make([]types.TradeLogEntry, 0),
	}
}

// GetPortfolio 获取当前组合状态
func (m *Manager) GetPortfolio() *types.PortfolioState {
	return m.portfolio
}

// GetTrades 获取所有交易记录
func (m *Manager) GetTrades() []types.TradeLogEntry {
	return m.trades
}

// Rebalances 已执行的再平衡次数
func (m *Manager) Rebalances() int {
	return m.rebalances
}

// TotalCost 累计再平衡成本 (货币金额)
func (m *Manager) TotalCost() float64 {
	return m.totalCost
}

// ApplyGrowth 按单期增长因子更新各资产市值 (复利), 返回组合单期简单收益率
// 现金不计息
func (m *Manager) ApplyGrowth(timestamp time.Time, growth map[string]float64) (float64, error) {
	before := m.portfolio.TotalValue()
	for asset, v := range m.portfolio.Holdings {
		g, ok := growth[asset]
		if !ok {
			return 0, fmt.Errorf("no growth factor for held asset %s", asset)
		}
		m.portfolio.Holdings[asset] = v * g
	}
	m.portfolio.Timestamp = timestamp

	after := m.portfolio.TotalValue()
	if math.IsNaN(after) || math.IsInf(after, 0) {
		return 0, &types.DataQualityError{Timestamp: timestamp, Value: after, Reason: "non-finite portfolio value"}
	}
	if before == 0 {
		return 0, nil
	}
	return after/before - 1, nil
}

// ExecuteRebalance 执行再平衡: 扣除成本后按目标权重重置持仓
func (m *Manager) ExecuteRebalance(instr types.RebalanceInstruction) {
	value := m.portfolio.TotalValue()
	costFraction := instr.TotalCost()
	cost := value * costFraction
	value -= cost

	holdings := make(map[string]float64, len(instr.Target))
	invested := 0.0
	for asset, w := range instr.Target {
		holdings[asset] = value * w
		invested += value * w
	}
	m.portfolio.Holdings = holdings
	m.portfolio.Cash = value - invested

	m.trades = append(m.trades, instr.Trades...)
	m.totalCost += cost
	m.rebalances++
}

// TakeSnapshot 记录当前净值
func (m *Manager) TakeSnapshot() types.EquityPoint {
	return types.EquityPoint{
		Timestamp: m.portfolio.Timestamp,
		Value:     m.portfolio.TotalValue(),
	}
}
