package strategy

import (
	"time"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// PeriodicPolicy 定期再平衡策略
// 每隔 interval 个窗口检查一次, 权重与目标不一致就重置
type PeriodicPolicy struct {
	name              string
	interval          int
	costModel         cost.CostModel
	windowsSinceReset int
}

// NewPeriodicPolicy 创建定期再平衡策略
func NewPeriodicPolicy(config types.StrategyConfig, costModel cost.CostModel) (*PeriodicPolicy, error) {
	interval := config.Interval
	if interval <= 0 {
		interval = 1 // 默认每个窗口
	}
	if costModel == nil {
		costModel = cost.NewZeroCostModel()
	}
	return &PeriodicPolicy{
		name:      config.Name,
		interval:  interval,
		costModel: costModel,
	}, nil
}

// Name 返回策略名称
func (p *PeriodicPolicy) Name() string {
	if p.name != "" {
		return p.name
	}
	return "Periodic"
}

// Reset 重新开始计数
func (p *PeriodicPolicy) Reset() {
	p.windowsSinceReset = 0
}

// Evaluate 到达间隔时返回再平衡指令
func (p *PeriodicPolicy) Evaluate(ts time.Time, current, target map[string]float64) (types.RebalanceInstruction, bool) {
	p.windowsSinceReset++
	if p.windowsSinceReset < p.interval {
		return types.RebalanceInstruction{}, false
	}

	instr := buildInstruction(ts, current, target, p.costModel)
	p.windowsSinceReset = 0
	if len(instr.Trades) == 0 {
		return types.RebalanceInstruction{}, false
	}
	return instr, true
}
