package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/walkforward-backtest/internal/portfolio"
	"github.com/opsxjacky/walkforward-backtest/internal/report"
	"github.com/opsxjacky/walkforward-backtest/internal/returns"
	"github.com/opsxjacky/walkforward-backtest/internal/risk"
	"github.com/opsxjacky/walkforward-backtest/internal/strategy"
	"github.com/opsxjacky/walkforward-backtest/internal/telemetry"
	"github.com/opsxjacky/walkforward-backtest/internal/window"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// progressEvery 每处理多少个窗口输出一次进度
const progressEvery = 100

// BacktestEngine 滚动窗口回测引擎
type BacktestEngine struct {
	config     types.BacktestConfig
	riskConfig types.RiskConfig
	strategy   strategy.RebalancePolicy
	metrics    *telemetry.Metrics
	logger     zerolog.Logger

	portfolioManager *portfolio.Manager
	equity           types.EquityCurve
	periodIdx        []time.Time
	periodReturns    []float64
	result           *types.BacktestResult
}

// New 创建回测引擎
func New(config types.BacktestConfig) *BacktestEngine {
	return &BacktestEngine{
		config:     config,
		riskConfig: types.DefaultRiskConfig(),
		logger:     log.Logger,
	}
}

// SetStrategy 设置再平衡策略
func (e *BacktestEngine) SetStrategy(s strategy.RebalancePolicy) {
	e.strategy = s
}

// SetRiskConfig 设置风险指标参数
func (e *BacktestEngine) SetRiskConfig(cfg types.RiskConfig) {
	e.riskConfig = cfg
}

// SetMetrics 设置运行指标
func (e *BacktestEngine) SetMetrics(m *telemetry.Metrics) {
	e.metrics = m
}

// SetLogger 设置日志
func (e *BacktestEngine) SetLogger(logger zerolog.Logger) {
	e.logger = logger
}

// Run 运行回测
// 每个窗口: 计算收益 -> 按当前持仓复利更新市值 -> 评估再平衡 -> 记录净值点
// ctx 被取消时在窗口边界停止, 返回已完成部分的结果和 ctx.Err()
func (e *BacktestEngine) Run(ctx context.Context, panel *types.PricePanel) (result *types.BacktestResult, err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveRun("portfolio", started, err) }()

	if err := e.validate(panel); err != nil {
		return nil, err
	}
	gen, err := window.New(panel.Len(), e.config.WindowSize, e.config.StepSize)
	if err != nil {
		return nil, err
	}
	calc, err := returns.New(e.config.ReturnMode)
	if err != nil {
		return nil, err
	}

	// 每次运行独占组合和策略状态
	e.strategy.Reset()
	e.portfolioManager = portfolio.NewManager(e.config.InitialCapital, e.initialWeights())
	e.equity = make(types.EquityCurve, 0, gen.Count())
	e.periodIdx = make([]time.Time, 0, panel.Len())
	e.periodReturns = make([]float64, 0, panel.Len())
	e.result = nil

	assets := e.heldAssets()
	windows := make([]types.Window, 0, gen.Count())
	total := gen.Count()

	e.logger.Info().
		Strs("assets", assets).
		Int("windows", total).
		Int("window_size", e.config.WindowSize).
		Int("step", e.config.StepSize).
		Str("strategy", e.strategy.Name()).
		Msg("running walk-forward backtest")

	aborted := false
	markFrom := -1
	for w := range gen.All() {
		if ctx.Err() != nil {
			aborted = true
			break
		}
		if markFrom < 0 {
			markFrom = w.Start
		}
		if err := e.processWindow(panel, calc, assets, w, markFrom); err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}
		markFrom = w.End - 1
		windows = append(windows, w)
		e.metrics.WindowProcessed()

		if len(windows)%progressEvery == 0 || len(windows) == total {
			e.logger.Info().
				Int("window", len(windows)).
				Int("of", total).
				Float64("value", e.equity[len(e.equity)-1].Value).
				Msg("progress")
		}
	}

	e.result = e.generateResult(windows, aborted)
	if aborted {
		e.logger.Warn().Int("windows", len(windows)).Msg("backtest cancelled")
		return e.result, ctx.Err()
	}
	return e.result, nil
}

// processWindow 处理一个窗口
// 市值从上一个净值点 (首个窗口为窗口起点) 逐步复利到窗口终点, 重叠窗口不重复计算
// 收益率按价格步记录, 净值曲线每个窗口一个点
func (e *BacktestEngine) processWindow(panel *types.PricePanel, calc *returns.Calculator, assets []string, w types.Window, markFrom int) error {
	end := w.End - 1
	lo := min(markFrom, w.Start)

	// 整个窗口 (以及间隔) 内的价格和收益率都要有限
	rets, err := calc.Window(panel, assets, lo, end)
	if err != nil {
		return err
	}

	// 逐个价格步复利, 每步记录一个组合收益率
	growth := make(map[string]float64, len(assets))
	for i := markFrom; i < end; i++ {
		for _, asset := range assets {
			growth[asset] = calc.Growth(rets[asset][i-lo])
		}
		r, err := e.portfolioManager.ApplyGrowth(panel.Timestamp(i+1), growth)
		if err != nil {
			return err
		}
		e.periodIdx = append(e.periodIdx, panel.Timestamp(i+1))
		e.periodReturns = append(e.periodReturns, r)
	}

	ts := panel.Timestamp(end)
	pf := e.portfolioManager.GetPortfolio()
	if instr, ok := e.strategy.Evaluate(ts, pf.Weights(), e.config.TargetWeights); ok {
		before := pf.TotalValue()
		e.portfolioManager.ExecuteRebalance(instr)
		e.metrics.Rebalanced()

		// 成本计入窗口最后一步的收益率
		if last := len(e.periodReturns) - 1; before > 0 {
			e.periodReturns[last] = (1+e.periodReturns[last])*(e.portfolioManager.GetPortfolio().TotalValue()/before) - 1
		}

		e.logger.Debug().
			Time("at", ts).
			Int("trades", len(instr.Trades)).
			Float64("cost_fraction", instr.TotalCost()).
			Msg("rebalanced")
	}

	e.equity = append(e.equity, e.portfolioManager.TakeSnapshot())
	return nil
}

// validate 验证配置
func (e *BacktestEngine) validate(panel *types.PricePanel) error {
	if e.strategy == nil {
		return fmt.Errorf("strategy not set")
	}
	if panel == nil || panel.Len() == 0 {
		return fmt.Errorf("empty price panel")
	}
	if e.config.InitialCapital <= 0 {
		return types.NewConfigurationError("initial_capital", "must be positive, got %v", e.config.InitialCapital)
	}
	if err := strategy.ValidateTargetWeights("portfolio.target_weights", e.config.TargetWeights); err != nil {
		return err
	}
	if len(e.config.InitialWeights) > 0 {
		if err := strategy.ValidateTargetWeights("portfolio.initial_weights", e.config.InitialWeights); err != nil {
			return err
		}
	}
	for _, asset := range e.heldAssets() {
		if !panel.Has(asset) {
			return types.NewConfigurationError("portfolio", "asset %s not in price panel", asset)
		}
	}
	return nil
}

func (e *BacktestEngine) initialWeights() map[string]float64 {
	if len(e.config.InitialWeights) > 0 {
		return e.config.InitialWeights
	}
	return e.config.TargetWeights
}

// heldAssets 目标与初始权重中的全部资产 (排序)
func (e *BacktestEngine) heldAssets() []string {
	set := make(map[string]struct{})
	for a := range e.config.TargetWeights {
		set[a] = struct{}{}
	}
	for a := range e.config.InitialWeights {
		set[a] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// generateResult 生成回测结果
func (e *BacktestEngine) generateResult(windows []types.Window, aborted bool) *types.BacktestResult {
	trades := e.portfolioManager.GetTrades()
	finalValue := e.portfolioManager.GetPortfolio().TotalValue()
	totalReturn := (finalValue - e.config.InitialCapital) / e.config.InitialCapital

	kpis := risk.Report(risk.Input{
		Returns:       e.periodReturns,
		InitialValue:  e.config.InitialCapital,
		FinalValue:    finalValue,
		Trades:        trades,
		Opportunities: len(windows),
	}, e.riskConfig)

	result := &types.BacktestResult{
		Config:        e.config,
		Windows:       windows,
		Equity:        e.equity,
		Trades:        trades,
		PeriodReturns: types.NewSeries(e.periodIdx, e.periodReturns),
		Rebalances:    e.portfolioManager.Rebalances(),
		FinalValue:    finalValue,
		TotalReturn:   totalReturn,
		TotalCost:     e.portfolioManager.TotalCost(),
		KPIs:          kpis,
		Aborted:       aborted,
	}
	if len(e.equity) > 0 {
		result.StartDate = e.equity[0].Timestamp
		result.EndDate = e.equity[len(e.equity)-1].Timestamp
	}
	return result
}

// GetResult 获取回测结果
func (e *BacktestEngine) GetResult() *types.BacktestResult {
	return e.result
}

// ExportResults 导出结果到JSON文件
func (e *BacktestEngine) ExportResults(path string) error {
	if e.result == nil {
		return fmt.Errorf("no results to export, run backtest first")
	}
	return report.ExportResult(path, e.strategy.Name(), e.result)
}

// PrintSummary 打印回测摘要
func (e *BacktestEngine) PrintSummary(w io.Writer) {
	name := ""
	if e.strategy != nil {
		name = e.strategy.Name()
	}
	report.PrintSummary(w, name, e.result)
}
