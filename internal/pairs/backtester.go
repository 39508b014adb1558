package pairs

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/internal/risk"
	"github.com/opsxjacky/walkforward-backtest/internal/telemetry"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// Backtester 配对回测器
// 每次 Run 创建独立的估计器和信号, 同一实例可被多个 goroutine 并发调用
type Backtester struct {
	config     types.PairsConfig
	riskConfig types.RiskConfig
	costModel  cost.CostModel
	metrics    *telemetry.Metrics

	newEstimator func(types.PairsConfig) (SpreadEstimator, error)
}

// NewBacktester 创建配对回测器, 构造时校验全部参数
func NewBacktester(config types.PairsConfig, riskConfig types.RiskConfig, costModel cost.CostModel) (*Backtester, error) {
	if costModel == nil {
		costModel = cost.NewZeroCostModel()
	}
	if !(config.PositionSize > 0) {
		return nil, types.NewConfigurationError("position_size", "must be > 0, got %v", config.PositionSize)
	}
	if !(config.Capital > 0) {
		return nil, types.NewConfigurationError("capital", "must be > 0, got %v", config.Capital)
	}
	if _, err := NewSpreadEstimator(config); err != nil {
		return nil, err
	}
	if _, err := NewZScoreSignal(config); err != nil {
		return nil, err
	}
	return &Backtester{
		config:       config,
		riskConfig:   riskConfig,
		costModel:    costModel,
		newEstimator: NewSpreadEstimator,
	}, nil
}

// SetMetrics 设置运行指标
func (b *Backtester) SetMetrics(m *telemetry.Metrics) {
	b.metrics = m
}

// Config 当前配置
func (b *Backtester) Config() types.PairsConfig {
	return b.config
}

// WithAssets 返回使用另一对资产的回测器副本
func (b *Backtester) WithAssets(assetA, assetB string) *Backtester {
	c := *b
	c.config.AssetA = assetA
	c.config.AssetB = assetB
	return &c
}

// openTrade 持仓中的交易
type openTrade struct {
	entry  time.Time
	side   types.SignalState
	spread float64
	steps  int
}

// Run 运行配对回测
// ctx 被取消时在步边界停止, 返回截至当时的部分结果和 ctx.Err()
func (b *Backtester) Run(ctx context.Context, panel *types.PricePanel) (result *types.PairsResult, err error) {
	started := time.Now()
	defer func() { b.metrics.ObserveRun("pairs", started, err) }()

	assetA, assetB := b.config.AssetA, b.config.AssetB
	if assetA == "" || assetB == "" || assetA == assetB {
		return nil, types.NewConfigurationError("pairs.assets", "need two distinct assets, got %q and %q", assetA, assetB)
	}
	for _, asset := range []string{assetA, assetB} {
		if !panel.Has(asset) {
			return nil, types.NewConfigurationError("pairs.assets", "asset %s not in price panel", asset)
		}
	}

	estimator, err := b.newEstimator(b.config)
	if err != nil {
		return nil, err
	}
	signal, err := NewZScoreSignal(b.config)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("pair", assetA+"/"+assetB).Logger()
	signal.SetLogger(logger)
	logger.Debug().
		Str("estimator", string(estimator.Mode())).
		Int("steps", panel.Len()).
		Msg("pairs backtest started")

	steps := make([]types.PairStep, 0, panel.Len())
	var trades []types.PairTrade
	var open *openTrade
	var readyIdx []time.Time
	var spreads, positions []float64
	var closeIdx []time.Time
	var closeCost []float64
	aborted := false

	tradeCost := b.costModel.PairTradeCost()
	prev := types.Flat

	for i := 0; i < panel.Len(); i++ {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		ts := panel.Timestamp(i)
		pa, pb := panel.Price(assetA, i), panel.Price(assetB, i)
		for _, check := range []struct {
			asset string
			price float64
		}{{assetA, pa}, {assetB, pb}} {
			if math.IsNaN(check.price) || math.IsInf(check.price, 0) {
				return nil, &types.DataQualityError{Timestamp: ts, Asset: check.asset, Value: check.price, Reason: "non-finite price"}
			}
		}

		step := types.PairStep{Timestamp: ts, PriceA: pa, PriceB: pb, ZScore: math.NaN(), State: types.Flat}
		state, ok := estimator.Update(ts, pa, pb)
		if !ok {
			steps = append(steps, step)
			continue
		}
		step.Ready = true
		step.Spread = state

		dec := signal.Update(state.Spread)
		step.ZScore = dec.ZScore
		step.State = dec.State

		if open != nil {
			open.steps++
		}
		if prev != types.Flat && dec.State != prev {
			trade := types.PairTrade{
				Entry:       open.entry,
				Exit:        ts,
				Side:        open.side,
				EntrySpread: open.spread,
				ExitSpread:  state.Spread,
				Periods:     open.steps,
				PnL:         open.side.Position()*(state.Spread-open.spread)*b.config.PositionSize - tradeCost,
				TimedOut:    dec.TimedOut,
			}
			trades = append(trades, trade)
			closeIdx = append(closeIdx, ts)
			closeCost = append(closeCost, -tradeCost)
			b.metrics.PairTradeClosed(trade.Side.String())
			open = nil
		}
		if dec.State != types.Flat && open == nil {
			open = &openTrade{entry: ts, side: dec.State, spread: state.Spread}
		}
		prev = dec.State

		readyIdx = append(readyIdx, ts)
		spreads = append(spreads, state.Spread)
		positions = append(positions, dec.State.Position())
		steps = append(steps, step)
	}

	// 持仓方向滞后一期乘以价差变化, 平仓时扣除固定成本
	spreadSeries := types.NewSeries(readyIdx, spreads)
	positionSeries := types.NewSeries(readyIdx, positions)
	pnl := positionSeries.Lag().Mul(spreadSeries.Diff()).
		Scale(b.config.PositionSize).
		Add(types.NewSeries(closeIdx, closeCost))

	byTime := make(map[int64]float64, pnl.Len())
	for j, t := range pnl.Index {
		byTime[t.UnixNano()] = pnl.Values[j]
	}
	for j := range steps {
		steps[j].PnL = byTime[steps[j].Timestamp.UnixNano()]
	}

	equity, returns := equityFromPnL(b.config.Capital, pnl)
	final := b.config.Capital
	if len(equity) > 0 {
		final = equity[len(equity)-1].Value
	}
	kpis := risk.Report(risk.Input{Returns: returns, InitialValue: b.config.Capital, FinalValue: final}, b.riskConfig)
	kpis.Merge(tradeKPIs(trades))

	result = &types.PairsResult{
		AssetA:  assetA,
		AssetB:  assetB,
		Steps:   steps,
		Trades:  trades,
		PnL:     pnl,
		Equity:  equity,
		KPIs:    kpis,
		Aborted: aborted,
	}

	logger.Info().
		Int("trades", len(trades)).
		Float64("final_equity", final).
		Bool("aborted", aborted).
		Msg("pairs backtest finished")

	if aborted {
		return result, ctx.Err()
	}
	return result, nil
}

// equityFromPnL 资金 + 累计盈亏, 收益率为相邻净值之比减一
func equityFromPnL(capital float64, pnl types.Series) (types.EquityCurve, []float64) {
	cum := pnl.CumSum()
	equity := make(types.EquityCurve, cum.Len())
	returns := make([]float64, cum.Len())
	prev := capital
	for i, v := range cum.Values {
		value := capital + v
		equity[i] = types.EquityPoint{Timestamp: cum.Index[i], Value: value}
		if prev != 0 {
			returns[i] = value/prev - 1
		}
		prev = value
	}
	return equity, returns
}

// tradeKPIs 交易统计: 笔数, 胜率, 总盈亏, 平均持仓期数
func tradeKPIs(trades []types.PairTrade) types.KPIReport {
	r := types.NewKPIReport()
	r.Set(types.KPITrades, float64(len(trades)))

	total := 0.0
	wins := 0
	periods := 0
	for _, t := range trades {
		total += t.PnL
		periods += t.Periods
		if t.PnL > 0 {
			wins++
		}
	}
	r.Set(types.KPITotalPnL, total)
	if len(trades) == 0 {
		r.SetUndefined(types.KPIWinRate, "no closed trades")
		r.SetUndefined(types.KPIAvgHolding, "no closed trades")
		return r
	}
	r.Set(types.KPIWinRate, float64(wins)/float64(len(trades)))
	r.Set(types.KPIAvgHolding, float64(periods)/float64(len(trades)))
	return r
}
