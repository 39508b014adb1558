package risk

import (
	"math"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// Input 生成指标报告所需的数据
type Input struct {
	Returns      []float64 // 每期简单收益率
	InitialValue float64
	FinalValue   float64

	// 仅组合回测使用; Opportunities 为0时不输出换手率
	Trades        []types.TradeLogEntry
	Opportunities int
}

// Report 计算完整指标集; 单个指标无法计算时标记为未定义, 不影响其它指标
func Report(in Input, cfg types.RiskConfig) types.KPIReport {
	r := types.NewKPIReport()
	r.Set(types.KPIPeriods, float64(len(in.Returns)))

	total, err := TotalReturn(in.InitialValue, in.FinalValue)
	if err != nil {
		r.SetUndefined(types.KPITotalReturn, err.Error())
	} else {
		r.Set(types.KPITotalReturn, total)
	}

	annRet, ok := AnnualizedReturn(total, len(in.Returns), cfg.PeriodsPerYear)
	if ok {
		r.Set(types.KPIAnnualizedReturn, annRet)
	} else {
		r.SetUndefined(types.KPIAnnualizedReturn, "no periods or non-positive growth")
	}

	setOrUndefined(r, types.KPIAnnualizedVol)(AnnualizedVolatility(in.Returns, cfg.PeriodsPerYear))
	setOrUndefined(r, types.KPIHistVaR)(HistoricalVaR(in.Returns, cfg.VaRAlpha, cfg.MinVaRSamples))
	setOrUndefined(r, types.KPIHistCVaR)(HistoricalCVaR(in.Returns, cfg.VaRAlpha, cfg.MinVaRSamples))
	setOrUndefined(r, types.KPINormVaR)(ParametricVaR(in.Returns, cfg.VaRAlpha))

	rf := 0.0
	if cfg.PeriodsPerYear > 0 {
		rf = cfg.RiskFreeRate / cfg.PeriodsPerYear
	}
	if v, ok := Sharpe(in.Returns, rf, cfg.PeriodsPerYear); ok {
		r.Set(types.KPISharpe, v)
	} else {
		r.SetUndefined(types.KPISharpe, "zero or undefined return deviation")
	}
	if v, ok := Sortino(in.Returns, rf, cfg.PeriodsPerYear); ok {
		r.Set(types.KPISortino, v)
	} else {
		r.SetUndefined(types.KPISortino, "zero or undefined downside deviation")
	}

	mdd := MaxDrawdown(EquityFromReturns(in.InitialValue, in.Returns))
	r.Set(types.KPIMaxDrawdown, mdd)
	if v, ok := Calmar(annRet, mdd); ok {
		r.Set(types.KPICalmar, v)
	} else {
		r.SetUndefined(types.KPICalmar, "zero drawdown or undefined annualized return")
	}

	if in.Opportunities > 0 {
		setOrUndefined(r, types.KPITurnover)(Turnover(in.Trades, in.Opportunities))
	}
	return r
}

func setOrUndefined(r types.KPIReport, name string) func(float64, error) {
	return func(v float64, err error) {
		if err != nil || math.IsNaN(v) {
			reason := "undefined"
			if err != nil {
				reason = err.Error()
			}
			r.SetUndefined(name, reason)
			return
		}
		r.Set(name, v)
	}
}
