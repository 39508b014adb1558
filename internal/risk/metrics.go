// Package risk 风险与绩效指标, 全部为输入序列的纯函数
package risk

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// zeroDeviation 低于该值的标准差视为零
const zeroDeviation = 1e-12

// TotalReturn 期末/期初 - 1
func TotalReturn(initial, final float64) (float64, error) {
	if initial <= 0 {
		return math.NaN(), types.NewConfigurationError("initial_value", "must be positive, got %v", initial)
	}
	return final/initial - 1, nil
}

// AnnualizedReturn 按期数年化的复合收益率
func AnnualizedReturn(totalReturn float64, periods int, periodsPerYear float64) (float64, bool) {
	growth := 1 + totalReturn
	if periods <= 0 || growth <= 0 || math.IsNaN(growth) {
		return math.NaN(), false
	}
	return math.Pow(growth, periodsPerYear/float64(periods)) - 1, true
}

// AnnualizedVolatility 样本标准差 × √periodsPerYear
func AnnualizedVolatility(returns []float64, periodsPerYear float64) (float64, error) {
	if len(returns) < 2 {
		return math.NaN(), &types.InsufficientDataError{Metric: types.KPIAnnualizedVol, Have: len(returns), Need: 2}
	}
	return stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear), nil
}

// Quantile 经验分布的alpha分位数, 在相邻次序统计量之间线性插值
// 位置为 (n-1)·alpha, alpha=0.5 时等于中位数
func Quantile(values []float64, alpha float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := alpha * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func checkAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return types.NewConfigurationError("var_alpha", "must be in (0,1), got %v", alpha)
	}
	return nil
}

// HistoricalVaR 历史VaR: 收益率的alpha分位数 (带符号, 亏损为负)
func HistoricalVaR(returns []float64, alpha float64, minSamples int) (float64, error) {
	if err := checkAlpha(alpha); err != nil {
		return math.NaN(), err
	}
	need := minSamples
	if need < 1 {
		need = 1
	}
	if len(returns) < need {
		return math.NaN(), &types.InsufficientDataError{Metric: types.KPIHistVaR, Have: len(returns), Need: need}
	}
	return Quantile(returns, alpha), nil
}

// HistoricalCVaR 历史CVaR: 不高于VaR的收益率的均值
func HistoricalCVaR(returns []float64, alpha float64, minSamples int) (float64, error) {
	q, err := HistoricalVaR(returns, alpha, minSamples)
	if err != nil {
		var ide *types.InsufficientDataError
		if errors.As(err, &ide) {
			ide.Metric = types.KPIHistCVaR
		}
		return math.NaN(), err
	}
	tail := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r <= q {
			tail = append(tail, r)
		}
	}
	return stat.Mean(tail, nil), nil
}

// ParametricVaR 正态VaR: mean - z·stdev, z 为标准正态 1-alpha 分位数
func ParametricVaR(returns []float64, alpha float64) (float64, error) {
	if err := checkAlpha(alpha); err != nil {
		return math.NaN(), err
	}
	if len(returns) < 2 {
		return math.NaN(), &types.InsufficientDataError{Metric: types.KPINormVaR, Have: len(returns), Need: 2}
	}
	mean, std := stat.MeanStdDev(returns, nil)
	z := distuv.UnitNormal.Quantile(1 - alpha)
	return mean - z*std, nil
}

// excess 每期超额收益
func excess(returns []float64, riskFreePerPeriod float64) []float64 {
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - riskFreePerPeriod
	}
	return out
}

// Sharpe 夏普比率; 标准差为零或样本不足时返回 (NaN, false)
func Sharpe(returns []float64, riskFreePerPeriod, periodsPerYear float64) (float64, bool) {
	if len(returns) < 2 {
		return math.NaN(), false
	}
	mean, std := stat.MeanStdDev(excess(returns, riskFreePerPeriod), nil)
	if std <= zeroDeviation || math.IsNaN(std) {
		return math.NaN(), false
	}
	return mean / std * math.Sqrt(periodsPerYear), true
}

// Sortino 索提诺比率, 分母为负超额收益的样本标准差
func Sortino(returns []float64, riskFreePerPeriod, periodsPerYear float64) (float64, bool) {
	ex := excess(returns, riskFreePerPeriod)
	var downside []float64
	for _, r := range ex {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return math.NaN(), false
	}
	dd := stat.StdDev(downside, nil)
	if dd <= zeroDeviation || math.IsNaN(dd) {
		return math.NaN(), false
	}
	return stat.Mean(ex, nil) / dd * math.Sqrt(periodsPerYear), true
}

// EquityFromReturns 由单期收益率复利得到净值序列, 首项为初始值
func EquityFromReturns(initial float64, returns []float64) []float64 {
	eq := make([]float64, len(returns)+1)
	eq[0] = initial
	for i, r := range returns {
		eq[i+1] = eq[i] * (1 + r)
	}
	return eq
}

// MaxDrawdown 最大回撤 (<=0), 净值相对历史峰值的最大跌幅
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	worst := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := v/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// Drawdowns 每个时点相对峰值的回撤
func Drawdowns(equity []float64) []float64 {
	out := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, v := range equity {
		peak = math.Max(peak, v)
		if peak > 0 {
			out[i] = v/peak - 1
		}
	}
	return out
}

// Calmar 年化收益 / |最大回撤|; 回撤为零时返回 (NaN, false)
func Calmar(annualizedReturn, maxDrawdown float64) (float64, bool) {
	if math.Abs(maxDrawdown) <= zeroDeviation || math.IsNaN(annualizedReturn) {
		return math.NaN(), false
	}
	return annualizedReturn / math.Abs(maxDrawdown), true
}

// Turnover 所有交易 |Δw| 之和除以再平衡机会数
func Turnover(trades []types.TradeLogEntry, opportunities int) (float64, error) {
	if opportunities <= 0 {
		return math.NaN(), &types.InsufficientDataError{Metric: types.KPITurnover, Have: opportunities, Need: 1}
	}
	deltas := make([]float64, len(trades))
	for i, t := range trades {
		deltas[i] = math.Abs(t.DeltaWeight)
	}
	return floats.Sum(deltas) / float64(opportunities), nil
}
