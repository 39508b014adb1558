package types

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// 指标名称
const (
	KPITotalReturn      = "total_return"
	KPIAnnualizedReturn = "annualized_return"
	KPIAnnualizedVol    = "ann_vol"
	KPIHistVaR          = "hist_var"
	KPIHistCVaR         = "hist_cvar"
	KPINormVaR          = "norm_var"
	KPISharpe           = "sharpe"
	KPISortino          = "sortino"
	KPIMaxDrawdown      = "max_drawdown"
	KPICalmar           = "calmar"
	KPITurnover         = "turnover"
	KPIPeriods          = "n_periods"

	KPITrades     = "n_trades"
	KPIWinRate    = "win_rate"
	KPITotalPnL   = "total_pnl"
	KPIAvgHolding = "avg_holding_periods"
)

// KPIReport 指标报告, 运行结束时生成一次, 之后不再修改
// 无法计算的指标值为NaN, 原因记录在Undefined中
type KPIReport struct {
	Values    map[string]float64
	Undefined map[string]string
}

// NewKPIReport 创建空报告
func NewKPIReport() KPIReport {
	return KPIReport{Values: make(map[string]float64), Undefined: make(map[string]string)}
}

// Set 记录一个已定义的指标
func (r KPIReport) Set(name string, v float64) {
	r.Values[name] = v
	delete(r.Undefined, name)
}

// SetUndefined 记录一个未定义的指标
func (r KPIReport) SetUndefined(name, reason string) {
	r.Values[name] = math.NaN()
	r.Undefined[name] = reason
}

// Get 读取指标, ok为false表示不存在或未定义
func (r KPIReport) Get(name string) (float64, bool) {
	v, ok := r.Values[name]
	if !ok {
		return 0, false
	}
	if _, undefined := r.Undefined[name]; undefined {
		return v, false
	}
	return v, true
}

// IsDefined 指标是否已定义
func (r KPIReport) IsDefined(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names 按字母排序的指标名
func (r KPIReport) Names() []string {
	names := make([]string, 0, len(r.Values))
	for k := range r.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge 合并另一个报告的指标
func (r KPIReport) Merge(other KPIReport) {
	for k, v := range other.Values {
		r.Values[k] = v
	}
	for k, reason := range other.Undefined {
		r.Undefined[k] = reason
	}
}

// MarshalJSON NaN输出为null, 并附带未定义原因
func (r KPIReport) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"metrics":{`)
	for i, name := range r.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		v := r.Values[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
		} else {
			buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	buf.WriteString(`},"undefined":`)
	undefined, err := json.Marshal(r.Undefined)
	if err != nil {
		return nil, err
	}
	buf.Write(undefined)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
