package types

import (
	"time"
)

// SpreadState 某一时间点的价差估计状态
type SpreadState struct {
	Timestamp      time.Time
	HedgeRatio     float64
	Spread         float64
	SpreadVariance float64 // 回看窗口内价差的样本方差
	HedgeVariance  float64 // 对冲比例估计的不确定度 (递归模式)
}

// SignalState 配对信号状态
type SignalState int

const (
	Flat SignalState = iota
	LongSpread
	ShortSpread
)

func (s SignalState) String() string {
	switch s {
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	default:
		return "FLAT"
	}
}

// Position 信号对应的价差头寸方向
func (s SignalState) Position() float64 {
	switch s {
	case LongSpread:
		return 1
	case ShortSpread:
		return -1
	default:
		return 0
	}
}

// PairStep 配对回测每一步的记录
type PairStep struct {
	Timestamp time.Time
	PriceA    float64
	PriceB    float64
	Ready     bool // 价差是否已完成初始化
	Spread    SpreadState
	ZScore    float64
	State     SignalState
	PnL       float64
}

// PairTrade 一笔已平仓的配对交易
type PairTrade struct {
	Entry       time.Time   `json:"entry"`
	Exit        time.Time   `json:"exit"`
	Side        SignalState `json:"side"`
	EntrySpread float64     `json:"entry_spread"`
	ExitSpread  float64     `json:"exit_spread"`
	Periods     int         `json:"periods"`
	PnL         float64     `json:"pnl"` // 扣除成本后的盈亏
	TimedOut    bool        `json:"timed_out"`
}

// PairsResult 配对回测结果
type PairsResult struct {
	AssetA string
	AssetB string
	Steps  []PairStep
	Trades []PairTrade
	PnL    Series // 每步盈亏 (已扣成本)
	Equity EquityCurve
	KPIs   KPIReport
	// 被取消时为true
	Aborted bool
}
