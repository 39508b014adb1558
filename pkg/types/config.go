package types

// BacktestConfig 组合回测配置
type BacktestConfig struct {
	InitialCapital float64
	WindowSize     int
	StepSize       int
	ReturnMode     ReturnMode
	TargetWeights  map[string]float64
	InitialWeights map[string]float64 // 为空时等于目标权重
}

// CostConfig 成本配置
type CostConfig struct {
	CostRate      float64 // 再平衡成本率, 作用于 |Δw|
	PairTradeCost float64 // 配对交易每次平仓的固定成本
}

// StrategyConfig 再平衡策略配置
type StrategyConfig struct {
	Name           string
	Mode           RebalanceMode
	DriftThreshold float64 // 偏离阈值, 触发再平衡
	Interval       int     // 定期再平衡间隔 (窗口数)
}

// RiskConfig 风险指标配置
type RiskConfig struct {
	PeriodsPerYear float64
	VaRAlpha       float64
	MinVaRSamples  int
	RiskFreeRate   float64 // 年化无风险利率
}

// PairsConfig 配对交易配置
type PairsConfig struct {
	AssetA        string
	AssetB        string
	EstimatorMode EstimatorMode
	UseLogPrices  bool

	// 递归滤波参数
	SeedSize            int
	ProcessVariance     float64
	ObservationVariance float64
	InitialCovariance   float64

	// 滚动OLS窗口
	OLSWindow int

	SpreadLookback    int
	MinPeriods        int
	EntryThreshold    float64
	ExitThreshold     float64
	MaxHoldingPeriods int // 0 表示不限制
	PositionSize      float64
	Capital           float64
}

// DefaultRiskConfig 默认风险参数
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		PeriodsPerYear: 252,
		VaRAlpha:       0.05,
		MinVaRSamples:  20,
	}
}

// DefaultPairsConfig 默认配对参数
func DefaultPairsConfig() PairsConfig {
	return PairsConfig{
		EstimatorMode:       EstimatorRecursive,
		SeedSize:            10,
		ProcessVariance:     1e-4,
		ObservationVariance: 1e-2,
		InitialCovariance:   1.0,
		OLSWindow:           60,
		SpreadLookback:      60,
		MinPeriods:          12,
		EntryThreshold:      2.0,
		ExitThreshold:       0.5,
		PositionSize:        1.0,
		Capital:             100.0,
	}
}
