package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsxjacky/walkforward-backtest/internal/pairs"
	"github.com/opsxjacky/walkforward-backtest/internal/strategy"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// envPrefix 环境变量覆盖前缀
const envPrefix = "BACKTEST_"

// Config 配置文件结构
type Config struct {
	Backtest  BacktestSection  `yaml:"backtest"`
	Portfolio PortfolioSection `yaml:"portfolio"`
	Rebalance RebalanceSection `yaml:"rebalance"`
	Risk      RiskSection      `yaml:"risk"`
	Pairs     PairsSection     `yaml:"pairs"`
	Scan      ScanSection      `yaml:"scan"`
	Output    OutputSection    `yaml:"output"`
	Store     StoreSection     `yaml:"store"`
}

// BacktestSection 回测配置
type BacktestSection struct {
	InitialCapital float64 `yaml:"initial_capital"`
	WindowSize     int     `yaml:"window_size"`
	StepSize       int     `yaml:"step_size"`
	ReturnMode     string  `yaml:"return_mode"` // simple|log
	DataFile       string  `yaml:"data_file"`   // 长表CSV: date,ticker,adj_close
	DataDir        string  `yaml:"data_dir"`    // 每个资产一个CSV文件
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
}

// PortfolioSection 组合权重
type PortfolioSection struct {
	TargetWeights  map[string]float64 `yaml:"target_weights"`
	InitialWeights map[string]float64 `yaml:"initial_weights"`
}

// RebalanceSection 再平衡策略与成本
type RebalanceSection struct {
	Name           string  `yaml:"name"`
	Mode           string  `yaml:"mode"` // drift|periodic
	DriftThreshold float64 `yaml:"drift_threshold"`
	Interval       int     `yaml:"interval"`
	CostRate       float64 `yaml:"cost_rate"`
}

// RiskSection 风险指标参数
type RiskSection struct {
	PeriodsPerYear float64 `yaml:"periods_per_year"`
	VaRAlpha       float64 `yaml:"var_alpha"`
	MinVaRSamples  int     `yaml:"min_var_samples"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
}

// PairsSection 配对交易参数
type PairsSection struct {
	AssetA              string  `yaml:"asset_a"`
	AssetB              string  `yaml:"asset_b"`
	EstimatorMode       string  `yaml:"estimator_mode"` // recursive|rolling_ols
	UseLogPrices        bool    `yaml:"use_log_prices"`
	SeedSize            int     `yaml:"seed_size"`
	ProcessVariance     float64 `yaml:"process_variance"`
	ObservationVariance float64 `yaml:"observation_variance"`
	InitialCovariance   float64 `yaml:"initial_covariance"`
	OLSWindow           int     `yaml:"ols_window"`
	SpreadLookback      int     `yaml:"spread_lookback"`
	MinPeriods          int     `yaml:"min_periods"` // 0 表示 max(10, lookback/5)
	EntryThreshold      float64 `yaml:"entry_threshold"`
	ExitThreshold       float64 `yaml:"exit_threshold"`
	MaxHoldingPeriods   int     `yaml:"max_holding_periods"`
	PositionSize        float64 `yaml:"position_size"`
	Capital             float64 `yaml:"capital"`
	TradeCost           float64 `yaml:"trade_cost"`
}

// ScanSection 配对扫描参数
type ScanSection struct {
	Universe []string `yaml:"universe"`
	Workers  int      `yaml:"workers"`
	Top      int      `yaml:"top"`
}

// OutputSection 输出配置
type OutputSection struct {
	Path   string `yaml:"path"`
	JSON   bool   `yaml:"json"`
	CSV    bool   `yaml:"csv"`
	Charts bool   `yaml:"charts"`
}

// StoreSection 结果库配置, dsn 为空时不写库
type StoreSection struct {
	Driver string `yaml:"driver"` // sqlite3|postgres
	DSN    string `yaml:"dsn"`
}

// Default 返回带默认值的配置
func Default() Config {
	pairsDefaults := types.DefaultPairsConfig()
	riskDefaults := types.DefaultRiskConfig()
	return Config{
		Backtest: BacktestSection{
			InitialCapital: 100000,
			WindowSize:     60,
			StepSize:       20,
			ReturnMode:     string(types.ReturnSimple),
		},
		Rebalance: RebalanceSection{
			Name:           "DriftCheck",
			Mode:           string(types.RebalanceDrift),
			DriftThreshold: 0.05,
			Interval:       1,
			CostRate:       0.001,
		},
		Risk: RiskSection{
			PeriodsPerYear: riskDefaults.PeriodsPerYear,
			VaRAlpha:       riskDefaults.VaRAlpha,
			MinVaRSamples:  riskDefaults.MinVaRSamples,
		},
		Pairs: PairsSection{
			EstimatorMode:       string(pairsDefaults.EstimatorMode),
			SeedSize:            pairsDefaults.SeedSize,
			ProcessVariance:     pairsDefaults.ProcessVariance,
			ObservationVariance: pairsDefaults.ObservationVariance,
			InitialCovariance:   pairsDefaults.InitialCovariance,
			OLSWindow:           pairsDefaults.OLSWindow,
			SpreadLookback:      pairsDefaults.SpreadLookback,
			EntryThreshold:      pairsDefaults.EntryThreshold,
			ExitThreshold:       pairsDefaults.ExitThreshold,
			PositionSize:        pairsDefaults.PositionSize,
			Capital:             pairsDefaults.Capital,
		},
		Scan: ScanSection{
			Workers: 4,
			Top:     10,
		},
		Output: OutputSection{
			Path: "output",
			JSON: true,
			CSV:  true,
		},
		Store: StoreSection{
			Driver: "sqlite3",
		},
	}
}

// LoadConfig 从文件加载配置, 文件中未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv(envPrefix)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 用环境变量覆盖数据与输出位置
func (c *Config) applyEnv(prefix string) {
	c.Backtest.DataFile = pickStr(os.Getenv(prefix+"DATA_FILE"), c.Backtest.DataFile)
	c.Backtest.DataDir = pickStr(os.Getenv(prefix+"DATA_DIR"), c.Backtest.DataDir)
	c.Output.Path = pickStr(os.Getenv(prefix+"OUTPUT_PATH"), c.Output.Path)
	c.Store.Driver = pickStr(os.Getenv(prefix+"STORE_DRIVER"), c.Store.Driver)
	c.Store.DSN = pickStr(os.Getenv(prefix+"STORE_DSN"), c.Store.DSN)
	if v := os.Getenv(prefix + "SCAN_UNIVERSE"); v != "" {
		c.Scan.Universe = splitCSV(v)
	}
}

func pickStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 校验与各段无关的参数取值; 目标权重和配对资产由使用它们的命令检查
func (c *Config) Validate() error {
	if c.Backtest.InitialCapital <= 0 {
		return types.NewConfigurationError("backtest.initial_capital", "must be positive, got %v", c.Backtest.InitialCapital)
	}
	if c.Backtest.WindowSize < 2 {
		return types.NewConfigurationError("backtest.window_size", "must be >= 2, got %d", c.Backtest.WindowSize)
	}
	if c.Backtest.StepSize < 1 {
		return types.NewConfigurationError("backtest.step_size", "must be >= 1, got %d", c.Backtest.StepSize)
	}
	switch types.ReturnMode(c.Backtest.ReturnMode) {
	case types.ReturnSimple, types.ReturnLog:
	default:
		return types.NewConfigurationError("backtest.return_mode", "unknown mode %q (allowed: simple|log)", c.Backtest.ReturnMode)
	}

	switch types.RebalanceMode(c.Rebalance.Mode) {
	case types.RebalanceDrift, types.RebalancePeriodic:
	default:
		return types.NewConfigurationError("rebalance.mode", "unknown mode %q (allowed: drift|periodic)", c.Rebalance.Mode)
	}
	if c.Rebalance.DriftThreshold < 0 {
		return types.NewConfigurationError("rebalance.drift_threshold", "must be >= 0, got %v", c.Rebalance.DriftThreshold)
	}
	if c.Rebalance.CostRate < 0 {
		return types.NewConfigurationError("rebalance.cost_rate", "must be >= 0, got %v", c.Rebalance.CostRate)
	}

	if c.Risk.PeriodsPerYear <= 0 {
		return types.NewConfigurationError("risk.periods_per_year", "must be positive, got %v", c.Risk.PeriodsPerYear)
	}
	if !(c.Risk.VaRAlpha > 0 && c.Risk.VaRAlpha < 1) {
		return types.NewConfigurationError("risk.var_alpha", "must be in (0,1), got %v", c.Risk.VaRAlpha)
	}
	if c.Risk.MinVaRSamples < 1 {
		return types.NewConfigurationError("risk.min_var_samples", "must be >= 1, got %d", c.Risk.MinVaRSamples)
	}

	switch types.EstimatorMode(c.Pairs.EstimatorMode) {
	case types.EstimatorRecursive, types.EstimatorRollingOLS:
	default:
		return types.NewConfigurationError("pairs.estimator_mode", "unknown mode %q (allowed: recursive|rolling_ols)", c.Pairs.EstimatorMode)
	}
	if err := pairs.ValidateThresholds(c.Pairs.EntryThreshold, c.Pairs.ExitThreshold); err != nil {
		return err
	}
	if c.Pairs.SpreadLookback < 2 {
		return types.NewConfigurationError("pairs.spread_lookback", "must be >= 2, got %d", c.Pairs.SpreadLookback)
	}
	if c.Pairs.OLSWindow < 2 {
		return types.NewConfigurationError("pairs.ols_window", "must be >= 2, got %d", c.Pairs.OLSWindow)
	}
	if c.Pairs.SeedSize < 1 {
		return types.NewConfigurationError("pairs.seed_size", "must be >= 1, got %d", c.Pairs.SeedSize)
	}
	if c.Pairs.TradeCost < 0 {
		return types.NewConfigurationError("pairs.trade_cost", "must be >= 0, got %v", c.Pairs.TradeCost)
	}

	if c.Scan.Workers < 1 {
		return types.NewConfigurationError("scan.workers", "must be >= 1, got %d", c.Scan.Workers)
	}
	switch c.Store.Driver {
	case "sqlite3", "postgres":
	default:
		return types.NewConfigurationError("store.driver", "unknown driver %q (allowed: sqlite3|postgres)", c.Store.Driver)
	}
	return nil
}

// ValidatePortfolio 校验组合权重, run 命令使用
func (c *Config) ValidatePortfolio() error {
	if err := strategy.ValidateTargetWeights("portfolio.target_weights", c.Portfolio.TargetWeights); err != nil {
		return err
	}
	if len(c.Portfolio.InitialWeights) > 0 {
		return strategy.ValidateTargetWeights("portfolio.initial_weights", c.Portfolio.InitialWeights)
	}
	return nil
}

// Symbols 组合涉及的全部资产
func (c *Config) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, weights := range []map[string]float64{c.Portfolio.TargetWeights, c.Portfolio.InitialWeights} {
		for s := range weights {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// ToBacktestConfig 转换为回测配置
func (c *Config) ToBacktestConfig() types.BacktestConfig {
	return types.BacktestConfig{
		InitialCapital: c.Backtest.InitialCapital,
		WindowSize:     c.Backtest.WindowSize,
		StepSize:       c.Backtest.StepSize,
		ReturnMode:     types.ReturnMode(c.Backtest.ReturnMode),
		TargetWeights:  c.Portfolio.TargetWeights,
		InitialWeights: c.Portfolio.InitialWeights,
	}
}

// ToCostConfig 转换为成本配置
func (c *Config) ToCostConfig() types.CostConfig {
	return types.CostConfig{
		CostRate:      c.Rebalance.CostRate,
		PairTradeCost: c.Pairs.TradeCost,
	}
}

// ToStrategyConfig 转换为策略配置
func (c *Config) ToStrategyConfig() types.StrategyConfig {
	return types.StrategyConfig{
		Name:           c.Rebalance.Name,
		Mode:           types.RebalanceMode(c.Rebalance.Mode),
		DriftThreshold: c.Rebalance.DriftThreshold,
		Interval:       c.Rebalance.Interval,
	}
}

// ToRiskConfig 转换为风险指标配置
func (c *Config) ToRiskConfig() types.RiskConfig {
	return types.RiskConfig{
		PeriodsPerYear: c.Risk.PeriodsPerYear,
		VaRAlpha:       c.Risk.VaRAlpha,
		MinVaRSamples:  c.Risk.MinVaRSamples,
		RiskFreeRate:   c.Risk.RiskFreeRate,
	}
}

// ToPairsConfig 转换为配对配置
func (c *Config) ToPairsConfig() types.PairsConfig {
	p := c.Pairs
	return types.PairsConfig{
		AssetA:              p.AssetA,
		AssetB:              p.AssetB,
		EstimatorMode:       types.EstimatorMode(p.EstimatorMode),
		UseLogPrices:        p.UseLogPrices,
		SeedSize:            p.SeedSize,
		ProcessVariance:     p.ProcessVariance,
		ObservationVariance: p.ObservationVariance,
		InitialCovariance:   p.InitialCovariance,
		OLSWindow:           p.OLSWindow,
		SpreadLookback:      p.SpreadLookback,
		MinPeriods:          p.MinPeriods,
		EntryThreshold:      p.EntryThreshold,
		ExitThreshold:       p.ExitThreshold,
		MaxHoldingPeriods:   p.MaxHoldingPeriods,
		PositionSize:        p.PositionSize,
		Capital:             p.Capital,
	}
}

// GetDataDir 获取数据目录
func (c *Config) GetDataDir() string {
	if c.Backtest.DataDir != "" {
		return c.Backtest.DataDir
	}
	return "data/sample"
}

// GetOutputPath 获取输出路径
func (c *Config) GetOutputPath() string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	return "output"
}
