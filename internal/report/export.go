// Package report 回测结果导出: JSON, CSV, 图表与文本摘要
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/walkforward-backtest/internal/risk"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

const dateLayout = "2006-01-02"

// ResultSummary 结果摘要
type ResultSummary struct {
	StrategyName   string    `json:"strategy_name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialCapital float64   `json:"initial_capital"`
	FinalValue     float64   `json:"final_value"`
	TotalReturn    float64   `json:"total_return"`
	Windows        int       `json:"windows"`
	Rebalances     int       `json:"rebalances"`
	TotalTrades    int       `json:"total_trades"`
	TotalCost      float64   `json:"total_cost"`
	Aborted        bool      `json:"aborted"`
}

// Summarize 从组合回测结果生成摘要
func Summarize(strategyName string, res *types.BacktestResult) ResultSummary {
	return ResultSummary{
		StrategyName:   strategyName,
		StartDate:      res.StartDate,
		EndDate:        res.EndDate,
		InitialCapital: res.Config.InitialCapital,
		FinalValue:     res.FinalValue,
		TotalReturn:    res.TotalReturn,
		Windows:        len(res.Equity),
		Rebalances:     res.Rebalances,
		TotalTrades:    len(res.Trades),
		TotalCost:      res.TotalCost,
		Aborted:        res.Aborted,
	}
}

// ExportResult 导出组合回测结果到JSON文件
func ExportResult(path, strategyName string, res *types.BacktestResult) error {
	if res == nil {
		return fmt.Errorf("no results to export, run backtest first")
	}

	output := struct {
		Summary ResultSummary         `json:"summary"`
		KPIs    types.KPIReport       `json:"kpis"`
		Trades  []types.TradeLogEntry `json:"trades"`
		Equity  types.EquityCurve     `json:"equity"`
	}{
		Summary: Summarize(strategyName, res),
		KPIs:    res.KPIs,
		Trades:  res.Trades,
		Equity:  res.Equity,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("results exported")
	return nil
}

// ExportPairsResult 导出配对回测结果到JSON文件
func ExportPairsResult(path string, res *types.PairsResult) error {
	if res == nil {
		return fmt.Errorf("no results to export, run backtest first")
	}

	output := struct {
		AssetA  string            `json:"asset_a"`
		AssetB  string            `json:"asset_b"`
		Aborted bool              `json:"aborted"`
		KPIs    types.KPIReport   `json:"kpis"`
		Trades  []pairTradeRow    `json:"trades"`
		Equity  types.EquityCurve `json:"equity"`
	}{
		AssetA:  res.AssetA,
		AssetB:  res.AssetB,
		Aborted: res.Aborted,
		KPIs:    res.KPIs,
		Trades:  pairTradeRows(res.Trades),
		Equity:  res.Equity,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pairs results: %w", err)
	}
	return writeFile(path, data)
}

// WriteKPIs 写出指标JSON (NaN 为 null)
func WriteKPIs(w io.Writer, kpis types.KPIReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(kpis)
}

type equityRow struct {
	Date     string  `csv:"date"`
	Value    float64 `csv:"value"`
	Drawdown float64 `csv:"drawdown"`
}

// WriteEquityCSV 写出净值曲线与回撤
func WriteEquityCSV(w io.Writer, curve types.EquityCurve) error {
	dd := risk.Drawdowns(curve.Values())
	rows := make([]*equityRow, len(curve))
	for i, p := range curve {
		rows[i] = &equityRow{Date: p.Timestamp.Format(dateLayout), Value: p.Value, Drawdown: dd[i]}
	}
	return gocsv.Marshal(&rows, w)
}

type tradeRow struct {
	Date          string  `csv:"date"`
	Asset         string  `csv:"asset"`
	DeltaWeight   float64 `csv:"delta_weight"`
	EstimatedCost float64 `csv:"estimated_cost"`
}

// WriteTradesCSV 写出再平衡交易记录
func WriteTradesCSV(w io.Writer, trades []types.TradeLogEntry) error {
	rows := make([]*tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = &tradeRow{
			Date:          t.Timestamp.Format(dateLayout),
			Asset:         t.Asset,
			DeltaWeight:   t.DeltaWeight,
			EstimatedCost: t.EstimatedCost,
		}
	}
	return gocsv.Marshal(&rows, w)
}

type pairTradeRow struct {
	Entry       string  `csv:"entry" json:"entry"`
	Exit        string  `csv:"exit" json:"exit"`
	Side        string  `csv:"side" json:"side"`
	EntrySpread float64 `csv:"entry_spread" json:"entry_spread"`
	ExitSpread  float64 `csv:"exit_spread" json:"exit_spread"`
	Periods     int     `csv:"periods" json:"periods"`
	PnL         float64 `csv:"pnl" json:"pnl"`
	TimedOut    bool    `csv:"timed_out" json:"timed_out"`
}

func pairTradeRows(trades []types.PairTrade) []pairTradeRow {
	rows := make([]pairTradeRow, len(trades))
	for i, t := range trades {
		rows[i] = pairTradeRow{
			Entry:       t.Entry.Format(dateLayout),
			Exit:        t.Exit.Format(dateLayout),
			Side:        t.Side.String(),
			EntrySpread: t.EntrySpread,
			ExitSpread:  t.ExitSpread,
			Periods:     t.Periods,
			PnL:         t.PnL,
			TimedOut:    t.TimedOut,
		}
	}
	return rows
}

// WritePairTradesCSV 写出配对交易记录
func WritePairTradesCSV(w io.Writer, trades []types.PairTrade) error {
	rows := pairTradeRows(trades)
	return gocsv.Marshal(&rows, w)
}

type pairStepRow struct {
	Date           string  `csv:"date"`
	PriceA         float64 `csv:"price_a"`
	PriceB         float64 `csv:"price_b"`
	Ready          bool    `csv:"ready"`
	HedgeRatio     float64 `csv:"hedge_ratio"`
	Spread         float64 `csv:"spread"`
	SpreadVariance float64 `csv:"spread_variance"`
	ZScore         string  `csv:"z_score"` // 不可计算时为空
	State          string  `csv:"state"`
	PnL            float64 `csv:"pnl"`
}

// WritePairStepsCSV 写出配对回测逐步记录: 价差估计, z分数, 状态和盈亏
func WritePairStepsCSV(w io.Writer, steps []types.PairStep) error {
	rows := make([]*pairStepRow, len(steps))
	for i, st := range steps {
		z := ""
		if !math.IsNaN(st.ZScore) {
			z = strconv.FormatFloat(st.ZScore, 'g', -1, 64)
		}
		rows[i] = &pairStepRow{
			Date:           st.Timestamp.Format(dateLayout),
			PriceA:         st.PriceA,
			PriceB:         st.PriceB,
			Ready:          st.Ready,
			HedgeRatio:     st.Spread.HedgeRatio,
			Spread:         st.Spread.Spread,
			SpreadVariance: st.Spread.SpreadVariance,
			ZScore:         z,
			State:          st.State.String(),
			PnL:            st.PnL,
		}
	}
	return gocsv.Marshal(&rows, w)
}

// WriteCSVFile 创建文件并用 write 写入内容
func WriteCSVFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
