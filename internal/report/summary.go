package report

import (
	"fmt"
	"io"
	"math"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// PrintSummary 打印组合回测摘要
func PrintSummary(w io.Writer, strategyName string, res *types.BacktestResult) {
	if res == nil {
		fmt.Fprintln(w, "No results available")
		return
	}

	fmt.Fprintln(w, "\n========== Backtest Summary ==========")
	fmt.Fprintf(w, "Strategy: %s\n", strategyName)
	fmt.Fprintf(w, "Period: %s to %s\n", res.StartDate.Format(dateLayout), res.EndDate.Format(dateLayout))
	fmt.Fprintf(w, "Windows: %d (size %d, step %d)\n", len(res.Equity), res.Config.WindowSize, res.Config.StepSize)
	fmt.Fprintf(w, "Initial Capital: $%.2f\n", res.Config.InitialCapital)
	fmt.Fprintf(w, "Final Value: $%.2f\n", res.FinalValue)
	fmt.Fprintf(w, "Total Return: %.2f%%\n", res.TotalReturn*100)
	fmt.Fprintf(w, "Rebalances: %d, Trades: %d\n", res.Rebalances, len(res.Trades))
	fmt.Fprintf(w, "Total Cost: $%.2f\n", res.TotalCost)
	if res.Aborted {
		fmt.Fprintln(w, "Run aborted before the last window")
	}
	PrintKPIs(w, res.KPIs)
	fmt.Fprintln(w, "========================================")
}

// PrintPairsSummary 打印配对回测摘要
func PrintPairsSummary(w io.Writer, res *types.PairsResult) {
	if res == nil {
		fmt.Fprintln(w, "No results available")
		return
	}

	fmt.Fprintln(w, "\n========== Pairs Summary ==========")
	fmt.Fprintf(w, "Pair: %s / %s\n", res.AssetA, res.AssetB)
	fmt.Fprintf(w, "Steps: %d, Trades: %d\n", len(res.Steps), len(res.Trades))
	if res.Aborted {
		fmt.Fprintln(w, "Run aborted before the last step")
	}
	PrintKPIs(w, res.KPIs)
	fmt.Fprintln(w, "===================================")
}

// PrintKPIs 逐行打印指标, 未定义的指标附带原因
func PrintKPIs(w io.Writer, kpis types.KPIReport) {
	for _, name := range kpis.Names() {
		v := kpis.Values[name]
		if reason, undefined := kpis.Undefined[name]; undefined || math.IsNaN(v) {
			fmt.Fprintf(w, "  %-20s n/a (%s)\n", name, reason)
			continue
		}
		fmt.Fprintf(w, "  %-20s %.6f\n", name, v)
	}
}
