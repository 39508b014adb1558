package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsxjacky/walkforward-backtest/internal/report"
	"github.com/opsxjacky/walkforward-backtest/internal/scan"
)

func newScanCmd(a *app) *cobra.Command {
	var universe, dataFile string
	var workers, top int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Backtest every ordered pair of a universe and rank them",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if universe != "" {
				a.cfg.Scan.Universe = splitList(universe)
			}
			if dataFile != "" {
				a.cfg.Backtest.DataFile = dataFile
			}
			if workers > 0 {
				a.cfg.Scan.Workers = workers
			}
			if top > 0 {
				a.cfg.Scan.Top = top
			}
			return a.runScan(cmd)
		}),
	}
	cmd.Flags().StringVar(&universe, "universe", "", "comma separated tickers (default: every asset in the data)")
	cmd.Flags().StringVar(&dataFile, "data", "", "long CSV with columns date,ticker,adj_close")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent pair backtests")
	cmd.Flags().IntVar(&top, "top", 0, "number of ranked pairs to print")
	return cmd
}

func (a *app) runScan(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := a.cfg

	bt, err := a.newPairsBacktester()
	if err != nil {
		return err
	}
	// 公共时间轴只在资产池内对齐; 未配置资产池时使用全部资产
	panel, err := a.loadPanel(cfg.Scan.Universe)
	if err != nil {
		return err
	}
	universe := cfg.Scan.Universe
	if len(universe) == 0 {
		universe = panel.Assets()
	}

	cands, err := scan.New(bt, cfg.Scan.Workers).Scan(ctx, panel, universe)
	if err != nil {
		return err
	}
	printRanking(os.Stdout, cands, cfg.Scan.Top)

	if err := report.WriteCSVFile(a.outputPath("scan.csv"), func(w io.Writer) error {
		return scan.WriteCSV(w, cands)
	}); err != nil {
		return err
	}

	if len(cands) > 0 {
		best := cands[0]
		return a.saveRun(ctx, "scan", best.AssetA+"/"+best.AssetB, cfg.Scan, cfg.Pairs.Capital+best.TotalPnL, false, best.KPIs)
	}
	return nil
}

func printRanking(w io.Writer, cands []scan.Candidate, top int) {
	fmt.Fprintln(w, "\n========== Pair Ranking ==========")
	fmt.Fprintf(w, "%-4s %-16s %8s %10s %12s %10s\n", "#", "pair", "trades", "win_rate", "total_pnl", "avg_hold")
	for i, c := range cands {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(w, "%-4d %-16s %8d %10s %12.4f %10s\n",
			i+1, c.AssetA+"/"+c.AssetB, c.NTrades, percent(c.WinRate), c.TotalPnL, number(c.AvgHolding))
	}
	fmt.Fprintln(w, "==================================")
}

func percent(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

func number(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
