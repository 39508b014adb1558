package main

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/internal/pairs"
	"github.com/opsxjacky/walkforward-backtest/internal/report"
)

func newPairsCmd(a *app) *cobra.Command {
	var assetA, assetB, dataFile string
	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "Backtest one pair with the spread estimator and z-score signal",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if assetA != "" {
				a.cfg.Pairs.AssetA = assetA
			}
			if assetB != "" {
				a.cfg.Pairs.AssetB = assetB
			}
			if dataFile != "" {
				a.cfg.Backtest.DataFile = dataFile
			}
			return a.runPairs(cmd)
		}),
	}
	cmd.Flags().StringVar(&assetA, "a", "", "first asset (priced against the second)")
	cmd.Flags().StringVar(&assetB, "b", "", "second asset (hedge leg)")
	cmd.Flags().StringVar(&dataFile, "data", "", "long CSV with columns date,ticker,adj_close")
	return cmd
}

// newPairsBacktester 按配置创建配对回测器
func (a *app) newPairsBacktester() (*pairs.Backtester, error) {
	bt, err := pairs.NewBacktester(a.cfg.ToPairsConfig(), a.cfg.ToRiskConfig(), cost.NewFlatCostModel(a.cfg.ToCostConfig()))
	if err != nil {
		return nil, err
	}
	bt.SetMetrics(a.metrics)
	return bt, nil
}

func (a *app) runPairs(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := a.cfg

	bt, err := a.newPairsBacktester()
	if err != nil {
		return err
	}
	panel, err := a.loadPanel([]string{cfg.Pairs.AssetA, cfg.Pairs.AssetB})
	if err != nil {
		return err
	}

	res, runErr := bt.Run(ctx, panel)
	if res == nil {
		return runErr
	}
	report.PrintPairsSummary(os.Stdout, res)

	name := res.AssetA + "_" + res.AssetB
	if cfg.Output.JSON {
		if err := report.ExportPairsResult(a.outputPath(name+"_pairs.json"), res); err != nil {
			return err
		}
	}
	if cfg.Output.CSV {
		if err := report.WriteCSVFile(a.outputPath(name+"_pair_trades.csv"), func(w io.Writer) error {
			return report.WritePairTradesCSV(w, res.Trades)
		}); err != nil {
			return err
		}
		if err := report.WriteCSVFile(a.outputPath(name+"_pair_steps.csv"), func(w io.Writer) error {
			return report.WritePairStepsCSV(w, res.Steps)
		}); err != nil {
			return err
		}
	}
	if err := a.writeCurve(name, res.AssetA+"/"+res.AssetB, res.Equity); err != nil {
		return err
	}

	final := cfg.Pairs.Capital
	if n := len(res.Equity); n > 0 {
		final = res.Equity[n-1].Value
	}
	if err := a.saveRun(ctx, "pairs", res.AssetA+"/"+res.AssetB, cfg.Pairs, final, res.Aborted, res.KPIs); err != nil {
		return err
	}
	if runErr != nil {
		log.Warn().Err(runErr).Msg("run interrupted, partial results written")
	}
	return runErr
}
