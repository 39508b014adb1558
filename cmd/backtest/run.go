package main

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsxjacky/walkforward-backtest/internal/cost"
	"github.com/opsxjacky/walkforward-backtest/internal/engine"
	"github.com/opsxjacky/walkforward-backtest/internal/report"
	"github.com/opsxjacky/walkforward-backtest/internal/strategy"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

func newRunCmd(a *app) *cobra.Command {
	var dataFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the walk-forward portfolio backtest",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if dataFile != "" {
				a.cfg.Backtest.DataFile = dataFile
			}
			return a.runPortfolio(cmd)
		}),
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "long CSV with columns date,ticker,adj_close")
	return cmd
}

func (a *app) runPortfolio(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := a.cfg

	panel, err := a.loadPanel(cfg.Symbols())
	if err != nil {
		return err
	}
	// 未配置目标权重时对全部资产等权
	if len(cfg.Portfolio.TargetWeights) == 0 {
		assets := panel.Assets()
		cfg.Portfolio.TargetWeights = make(map[string]float64, len(assets))
		for _, asset := range assets {
			cfg.Portfolio.TargetWeights[asset] = 1.0 / float64(len(assets))
		}
		log.Info().Int("assets", len(assets)).Msg("no target weights configured, using equal weights")
	}
	if err := cfg.ValidatePortfolio(); err != nil {
		return err
	}

	costModel := cost.NewFlatCostModel(cfg.ToCostConfig())
	policy, err := strategy.New(cfg.ToStrategyConfig(), costModel)
	if err != nil {
		return err
	}

	eng := engine.New(cfg.ToBacktestConfig())
	eng.SetStrategy(policy)
	eng.SetRiskConfig(cfg.ToRiskConfig())
	eng.SetMetrics(a.metrics)

	res, runErr := eng.Run(ctx, panel)
	if res == nil {
		return runErr
	}
	eng.PrintSummary(os.Stdout)

	if err := a.writePortfolioOutputs(policy.Name(), eng, res); err != nil {
		return err
	}
	if err := a.saveRun(ctx, "portfolio", policy.Name(), cfg, res.FinalValue, res.Aborted, res.KPIs); err != nil {
		return err
	}
	if runErr != nil {
		log.Warn().Err(runErr).Msg("run interrupted, partial results written")
	}
	return runErr
}

func (a *app) writePortfolioOutputs(name string, eng *engine.BacktestEngine, res *types.BacktestResult) error {
	if a.cfg.Output.JSON {
		if err := eng.ExportResults(a.outputPath("portfolio_result.json")); err != nil {
			return err
		}
	}
	if a.cfg.Output.CSV {
		if err := report.WriteCSVFile(a.outputPath("portfolio_trades.csv"), func(w io.Writer) error {
			return report.WriteTradesCSV(w, res.Trades)
		}); err != nil {
			return err
		}
	}
	return a.writeCurve("portfolio", name, res.Equity)
}
