package main

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsxjacky/walkforward-backtest/internal/data"
	"github.com/opsxjacky/walkforward-backtest/internal/report"
	"github.com/opsxjacky/walkforward-backtest/internal/store"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// runE 包装子命令, 出错时同样输出指标文件
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			if werr := a.writeMetrics(); werr != nil {
				log.Warn().Err(werr).Msg("metrics not written")
			}
		}
		return err
	}
}

// loader 按配置选择数据源: data_file 优先, 否则使用数据目录
func (a *app) loader() data.DataLoader {
	if a.cfg.Backtest.DataFile != "" {
		return data.NewLongCSVLoader(a.cfg.Backtest.DataFile)
	}
	return data.NewDirLoader(a.cfg.GetDataDir())
}

// loadPanel 加载价格面板, symbols 为空时加载全部资产
func (a *app) loadPanel(symbols []string) (*types.PricePanel, error) {
	start, end, err := data.ParseDateRange(a.cfg.Backtest.StartDate, a.cfg.Backtest.EndDate)
	if err != nil {
		return nil, err
	}
	loader := a.loader()
	panel, err := data.LoadPanel(loader, symbols, start, end)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("source", loader.SourceType()).
		Strs("assets", panel.Assets()).
		Int("timestamps", panel.Len()).
		Msg("price panel loaded")
	return panel, nil
}

// outputPath 输出目录下的文件路径
func (a *app) outputPath(name string) string {
	return filepath.Join(a.cfg.GetOutputPath(), name)
}

// writeCurve 按输出配置写净值CSV和图表
func (a *app) writeCurve(prefix, title string, curve types.EquityCurve) error {
	if a.cfg.Output.CSV {
		if err := report.WriteCSVFile(a.outputPath(prefix+"_equity.csv"), func(w io.Writer) error {
			return report.WriteEquityCSV(w, curve)
		}); err != nil {
			return err
		}
	}
	if a.cfg.Output.Charts {
		if len(curve) < 2 {
			log.Warn().Int("points", len(curve)).Msg("too few equity points for charts")
			return nil
		}
		if err := report.WriteCharts(a.outputPath(prefix), title, curve); err != nil {
			return err
		}
	}
	return nil
}

// saveRun 配置了 dsn 时把运行写入结果库
func (a *app) saveRun(ctx context.Context, kind, name string, params any, finalValue float64, aborted bool, kpis types.KPIReport) error {
	if a.cfg.Store.DSN == "" {
		return nil
	}
	st, err := store.Open(a.cfg.Store.Driver, a.cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	// 中断的运行也要落库, 不使用已取消的 ctx
	ctx = context.WithoutCancel(ctx)
	if err := st.InitSchema(ctx); err != nil {
		return err
	}
	encoded, err := store.EncodeParams(params)
	if err != nil {
		return err
	}
	id, err := st.SaveRun(ctx, store.Run{
		Kind:       kind,
		Name:       name,
		Params:     encoded,
		FinalValue: sql.NullFloat64{Float64: finalValue, Valid: true},
		Aborted:    aborted,
	}, kpis)
	if err != nil {
		return err
	}
	log.Info().Str("run_id", id).Str("kind", kind).Msg("run stored")
	return nil
}
