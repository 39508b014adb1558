package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsxjacky/walkforward-backtest/internal/config"
	"github.com/opsxjacky/walkforward-backtest/internal/telemetry"
)

// app 命令之间共享的状态
type app struct {
	configPath string
	logLevel   string
	metricsOut string

	cfg     *config.Config
	metrics *telemetry.Metrics
}

// Execute 运行根命令
func Execute(ctx context.Context) error {
	return newRootCmd(&app{}).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "backtest",
		Short:         "Walk-forward portfolio and pairs backtester",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(a.logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", a.logLevel, err)
			}
			zerolog.SetGlobalLevel(level)

			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.metrics = telemetry.NewMetrics()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.metricsOut, "metrics-out", "", "write Prometheus metrics in textfile format to this path")

	root.AddCommand(newRunCmd(a), newPairsCmd(a), newScanCmd(a))
	return root
}

// writeMetrics 输出指标文件; RunE 失败时 cobra 不会调用 PostRun, 因此命令出错路径也会调用这里
func (a *app) writeMetrics() error {
	if a.metricsOut == "" || a.metrics == nil {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.metricsOut); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	log.Debug().Str("path", a.metricsOut).Msg("metrics written")
	return nil
}
