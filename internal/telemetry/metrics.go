// Package telemetry Prometheus 运行指标
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 回测运行指标; nil 接收者上的方法均为空操作
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	WindowsProcessed prometheus.Counter
	Rebalances       prometheus.Counter
	PairTrades       *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Completed backtest runs by kind and result",
			},
			[]string{"kind", "result"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Wall-clock duration of a backtest run",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"kind"},
		),
		WindowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_windows_processed_total",
			Help: "Walk-forward windows processed",
		}),
		Rebalances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_rebalances_total",
			Help: "Rebalance instructions executed",
		}),
		PairTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_pair_trades_total",
				Help: "Closed pair trades by side",
			},
			[]string{"side"},
		),
	}
	m.Registry.MustRegister(m.RunsTotal, m.RunDuration, m.WindowsProcessed, m.Rebalances, m.PairTrades)
	return m
}

// ObserveRun 记录一次运行的结果和耗时
func (m *Metrics) ObserveRun(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RunsTotal.WithLabelValues(kind, result).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// WindowProcessed 窗口计数加一
func (m *Metrics) WindowProcessed() {
	if m == nil {
		return
	}
	m.WindowsProcessed.Inc()
}

// Rebalanced 再平衡计数加一
func (m *Metrics) Rebalanced() {
	if m == nil {
		return
	}
	m.Rebalances.Inc()
}

// PairTradeClosed 配对平仓计数
func (m *Metrics) PairTradeClosed(side string) {
	if m == nil {
		return
	}
	m.PairTrades.WithLabelValues(side).Inc()
}

// WriteTextfile 以文本格式写出全部指标
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
