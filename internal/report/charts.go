package report

import (
	"fmt"
	"math"

	"github.com/vicanso/go-charts/v2"

	"github.com/opsxjacky/walkforward-backtest/internal/risk"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// splitNumber x轴标签数量
func splitNumber(n int) int {
	split := 6
	if n <= 30 {
		split = n / 3
		if split < 3 {
			split = 3
		}
	}
	return split
}

func xLabels(curve types.EquityCurve) []string {
	labels := make([]string, len(curve))
	for i, p := range curve {
		labels[i] = p.Timestamp.Format(dateLayout)
	}
	return labels
}

func bounds(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.01, 0.01)
	}
	return lo - pad, hi + pad
}

func renderLine(title string, labels []string, values []float64) ([]byte, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("need at least 2 points to chart, got %d", len(values))
	}
	yMin, yMax := bounds(values)
	p, err := charts.LineRender(
		[][]float64{values},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNumber(len(labels)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// EquityChart 净值曲线PNG
func EquityChart(title string, curve types.EquityCurve) ([]byte, error) {
	return renderLine(title+" • equity", xLabels(curve), curve.Values())
}

// DrawdownChart 回撤曲线PNG (百分比)
func DrawdownChart(title string, curve types.EquityCurve) ([]byte, error) {
	dd := risk.Drawdowns(curve.Values())
	for i := range dd {
		dd[i] *= 100
	}
	return renderLine(title+" • drawdown %", xLabels(curve), dd)
}

// WriteCharts 把净值和回撤图写到 prefix_equity.png / prefix_drawdown.png
func WriteCharts(prefix, title string, curve types.EquityCurve) error {
	eq, err := EquityChart(title, curve)
	if err != nil {
		return err
	}
	if err := writeFile(prefix+"_equity.png", eq); err != nil {
		return err
	}
	dd, err := DrawdownChart(title, curve)
	if err != nil {
		return err
	}
	return writeFile(prefix+"_drawdown.png", dd)
}
