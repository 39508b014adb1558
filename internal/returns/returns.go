package returns

import (
	"fmt"
	"math"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// Calculator 收益率计算器
type Calculator struct {
	Mode types.ReturnMode
}

// New 创建收益率计算器, 空模式按简单收益率处理
func New(mode types.ReturnMode) (*Calculator, error) {
	switch mode {
	case "":
		mode = types.ReturnSimple
	case types.ReturnSimple, types.ReturnLog:
	default:
		return nil, types.NewConfigurationError("return_mode", "unknown mode %q (allowed: simple|log)", mode)
	}
	return &Calculator{Mode: mode}, nil
}

// Return 两个价格之间的单期收益率
func (c *Calculator) Return(prev, cur float64) float64 {
	if c.Mode == types.ReturnLog {
		return math.Log(cur / prev)
	}
	return cur/prev - 1
}

// Growth 收益率对应的复利增长因子
func (c *Calculator) Growth(r float64) float64 {
	if c.Mode == types.ReturnLog {
		return math.Exp(r)
	}
	return 1 + r
}

// Returns 资产的完整收益率序列, 长度为价格数减一
func (c *Calculator) Returns(panel *types.PricePanel, asset string) (types.Series, error) {
	if !panel.Has(asset) {
		return types.Series{}, fmt.Errorf("asset %s not in price panel", asset)
	}
	window, err := c.Window(panel, []string{asset}, 0, panel.Len()-1)
	if err != nil {
		return types.Series{}, err
	}
	idx := panel.Timestamps()[1:]
	return types.NewSeries(idx, window[asset]), nil
}

// Window 计算价格步 from->from+1 ... to-1->to 的收益率
// 任何非有限价格或收益率都返回DataQualityError
func (c *Calculator) Window(panel *types.PricePanel, assets []string, from, to int) (map[string][]float64, error) {
	if from < 0 || to >= panel.Len() || from > to {
		return nil, fmt.Errorf("return window [%d,%d] out of range for %d prices", from, to, panel.Len())
	}

	out := make(map[string][]float64, len(assets))
	for _, asset := range assets {
		if err := checkPrice(panel, asset, from); err != nil {
			return nil, err
		}
		rets := make([]float64, 0, to-from)
		for i := from + 1; i <= to; i++ {
			if err := checkPrice(panel, asset, i); err != nil {
				return nil, err
			}
			r := c.Return(panel.Price(asset, i-1), panel.Price(asset, i))
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, &types.DataQualityError{
					Timestamp: panel.Timestamp(i),
					Asset:     asset,
					Value:     r,
					Reason:    "non-finite return",
				}
			}
			rets = append(rets, r)
		}
		out[asset] = rets
	}
	return out, nil
}

func checkPrice(panel *types.PricePanel, asset string, i int) error {
	p := panel.Price(asset, i)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return &types.DataQualityError{
			Timestamp: panel.Timestamp(i),
			Asset:     asset,
			Value:     p,
			Reason:    "non-finite price",
		}
	}
	return nil
}
