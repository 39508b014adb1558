package types

import (
	"fmt"
	"sort"
	"time"
)

// Observation 单条价格观测 (时间, 资产, 价格)
type Observation struct {
	Timestamp time.Time
	Asset     string
	Price     float64
}

// PricePanel 已校验的对齐价格面板 (只读)
// 时间轴为所有资产共有的时间戳, 价格按资产列存储
type PricePanel struct {
	assets     []string
	timestamps []time.Time
	prices     map[string][]float64
}

// NewPricePanel 由观测序列构建价格面板
// 每个资产的时间戳必须严格递增, 价格必须为正; 只保留所有资产都有报价的时间戳
func NewPricePanel(obs []Observation) (*PricePanel, error) {
	if len(obs) == 0 {
		return nil, &DataQualityError{Reason: "empty price panel"}
	}

	byAsset := make(map[string]map[int64]float64)
	last := make(map[string]time.Time)
	for _, o := range obs {
		if o.Asset == "" {
			return nil, &DataQualityError{Timestamp: o.Timestamp, Reason: "missing asset id"}
		}
		if prev, ok := last[o.Asset]; ok && !o.Timestamp.After(prev) {
			return nil, &DataQualityError{
				Timestamp: o.Timestamp,
				Asset:     o.Asset,
				Value:     o.Price,
				Reason:    fmt.Sprintf("timestamp not after previous %s", prev.Format(time.RFC3339)),
			}
		}
		// NaN/Inf 留给回测在窗口内带上下文报错
		if o.Price <= 0 {
			return nil, &DataQualityError{Timestamp: o.Timestamp, Asset: o.Asset, Value: o.Price, Reason: "price must be positive"}
		}
		last[o.Asset] = o.Timestamp
		if byAsset[o.Asset] == nil {
			byAsset[o.Asset] = make(map[int64]float64)
		}
		byAsset[o.Asset][o.Timestamp.UnixNano()] = o.Price
	}

	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	// 取所有资产的公共时间戳
	var common []int64
	for ts := range byAsset[assets[0]] {
		shared := true
		for _, a := range assets[1:] {
			if _, ok := byAsset[a][ts]; !ok {
				shared = false
				break
			}
		}
		if shared {
			common = append(common, ts)
		}
	}
	if len(common) == 0 {
		return nil, &DataQualityError{Reason: "assets share no common timestamps"}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })

	p := &PricePanel{
		assets:     assets,
		timestamps: make([]time.Time, len(common)),
		prices:     make(map[string][]float64, len(assets)),
	}
	for i, ts := range common {
		p.timestamps[i] = time.Unix(0, ts).UTC()
	}
	for _, a := range assets {
		col := make([]float64, len(common))
		for i, ts := range common {
			col[i] = byAsset[a][ts]
		}
		p.prices[a] = col
	}
	return p, nil
}

// Assets 资产列表 (已排序)
func (p *PricePanel) Assets() []string {
	out := make([]string, len(p.assets))
	copy(out, p.assets)
	return out
}

// Len 时间点数量
func (p *PricePanel) Len() int {
	return len(p.timestamps)
}

// Timestamp 第i个时间点
func (p *PricePanel) Timestamp(i int) time.Time {
	return p.timestamps[i]
}

// Timestamps 全部时间点
func (p *PricePanel) Timestamps() []time.Time {
	out := make([]time.Time, len(p.timestamps))
	copy(out, p.timestamps)
	return out
}

// Has 是否包含资产
func (p *PricePanel) Has(asset string) bool {
	_, ok := p.prices[asset]
	return ok
}

// Price 资产在第i个时间点的价格
func (p *PricePanel) Price(asset string, i int) float64 {
	return p.prices[asset][i]
}

// Prices 资产价格序列副本
func (p *PricePanel) Prices(asset string) []float64 {
	col := p.prices[asset]
	out := make([]float64, len(col))
	copy(out, col)
	return out
}

// Column 以Series形式返回资产价格
func (p *PricePanel) Column(asset string) Series {
	return NewSeries(p.Timestamps(), p.Prices(asset))
}

// Window 半开区间 [Start, End) 的时间窗口
type Window struct {
	Start int
	End   int
}

// Size 窗口长度
func (w Window) Size() int {
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start, w.End)
}

// ReturnMode 收益率计算方式
type ReturnMode string

const (
	ReturnSimple ReturnMode = "simple"
	ReturnLog    ReturnMode = "log"
)

// EstimatorMode 价差估计方式
type EstimatorMode string

const (
	EstimatorRecursive  EstimatorMode = "recursive"
	EstimatorRollingOLS EstimatorMode = "rolling_ols"
)

// RebalanceMode 再平衡策略类型
type RebalanceMode string

const (
	RebalanceDrift    RebalanceMode = "drift"
	RebalancePeriodic RebalanceMode = "periodic"
)
