package types

import (
	"sort"
	"time"
)

// Series 按时间排序的数值序列, 支持按时间戳对齐的逐元素运算
type Series struct {
	Index  []time.Time
	Values []float64
}

// NewSeries 创建序列, index 与 values 长度必须一致
func NewSeries(index []time.Time, values []float64) Series {
	if len(index) != len(values) {
		panic("types: series index and values differ in length")
	}
	return Series{Index: index, Values: values}
}

// Len 序列长度
func (s Series) Len() int {
	return len(s.Values)
}

// Last 最后一个值
func (s Series) Last() (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	return s.Values[len(s.Values)-1], true
}

// Add 按时间戳并集对齐相加, 缺失一侧按0处理
func (s Series) Add(other Series) Series {
	vals := make(map[int64]float64, len(s.Values)+len(other.Values))
	keys := make(map[int64]time.Time, len(s.Values)+len(other.Values))
	for i, t := range s.Index {
		k := t.UnixNano()
		vals[k] += s.Values[i]
		keys[k] = t
	}
	for i, t := range other.Index {
		k := t.UnixNano()
		vals[k] += other.Values[i]
		keys[k] = t
	}

	order := make([]int64, 0, len(keys))
	for k := range keys {
		order = append(order, k)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := Series{Index: make([]time.Time, len(order)), Values: make([]float64, len(order))}
	for i, k := range order {
		out.Index[i] = keys[k]
		out.Values[i] = vals[k]
	}
	return out
}

// Mul 按时间戳交集对齐相乘
func (s Series) Mul(other Series) Series {
	lookup := make(map[int64]float64, len(other.Values))
	for i, t := range other.Index {
		lookup[t.UnixNano()] = other.Values[i]
	}
	out := Series{Index: make([]time.Time, 0, len(s.Values)), Values: make([]float64, 0, len(s.Values))}
	for i, t := range s.Index {
		if v, ok := lookup[t.UnixNano()]; ok {
			out.Index = append(out.Index, t)
			out.Values = append(out.Values, s.Values[i]*v)
		}
	}
	return out
}

// Scale 乘以常数
func (s Series) Scale(k float64) Series {
	out := Series{Index: s.Index, Values: make([]float64, len(s.Values))}
	for i, v := range s.Values {
		out.Values[i] = v * k
	}
	return out
}

// Lag 值向后平移一位, 丢弃第一个时间点
func (s Series) Lag() Series {
	if len(s.Values) < 2 {
		return Series{}
	}
	return Series{Index: s.Index[1:], Values: s.Values[:len(s.Values)-1]}
}

// Diff 相邻差分, 长度减一
func (s Series) Diff() Series {
	if len(s.Values) < 2 {
		return Series{}
	}
	out := Series{Index: s.Index[1:], Values: make([]float64, len(s.Values)-1)}
	for i := 1; i < len(s.Values); i++ {
		out.Values[i-1] = s.Values[i] - s.Values[i-1]
	}
	return out
}

// CumSum 累计和
func (s Series) CumSum() Series {
	out := Series{Index: s.Index, Values: make([]float64, len(s.Values))}
	acc := 0.0
	for i, v := range s.Values {
		acc += v
		out.Values[i] = acc
	}
	return out
}
