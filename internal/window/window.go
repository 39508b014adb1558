package window

import (
	"iter"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// Generator 滚动窗口生成器
// 从索引0开始, 每次前进step, 直到 start+size > n; 不足一个完整窗口的尾部被丢弃
type Generator struct {
	n    int
	size int
	step int
}

// New 创建窗口生成器
func New(n, size, step int) (*Generator, error) {
	if size < 2 {
		return nil, types.NewConfigurationError("window_size", "must be >= 2, got %d", size)
	}
	if step < 1 {
		return nil, types.NewConfigurationError("step_size", "must be >= 1, got %d", step)
	}
	if size > n {
		return nil, types.NewConfigurationError("window_size", "window %d exceeds series length %d", size, n)
	}
	return &Generator{n: n, size: size, step: step}, nil
}

// All 惰性窗口序列, 每次遍历都从头开始
func (g *Generator) All() iter.Seq[types.Window] {
	return func(yield func(types.Window) bool) {
		for start := 0; start+g.size <= g.n; start += g.step {
			if !yield(types.Window{Start: start, End: start + g.size}) {
				return
			}
		}
	}
}

// Windows 全部窗口
func (g *Generator) Windows() []types.Window {
	out := make([]types.Window, 0, g.Count())
	for w := range g.All() {
		out = append(out, w)
	}
	return out
}

// Count 窗口数量
func (g *Generator) Count() int {
	return (g.n-g.size)/g.step + 1
}
