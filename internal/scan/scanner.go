package scan

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/opsxjacky/walkforward-backtest/internal/pairs"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// Candidate 一个有序资产对的回测摘要
type Candidate struct {
	AssetA     string
	AssetB     string
	NTrades    int
	WinRate    float64 // 无交易时为NaN
	TotalPnL   float64
	AvgHolding float64 // 无交易时为NaN
	KPIs       types.KPIReport
}

// Scanner 对资产池中的全部有序资产对运行配对回测
type Scanner struct {
	backtester *pairs.Backtester
	workers    int
}

// New 创建扫描器, workers 小于1时按1处理
func New(backtester *pairs.Backtester, workers int) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{backtester: backtester, workers: workers}
}

// Pairs 资产池中所有 A != B 的有序资产对, 跳过不在面板中的资产
func Pairs(panel *types.PricePanel, universe []string) [][2]string {
	var present []string
	seen := make(map[string]bool)
	for _, s := range universe {
		if seen[s] {
			continue
		}
		seen[s] = true
		if !panel.Has(s) {
			log.Warn().Str("asset", s).Msg("asset not in price panel, skipped")
			continue
		}
		present = append(present, s)
	}

	out := make([][2]string, 0, len(present)*(len(present)-1))
	for _, a := range present {
		for _, b := range present {
			if a != b {
				out = append(out, [2]string{a, b})
			}
		}
	}
	return out
}

// Scan 并发回测全部资产对并排序
// 每个资产对各自创建估计器和信号, 结果写入独立下标; 数据质量错误只跳过该资产对
func (s *Scanner) Scan(ctx context.Context, panel *types.PricePanel, universe []string) ([]Candidate, error) {
	pairList := Pairs(panel, universe)
	slots := make([]*Candidate, len(pairList))

	log.Info().
		Int("assets", len(universe)).
		Int("pairs", len(pairList)).
		Int("workers", s.workers).
		Msg("scanning pairs")

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, pair := range pairList {
		eg.Go(func() error {
			res, err := s.backtester.WithAssets(pair[0], pair[1]).Run(ctx, panel)
			if errors.Is(err, types.ErrDataQuality) {
				log.Warn().Err(err).Str("pair", pair[0]+"/"+pair[1]).Msg("pair skipped")
				return nil
			}
			if err != nil {
				return err
			}
			slots[i] = summarize(res)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	Rank(out)
	return out, nil
}

func summarize(res *types.PairsResult) *Candidate {
	c := &Candidate{AssetA: res.AssetA, AssetB: res.AssetB, KPIs: res.KPIs}
	c.NTrades = len(res.Trades)
	c.WinRate = res.KPIs.Values[types.KPIWinRate]
	c.TotalPnL = res.KPIs.Values[types.KPITotalPnL]
	c.AvgHolding = res.KPIs.Values[types.KPIAvgHolding]
	return c
}

// Rank 按胜率降序、总盈亏降序原地排序; 胜率未定义的排在最后
func Rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		wi, wj := cands[i].WinRate, cands[j].WinRate
		if math.IsNaN(wi) != math.IsNaN(wj) {
			return math.IsNaN(wj)
		}
		if !math.IsNaN(wi) && wi != wj {
			return wi > wj
		}
		return cands[i].TotalPnL > cands[j].TotalPnL
	})
}

// candidateRow 排名CSV的一行
type candidateRow struct {
	AssetA     string `csv:"a"`
	AssetB     string `csv:"b"`
	NTrades    int    `csv:"n_trades"`
	WinRate    string `csv:"win_rate"`
	TotalPnL   string `csv:"total_pnl"`
	AvgHolding string `csv:"avg_holding_periods"`
}

// WriteCSV 输出排名, 未定义的值留空
func WriteCSV(w io.Writer, cands []Candidate) error {
	rows := make([]candidateRow, len(cands))
	for i, c := range cands {
		rows[i] = candidateRow{
			AssetA:     c.AssetA,
			AssetB:     c.AssetB,
			NTrades:    c.NTrades,
			WinRate:    formatValue(c.WinRate),
			TotalPnL:   formatValue(c.TotalPnL),
			AvgHolding: formatValue(c.AvgHolding),
		}
	}
	return gocsv.Marshal(&rows, w)
}

func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
