package scan

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/walkforward-backtest/internal/pairs"
	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// universePanel 三个资产, 两两之间存在均值回复的价差
func universePanel(t *testing.T) *types.PricePanel {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	day0 := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	var obs []types.Observation
	for i := 0; i < 300; i++ {
		ts := day0.AddDate(0, 0, i)
		base := 100 + 10*math.Sin(float64(i)/25)
		prices := map[string]float64{
			"AAA": base + 2*math.Sin(float64(i)/3) + rng.NormFloat64()*0.2,
			"BBB": 0.5*base + math.Cos(float64(i)/4) + rng.NormFloat64()*0.2,
			"CCC": 2*base + 3*math.Sin(float64(i)/5) + rng.NormFloat64()*0.2,
		}
		for asset, p := range prices {
			obs = append(obs, types.Observation{Timestamp: ts, Asset: asset, Price: p})
		}
	}
	panel, err := types.NewPricePanel(obs)
	require.NoError(t, err)
	return panel
}

func scanBacktester(t *testing.T) *pairs.Backtester {
	t.Helper()
	cfg := types.DefaultPairsConfig()
	cfg.EstimatorMode = types.EstimatorRollingOLS
	cfg.OLSWindow = 30
	cfg.SpreadLookback = 20
	cfg.MinPeriods = 10
	cfg.EntryThreshold = 1.5
	cfg.ExitThreshold = 0.3
	cfg.MaxHoldingPeriods = 15
	bt, err := pairs.NewBacktester(cfg, types.DefaultRiskConfig(), nil)
	require.NoError(t, err)
	return bt
}

func TestPairs_OrderedAndFiltered(t *testing.T) {
	panel := universePanel(t)
	got := Pairs(panel, []string{"AAA", "BBB", "ZZZ", "AAA"})
	assert.Equal(t, [][2]string{{"AAA", "BBB"}, {"BBB", "AAA"}}, got)

	assert.Empty(t, Pairs(panel, []string{"AAA"}))
}

func TestScan_AllOrderedPairsRanked(t *testing.T) {
	panel := universePanel(t)
	cands, err := New(scanBacktester(t), 4).Scan(context.Background(), panel, []string{"AAA", "BBB", "CCC"})
	require.NoError(t, err)
	require.Len(t, cands, 6)

	seen := make(map[string]bool)
	for _, c := range cands {
		seen[c.AssetA+"/"+c.AssetB] = true
		assert.Equal(t, float64(c.NTrades), c.KPIs.Values[types.KPITrades])
	}
	assert.Len(t, seen, 6)

	for i := 1; i < len(cands); i++ {
		prev, cur := cands[i-1], cands[i]
		if math.IsNaN(prev.WinRate) {
			assert.True(t, math.IsNaN(cur.WinRate), "undefined win rates sort last")
			continue
		}
		if !math.IsNaN(cur.WinRate) {
			assert.GreaterOrEqual(t, prev.WinRate, cur.WinRate)
		}
	}
}

func TestScan_WorkerCountDoesNotChangeResults(t *testing.T) {
	panel := universePanel(t)
	universe := []string{"AAA", "BBB", "CCC"}
	bt := scanBacktester(t)

	serial, err := New(bt, 1).Scan(context.Background(), panel, universe)
	require.NoError(t, err)
	parallel, err := New(bt, 6).Scan(context.Background(), panel, universe)
	require.NoError(t, err)

	require.Len(t, parallel, len(serial))
	for i := range serial {
		assert.Equal(t, serial[i].AssetA, parallel[i].AssetA)
		assert.Equal(t, serial[i].AssetB, parallel[i].AssetB)
		assert.Equal(t, serial[i].NTrades, parallel[i].NTrades)
		assert.Equal(t, serial[i].TotalPnL, parallel[i].TotalPnL)
	}
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(scanBacktester(t), 2).Scan(ctx, universePanel(t), []string{"AAA", "BBB", "CCC"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRank(t *testing.T) {
	cands := []Candidate{
		{AssetA: "undefined", WinRate: math.NaN(), TotalPnL: 100},
		{AssetA: "low", WinRate: 0.4, TotalPnL: 50},
		{AssetA: "high-small", WinRate: 0.8, TotalPnL: 1},
		{AssetA: "high-big", WinRate: 0.8, TotalPnL: 5},
	}
	Rank(cands)
	var order []string
	for _, c := range cands {
		order = append(order, c.AssetA)
	}
	assert.Equal(t, []string{"high-big", "high-small", "low", "undefined"}, order)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Candidate{
		{AssetA: "KO", AssetB: "PEP", NTrades: 4, WinRate: 0.75, TotalPnL: 1.5, AvgHolding: 6},
		{AssetA: "PEP", AssetB: "KO", WinRate: math.NaN(), AvgHolding: math.NaN()},
	}))
	rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, rows, 3)
	assert.Equal(t, "a,b,n_trades,win_rate,total_pnl,avg_holding_periods", rows[0])
	assert.Equal(t, "KO,PEP,4,0.75,1.5,6", rows[1])
	assert.Equal(t, "PEP,KO,0,,0,", rows[2])
}
