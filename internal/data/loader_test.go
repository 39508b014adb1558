package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

const longTable = `date,ticker,adj_close
2024-01-03,B,51
2024-01-02,A,100
2024-01-02,B,50
2024-01-03,A,101
2024-01-04,A,102
2024-01-04,B,
2024-01-05,A,103
2024-01-05,B,52
`

func TestLongCSVLoader_LoadPanel(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", longTable)
	panel, err := LoadPanel(NewLongCSVLoader(path), nil, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, panel.Assets())
	// 2024-01-04 的 B 价格为空, 该日期不在公共时间轴上
	require.Equal(t, 3, panel.Len())
	assert.Equal(t, date("2024-01-02"), panel.Timestamp(0))
	assert.Equal(t, date("2024-01-05"), panel.Timestamp(2))
	assert.Equal(t, []float64{100, 101, 103}, panel.Prices("A"))
	assert.Equal(t, []float64{50, 51, 52}, panel.Prices("B"))
}

func TestLongCSVLoader_FiltersSymbolsAndDates(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", longTable)
	obs, err := NewLongCSVLoader(path).LoadObservations([]string{"A"}, date("2024-01-03"), date("2024-01-04"))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "A", obs[0].Asset)
	assert.Equal(t, 101.0, obs[0].Price)
	assert.Equal(t, 102.0, obs[1].Price)
}

func TestLongCSVLoader_SchemaErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing column": "date,ticker,close\n2024-01-02,A,1\n",
		"bad date":       "date,ticker,adj_close\nyesterday,A,1\n",
		"bad price":      "date,ticker,adj_close\n2024-01-02,A,abc\n",
		"empty ticker":   "date,ticker,adj_close\n2024-01-02,,1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.csv", body)
			_, err := NewLongCSVLoader(path).LoadObservations(nil, time.Time{}, time.Time{})
			assert.ErrorIs(t, err, types.ErrSchema)
		})
	}

	_, err := NewLongCSVLoader(filepath.Join(dir, "absent.csv")).LoadObservations(nil, time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestLoadPanel_DuplicateDateIsDataQuality(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dup.csv", "date,ticker,adj_close\n2024-01-02,A,1\n2024-01-02,A,2\n")
	_, err := LoadPanel(NewLongCSVLoader(path), nil, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, types.ErrDataQuality)
}

func TestLoadPanel_MissingSymbol(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", longTable)
	_, err := LoadPanel(NewLongCSVLoader(path), []string{"A", "Z"}, time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SPY.csv", "Date,Open,Close,Adj Close\n2024/01/03,1,11,10.5\n2024/01/02,1,10,9.5\n2024/01/04,1,12,\n")
	writeFile(t, dir, "TLT.csv", "date,close\n2024-01-02,90\n2024-01-03,91\n2024-01-04,92\n")

	loader := NewDirLoader(dir)
	symbols, err := loader.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "TLT"}, symbols)

	panel, err := LoadPanel(loader, nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 3, panel.Len())
	// 复权价为空时回退到收盘价
	assert.Equal(t, []float64{9.5, 10.5, 12}, panel.Prices("SPY"))
	assert.Equal(t, []float64{90, 91, 92}, panel.Prices("TLT"))
}

func TestDirLoader_MissingPriceColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "X.csv", "Date,Volume\n2024-01-02,5\n")
	_, err := NewDirLoader(dir).LoadObservations([]string{"X"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, types.ErrSchema)
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2024-01-02", "")
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-02"), from)
	assert.True(t, to.IsZero())

	_, _, err = ParseDateRange("2024-02-01", "2024-01-01")
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, _, err = ParseDateRange("soon", "")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestParseDate_Formats(t *testing.T) {
	for _, s := range []string{"2024-01-02", "2024/01/02", "01/02/2024", "2024-01-02 00:00:00"} {
		got, err := parseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, date("2024-01-02"), got, s)
	}
}
