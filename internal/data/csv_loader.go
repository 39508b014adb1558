package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// DirLoader 目录数据加载器, 每个资产一个 <dir>/<SYMBOL>.csv 文件
type DirLoader struct {
	dataDir string
}

// NewDirLoader 创建目录加载器
func NewDirLoader(dataDir string) *DirLoader {
	return &DirLoader{dataDir: dataDir}
}

// SourceType 返回数据源类型
func (l *DirLoader) SourceType() string {
	return "dir:" + l.dataDir
}

// Symbols 目录中可用的资产 (按文件名)
func (l *DirLoader) Symbols() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dataDir, "*.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	sort.Strings(out)
	return out, nil
}

// LoadObservations 加载价格观测, symbols 为空时加载目录下全部文件
func (l *DirLoader) LoadObservations(symbols []string, start, end time.Time) ([]types.Observation, error) {
	if len(symbols) == 0 {
		all, err := l.Symbols()
		if err != nil {
			return nil, err
		}
		symbols = all
	}

	var result []types.Observation
	for _, symbol := range symbols {
		obs, err := l.loadSymbolData(symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to load data for %s: %w", symbol, err)
		}
		result = append(result, obs...)
	}
	return result, nil
}

// loadSymbolData 加载单个标的数据
func (l *DirLoader) loadSymbolData(symbol string, start, end time.Time) ([]types.Observation, error) {
	filePath := filepath.Join(l.dataDir, symbol+".csv")
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, &types.SchemaError{Source: filePath, Reason: fmt.Sprintf("failed to read CSV: %v", err)}
	}
	if len(records) < 2 {
		return nil, &types.SchemaError{Source: filePath, Reason: "CSV file has no data rows"}
	}

	// 解析表头，找到各列的索引
	colIndex := parseHeader(records[0])
	if _, ok := colIndex["date"]; !ok {
		return nil, &types.SchemaError{Source: filePath, Reason: "missing date column"}
	}
	_, hasAdj := colIndex["adj_close"]
	_, hasClose := colIndex["close"]
	if !hasAdj && !hasClose {
		return nil, &types.SchemaError{Source: filePath, Reason: "missing close or adj_close column"}
	}

	result := make([]types.Observation, 0, len(records)-1)
	skipped := 0
	for i := 1; i < len(records); i++ {
		obs, ok, err := parseRow(records[i], colIndex, symbol)
		if err != nil {
			return nil, &types.SchemaError{Source: filePath, Reason: fmt.Sprintf("line %d: %v", i+1, err)}
		}
		if !ok {
			skipped++
			continue
		}
		if inRange(obs.Timestamp, start, end) {
			result = append(result, obs)
		}
	}

	// 按日期排序
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	if skipped > 0 {
		log.Debug().Str("symbol", symbol).Int("skipped", skipped).Msg("rows without price skipped")
	}
	return result, nil
}

// parseHeader 解析CSV表头
func parseHeader(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "Date", "date", "DATE", "Timestamp", "timestamp":
			colIndex["date"] = i
		case "Close", "close", "CLOSE":
			colIndex["close"] = i
		case "Adj Close", "adj_close", "AdjClose", "Adj_Close":
			colIndex["adj_close"] = i
		}
	}
	return colIndex
}

// parseRow 解析CSV行; 价格单元为空时返回 ok=false
func parseRow(row []string, colIndex map[string]int, symbol string) (types.Observation, bool, error) {
	obs := types.Observation{Asset: symbol}

	idx := colIndex["date"]
	if idx >= len(row) {
		return obs, false, fmt.Errorf("short row")
	}
	t, err := parseDate(strings.TrimSpace(row[idx]))
	if err != nil {
		return obs, false, err
	}
	obs.Timestamp = t

	// 默认使用复权价, 缺失时使用收盘价
	cell := ""
	if idx, ok := colIndex["adj_close"]; ok && idx < len(row) {
		cell = strings.TrimSpace(row[idx])
	}
	if cell == "" {
		if idx, ok := colIndex["close"]; ok && idx < len(row) {
			cell = strings.TrimSpace(row[idx])
		}
	}
	if cell == "" {
		return obs, false, nil
	}
	obs.Price, err = strconv.ParseFloat(cell, 64)
	if err != nil {
		return obs, false, fmt.Errorf("invalid price %q", cell)
	}
	return obs, true, nil
}
