package data

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// longColumns 长表必需的列
var longColumns = []string{"date", "ticker", "adj_close"}

// priceRow 长表中的一行
type priceRow struct {
	Date     string `csv:"date"`
	Ticker   string `csv:"ticker"`
	AdjClose string `csv:"adj_close"`
}

// LongCSVLoader 长表CSV加载器: 每行 date,ticker,adj_close
type LongCSVLoader struct {
	path string
}

// NewLongCSVLoader 创建长表加载器
func NewLongCSVLoader(path string) *LongCSVLoader {
	return &LongCSVLoader{path: path}
}

// SourceType 返回数据源类型
func (l *LongCSVLoader) SourceType() string {
	return "csv:" + l.path
}

// LoadObservations 加载价格观测, 按资产和日期排序; adj_close 为空的行被丢弃
func (l *LongCSVLoader) LoadObservations(symbols []string, start, end time.Time) ([]types.Observation, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", l.path, err)
	}
	if err := checkHeader(l.path, raw); err != nil {
		return nil, err
	}

	var rows []priceRow
	if err := gocsv.UnmarshalBytes(raw, &rows); err != nil {
		return nil, &types.SchemaError{Source: l.path, Reason: err.Error()}
	}

	wanted := symbolSet(symbols)
	obs := make([]types.Observation, 0, len(rows))
	dropped := 0
	for i, row := range rows {
		line := i + 2
		ticker := strings.TrimSpace(row.Ticker)
		if ticker == "" {
			return nil, &types.SchemaError{Source: l.path, Reason: fmt.Sprintf("line %d: empty ticker", line)}
		}
		if wanted != nil && !wanted[ticker] {
			continue
		}
		ts, err := parseDate(strings.TrimSpace(row.Date))
		if err != nil {
			return nil, &types.SchemaError{Source: l.path, Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		if !inRange(ts, start, end) {
			continue
		}
		cell := strings.TrimSpace(row.AdjClose)
		if cell == "" {
			dropped++
			continue
		}
		price, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &types.SchemaError{Source: l.path, Reason: fmt.Sprintf("line %d: invalid adj_close %q", line, cell)}
		}
		obs = append(obs, types.Observation{Timestamp: ts, Asset: ticker, Price: price})
	}

	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].Asset != obs[j].Asset {
			return obs[i].Asset < obs[j].Asset
		}
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})

	log.Debug().
		Str("file", l.path).
		Int("rows", len(rows)).
		Int("observations", len(obs)).
		Int("dropped_empty", dropped).
		Msg("loaded long price table")
	return obs, nil
}

// checkHeader 确认表头包含必需的列
func checkHeader(source string, raw []byte) error {
	header, err := csv.NewReader(bytes.NewReader(raw)).Read()
	if err != nil {
		return &types.SchemaError{Source: source, Reason: fmt.Sprintf("failed to read header: %v", err)}
	}
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range longColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &types.SchemaError{Source: source, Reason: fmt.Sprintf("missing columns: %s", strings.Join(missing, ", "))}
	}
	return nil
}
