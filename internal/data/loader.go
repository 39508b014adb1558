package data

import (
	"fmt"
	"time"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// DataLoader 数据加载器接口
type DataLoader interface {
	// LoadObservations 加载历史价格观测, symbols 为空表示全部资产, 零值时间表示不限制
	LoadObservations(symbols []string, start, end time.Time) ([]types.Observation, error)

	// SourceType 支持的数据源类型
	SourceType() string
}

// LoadPanel 加载观测并构建对齐的价格面板
func LoadPanel(loader DataLoader, symbols []string, start, end time.Time) (*types.PricePanel, error) {
	obs, err := loader.LoadObservations(symbols, start, end)
	if err != nil {
		return nil, err
	}
	panel, err := types.NewPricePanel(obs)
	if err != nil {
		return nil, fmt.Errorf("failed to build price panel from %s: %w", loader.SourceType(), err)
	}
	for _, s := range symbols {
		if !panel.Has(s) {
			return nil, &types.SchemaError{Source: loader.SourceType(), Reason: fmt.Sprintf("no prices for %s", s)}
		}
	}
	return panel, nil
}

// ParseDateRange 解析配置中的起止日期, 空字符串表示不限制
func ParseDateRange(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = parseDate(start); err != nil {
			return from, to, types.NewConfigurationError("backtest.start_date", "%v", err)
		}
	}
	if end != "" {
		if to, err = parseDate(end); err != nil {
			return from, to, types.NewConfigurationError("backtest.end_date", "%v", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, types.NewConfigurationError("backtest.end_date", "%s is before start %s", end, start)
	}
	return from, to, nil
}

// parseDate 解析日期字符串
func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// inRange 日期是否在 [start, end] 内
func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

func symbolSet(symbols []string) map[string]bool {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return set
}
