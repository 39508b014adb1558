package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration 参数组合非法, 在任何模拟步骤之前抛出
	ErrConfiguration = errors.New("configuration error")
	// ErrDataQuality 非有限值或乱序数据进入核心, 终止本次运行
	ErrDataQuality = errors.New("data quality error")
	// ErrInsufficientData 样本数不足以计算某个指标
	ErrInsufficientData = errors.New("insufficient data")
	// ErrSchema 输入文件缺少列或格式错误
	ErrSchema = errors.New("schema error")
)

// ConfigurationError 配置错误
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataQualityError 数据质量错误, 带出问题的时间点和资产
type DataQualityError struct {
	Timestamp time.Time
	Asset     string
	Value     float64
	Reason    string
}

func (e *DataQualityError) Error() string {
	msg := "data quality error"
	if !e.Timestamp.IsZero() {
		msg += " at " + e.Timestamp.Format(time.RFC3339)
	}
	if e.Asset != "" {
		msg += " for " + e.Asset
	}
	return fmt.Sprintf("%s: %s (value=%v)", msg, e.Reason, e.Value)
}

func (e *DataQualityError) Is(target error) bool {
	return target == ErrDataQuality
}

// InsufficientDataError 样本不足错误
type InsufficientDataError struct {
	Metric string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d samples, need %d", e.Metric, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// SchemaError 输入格式错误
type SchemaError struct {
	Source string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %s", e.Source, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
