package pairs

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

// zeroStd 低于该值的滚动标准差视为零
const zeroStd = 1e-12

// Decision 信号每一步的输出
type Decision struct {
	State    types.SignalState
	ZScore   float64 // 不可计算时为 NaN
	Valid    bool
	TimedOut bool // 因持仓超时被强制平仓
}

// ZScoreSignal 带滞回的Z分数信号状态机, 初始状态 FLAT
type ZScoreSignal struct {
	entry      float64
	exit       float64
	maxHold    int
	minPeriods int

	window *rolling
	state  types.SignalState
	held   int
	warned string // 当前退化段已告警的原因
	logger zerolog.Logger
}

// DefaultMinPeriods 回看窗口对应的最少样本数 max(10, lookback/5), 不超过回看窗口
func DefaultMinPeriods(lookback int) int {
	n := lookback / 5
	if n < 10 {
		n = 10
	}
	if n > lookback {
		n = lookback
	}
	if n < 2 {
		n = 2
	}
	return n
}

// NewZScoreSignal 创建信号, 要求 entry > exit >= 0
func NewZScoreSignal(config types.PairsConfig) (*ZScoreSignal, error) {
	if err := ValidateThresholds(config.EntryThreshold, config.ExitThreshold); err != nil {
		return nil, err
	}
	if config.SpreadLookback < 2 {
		return nil, types.NewConfigurationError("spread_lookback", "must be >= 2, got %d", config.SpreadLookback)
	}
	if config.MaxHoldingPeriods < 0 {
		return nil, types.NewConfigurationError("max_holding_periods", "must be >= 0, got %d", config.MaxHoldingPeriods)
	}

	minPeriods := config.MinPeriods
	if minPeriods <= 0 {
		minPeriods = DefaultMinPeriods(config.SpreadLookback)
	}
	if minPeriods < 2 || minPeriods > config.SpreadLookback {
		return nil, types.NewConfigurationError("min_periods", "must be in [2, %d], got %d", config.SpreadLookback, minPeriods)
	}

	return &ZScoreSignal{
		entry:      config.EntryThreshold,
		exit:       config.ExitThreshold,
		maxHold:    config.MaxHoldingPeriods,
		minPeriods: minPeriods,
		window:     newRolling(config.SpreadLookback),
		logger:     log.Logger,
	}, nil
}

// ValidateThresholds 检查 entry > exit >= 0
func ValidateThresholds(entry, exit float64) error {
	if math.IsNaN(entry) || math.IsNaN(exit) || exit < 0 {
		return types.NewConfigurationError("exit_threshold", "must be >= 0, got %v", exit)
	}
	if entry <= exit {
		return types.NewConfigurationError("entry_threshold", "must exceed exit_threshold (%v), got %v", exit, entry)
	}
	return nil
}

// SetLogger 替换告警日志输出
func (s *ZScoreSignal) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// State 当前状态
func (s *ZScoreSignal) State() types.SignalState {
	return s.state
}

// Transition 只按当前状态和z分数推进状态机
func (s *ZScoreSignal) Transition(z float64) types.SignalState {
	switch s.state {
	case types.Flat:
		if z <= -s.entry {
			s.state = types.LongSpread
		} else if z >= s.entry {
			s.state = types.ShortSpread
		}
	case types.LongSpread:
		if z >= -s.exit {
			s.state = types.Flat
		}
	case types.ShortSpread:
		if z <= s.exit {
			s.state = types.Flat
		}
	}
	return s.state
}

// Update 加入新的价差, 计算z分数并推进状态
// 样本不足或标准差为零时强制 FLAT, 每段连续退化只告警一次
func (s *ZScoreSignal) Update(spread float64) Decision {
	s.window.Push(spread)

	if s.window.Len() < s.minPeriods {
		return s.degenerate("too few spread observations")
	}
	mean, std := s.window.MeanStd()
	if math.IsNaN(std) || std <= zeroStd {
		return s.degenerate("zero rolling standard deviation")
	}
	s.warned = ""
	z := (spread - mean) / std

	prev := s.state
	if prev != types.Flat {
		s.held++
		if s.maxHold > 0 && s.held >= s.maxHold {
			s.state = types.Flat
			s.held = 0
			return Decision{State: types.Flat, ZScore: z, Valid: true, TimedOut: true}
		}
	}

	next := s.Transition(z)
	if prev == types.Flat && next != types.Flat {
		s.held = 0
	}
	return Decision{State: next, ZScore: z, Valid: true}
}

func (s *ZScoreSignal) degenerate(reason string) Decision {
	if s.warned != reason {
		// 预热期不足属于正常情况, 只记调试日志
		ev := s.logger.Warn()
		if s.window.Len() < s.minPeriods {
			ev = s.logger.Debug()
		}
		ev.Str("reason", reason).
			Str("state", s.state.String()).
			Int("observations", s.window.Len()).
			Msg("z-score undefined, forcing FLAT")
		s.warned = reason
	}
	s.state = types.Flat
	s.held = 0
	return Decision{State: types.Flat, ZScore: math.NaN()}
}
