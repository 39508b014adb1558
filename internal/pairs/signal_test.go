package pairs

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

func newSignal(t *testing.T, mutate func(*types.PairsConfig)) *ZScoreSignal {
	t.Helper()
	cfg := types.DefaultPairsConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewZScoreSignal(cfg)
	require.NoError(t, err)
	s.SetLogger(zerolog.Nop())
	return s
}

func transitions(s *ZScoreSignal, zs []float64) []types.SignalState {
	out := make([]types.SignalState, len(zs))
	for i, z := range zs {
		out[i] = s.Transition(z)
	}
	return out
}

func TestTransition_ShortRoundTrip(t *testing.T) {
	s := newSignal(t, nil)
	got := transitions(s, []float64{0, 2.1, 1.9, 0.4, -0.1})
	assert.Equal(t, []types.SignalState{
		types.Flat, types.ShortSpread, types.ShortSpread, types.Flat, types.Flat,
	}, got)
}

func TestTransition_LongRoundTrip(t *testing.T) {
	s := newSignal(t, nil)
	got := transitions(s, []float64{0, -2.1, -1.9, -0.4, 0.1})
	assert.Equal(t, []types.SignalState{
		types.Flat, types.LongSpread, types.LongSpread, types.Flat, types.Flat,
	}, got)
}

func TestTransition_InclusiveBoundaries(t *testing.T) {
	tests := []struct {
		name string
		zs   []float64
		want types.SignalState
	}{
		{"enter short at +entry", []float64{2.0}, types.ShortSpread},
		{"enter long at -entry", []float64{-2.0}, types.LongSpread},
		{"exit long at -exit", []float64{-2.0, -0.5}, types.Flat},
		{"exit short at +exit", []float64{2.0, 0.5}, types.Flat},
		{"hold long just below -exit", []float64{-2.0, -0.50001}, types.LongSpread},
		{"no entry just inside", []float64{1.99999}, types.Flat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSignal(t, nil)
			got := transitions(s, tt.zs)
			assert.Equal(t, tt.want, got[len(got)-1])
		})
	}
}

func TestTransition_NeverReversesDirectly(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := newSignal(t, nil)
	prev := s.State()
	for i := 0; i < 10000; i++ {
		next := s.Transition(rng.Float64()*10 - 5)
		if prev != types.Flat && next != types.Flat {
			assert.Equal(t, prev, next, "step %d", i)
		}
		prev = next
	}
}

func TestValidateThresholds(t *testing.T) {
	assert.NoError(t, ValidateThresholds(2, 0.5))
	assert.NoError(t, ValidateThresholds(1, 0))

	for _, pair := range [][2]float64{{0.5, 0.5}, {0.4, 0.5}, {2, -0.1}} {
		err := ValidateThresholds(pair[0], pair[1])
		require.Error(t, err, "%v", pair)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}

	cfg := types.DefaultPairsConfig()
	cfg.EntryThreshold = 0.5
	_, err := NewZScoreSignal(cfg)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestDefaultMinPeriods(t *testing.T) {
	assert.Equal(t, 12, DefaultMinPeriods(60))
	assert.Equal(t, 10, DefaultMinPeriods(20))
	assert.Equal(t, 5, DefaultMinPeriods(5))
}

func TestUpdate_DegenerateForcesFlat(t *testing.T) {
	var buf bytes.Buffer
	s := newSignal(t, func(c *types.PairsConfig) {
		c.SpreadLookback = 10
		c.MinPeriods = 5
	})
	s.SetLogger(zerolog.New(&buf))

	for i := 0; i < 15; i++ {
		d := s.Update(3.0)
		assert.Equal(t, types.Flat, d.State)
		assert.False(t, d.Valid)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "zero rolling standard deviation"))
}

func TestUpdate_MaxHoldingTimeout(t *testing.T) {
	s := newSignal(t, func(c *types.PairsConfig) {
		c.SpreadLookback = 30
		c.MinPeriods = 10
		c.MaxHoldingPeriods = 2
	})

	var decisions []Decision
	for i := 0; i < 20; i++ {
		v := 1.0
		if i%2 == 1 {
			v = -1
		}
		decisions = append(decisions, s.Update(v))
	}
	for i := 0; i < 4; i++ {
		decisions = append(decisions, s.Update(10))
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, types.Flat, decisions[i].State, "step %d", i)
	}
	assert.Equal(t, types.ShortSpread, decisions[20].State)
	assert.Equal(t, types.ShortSpread, decisions[21].State)
	assert.Equal(t, types.Flat, decisions[22].State)
	assert.True(t, decisions[22].TimedOut)
	assert.Equal(t, types.ShortSpread, decisions[23].State)
	assert.False(t, decisions[23].TimedOut)
}
