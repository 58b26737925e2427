package step_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Audiveris/audiveris-sub014/internal/step"
)

func TestParseAndLabel(t *testing.T) {
	got, err := step.Parse("stem-seeds")
	require.NoError(t, err)
	assert.Equal(t, step.StemSeeds, got)
	assert.Equal(t, "Stem Seeds", got.Label())
	assert.Equal(t, "STEM_SEEDS", got.String())

	_, err = step.Parse("colorize")
	assert.Error(t, err)
	assert.Len(t, step.All(), step.Count())
	assert.Equal(t, step.Page, step.Last)
}

func TestSetNeededIsRangeMinusDone(t *testing.T) {
	s := step.NewSet(step.Load, step.Scale)
	assert.Equal(t, []step.Step{step.Binary, step.Grid}, s.Needed(step.Grid))
	assert.False(t, s.Reached(step.Grid))

	s.Add(step.Binary)
	s.Add(step.Grid)
	assert.Empty(t, s.Needed(step.Grid))
	assert.True(t, s.Reached(step.Scale))

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, step.Grid, latest)
}

func TestSetEmptyLatest(t *testing.T) {
	var s step.Set
	_, ok := s.Latest()
	assert.False(t, ok)
	assert.True(t, s.Empty())
	assert.Len(t, s.Needed(step.Binary), 2)
}

func TestSetCloneIsIndependent(t *testing.T) {
	s := step.NewSet(step.Load)
	c := s.Clone()
	c.Add(step.Page)
	assert.False(t, s.Has(step.Page))
	assert.True(t, c.Has(step.Page))
	assert.False(t, s.Equal(c))

	s.Add(step.Page)
	assert.True(t, s.Equal(c))
}

func TestSetEqualIgnoresCapacity(t *testing.T) {
	a := step.NewSet(step.Page)
	a.Clear()
	a.Add(step.Load)
	assert.True(t, a.Equal(step.NewSet(step.Load)))
}

func TestSetJSON(t *testing.T) {
	s := step.NewSet(step.Load, step.Binary, step.Grid)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["LOAD","BINARY","GRID"]`, string(data))

	var decoded step.Set
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(s))
}

func TestRollbackFor(t *testing.T) {
	cases := []struct {
		latest    step.Step
		hasLatest bool
		target    step.Step
		force     bool
		want      step.Rollback
	}{
		{step.Page, true, step.Page, false, step.RollbackNone},
		{step.Grid, true, step.Page, true, step.RollbackNone},
		{step.Grid, false, step.Grid, true, step.RollbackNone},
		{step.Grid, true, step.Load, true, step.RollbackFull},
		{step.Grid, true, step.Binary, true, step.RollbackToGray},
		{step.Grid, true, step.Scale, true, step.RollbackToBinary},
		{step.Grid, true, step.Grid, true, step.RollbackToBinary},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s-%s-%v", tc.latest, tc.target, tc.force), func(t *testing.T) {
			assert.Equal(t, tc.want, step.RollbackFor(tc.latest, tc.hasLatest, tc.target, tc.force))
		})
	}
	assert.Equal(t, []step.Step{step.Load, step.Binary}, step.RollbackToBinary.Kept().Steps())
	assert.True(t, step.RollbackFull.Kept().Empty())
}

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("no staff found")
	err := step.Wrap(nil, "GRID", "detect", "empty page", cause)
	assert.ErrorIs(t, err, step.ErrStep)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "step failure: GRID: detect: empty page: no staff found", err.Error())

	assert.ErrorIs(t, step.Wrap(step.ErrCancelled, "", "", "", nil), step.ErrCancelled)
}
