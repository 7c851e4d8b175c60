package schedule

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampProfile() []Stage {
	return []Stage{
		{Duration: 10 * time.Second, Target: 2},
		{Duration: 20 * time.Second, Target: 2},
		{Duration: 10 * time.Second, Target: 0},
	}
}

func TestNew_RejectsInvalidStages(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoStages)

	_, err = New([]Stage{{Duration: -time.Second, Target: 1}})
	assert.ErrorIs(t, err, ErrNegativeDuration)

	_, err = New([]Stage{{Duration: time.Second, Target: 1}, {Duration: time.Second, Target: -1}})
	assert.ErrorIs(t, err, ErrNegativeTarget)
	assert.Contains(t, err.Error(), "stage 1")

	for _, target := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = New([]Stage{{Duration: time.Second, Target: target}})
		assert.ErrorIs(t, err, ErrNonFiniteTarget, "target %v", target)
	}
}

func TestRate_PiecewiseLinear(t *testing.T) {
	s, err := New(rampProfile())
	require.NoError(t, err)

	assert.Equal(t, 40*time.Second, s.Total())
	assert.InDelta(t, 0, s.Rate(0), 1e-9)
	assert.InDelta(t, 1, s.Rate(5*time.Second), 1e-9)
	assert.InDelta(t, 2, s.Rate(10*time.Second), 1e-9)
	assert.InDelta(t, 2, s.Rate(25*time.Second), 1e-9)
	assert.InDelta(t, 1, s.Rate(35*time.Second), 1e-9)
	assert.InDelta(t, 0, s.Rate(40*time.Second), 1e-9)
	assert.InDelta(t, 0, s.Rate(time.Minute), 1e-9)
	assert.True(t, s.Done(40*time.Second))
	assert.False(t, s.Done(39*time.Second))
}

func TestExpected_RampScenario(t *testing.T) {
	s, err := New(rampProfile())
	require.NoError(t, err)

	// 2*(10/2 + 20 + 10/2)
	assert.InDelta(t, 50, s.Expected(40*time.Second), 1e-9)
	assert.InDelta(t, 10, s.Expected(10*time.Second), 1e-9)
	assert.InDelta(t, 2.5, s.Expected(5*time.Second), 1e-9)
	assert.InDelta(t, 50, s.Expected(time.Hour), 1e-9)
}

func TestExpected_ZeroDurationStageJumps(t *testing.T) {
	s, err := New([]Stage{
		{Duration: 0, Target: 10},
		{Duration: 2 * time.Second, Target: 10},
		{Duration: 0, Target: 4},
		{Duration: 2 * time.Second, Target: 4},
	})
	require.NoError(t, err)

	assert.InDelta(t, 10, s.Rate(0), 1e-9)
	assert.InDelta(t, 10, s.Rate(1999*time.Millisecond), 1e-9)
	assert.InDelta(t, 4, s.Rate(2*time.Second), 1e-9)
	assert.InDelta(t, 28, s.Expected(4*time.Second), 1e-9)
}

func TestExpected_AllZeroDuration(t *testing.T) {
	s, err := New([]Stage{{Duration: 0, Target: 5}})
	require.NoError(t, err)
	assert.True(t, s.Done(0))
	assert.Equal(t, 0.0, s.Rate(0))
	assert.Equal(t, 0.0, s.Expected(time.Second))
}

// Expected must match a numeric integral of Rate and never decrease.
func TestExpected_MatchesIntegralAndIsMonotonic(t *testing.T) {
	profiles := [][]Stage{
		rampProfile(),
		{{Duration: 3 * time.Second, Target: 7}, {Duration: 0, Target: 1}, {Duration: 5 * time.Second, Target: 9}},
		{{Duration: time.Second, Target: 0}, {Duration: 4 * time.Second, Target: 3.5}, {Duration: 2 * time.Second, Target: 3.5}},
	}

	for _, stages := range profiles {
		s, err := New(stages)
		require.NoError(t, err)

		step := time.Millisecond
		var numeric, last float64
		for at := time.Duration(0); at <= s.Total()+time.Second; at += step {
			got := s.Expected(at)
			require.GreaterOrEqual(t, got, last-1e-9, "expected decreased at %s", at)
			// continuity: no jump larger than one step of the highest rate
			require.Less(t, math.Abs(got-last), 10*step.Seconds()+1e-9)
			assert.InDelta(t, numeric, got, 0.02, "at %s", at)

			mid := at + step/2
			numeric += s.Rate(mid) * step.Seconds()
			last = got
		}
	}
}

func TestStageAt(t *testing.T) {
	s, err := New(rampProfile())
	require.NoError(t, err)
	assert.Equal(t, 0, s.StageAt(0))
	assert.Equal(t, 1, s.StageAt(10*time.Second))
	assert.Equal(t, 2, s.StageAt(39*time.Second))
	assert.Equal(t, -1, s.StageAt(40*time.Second))
}
