package filter_test

import (
	"math"
	"math/rand"
	"testing"

	"codeberg.org/mutker/datafilter/internal/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFilter(t *testing.T, cfg filter.Config) *filter.SpikeFilter {
	t.Helper()
	f, err := filter.New(cfg)
	require.NoError(t, err)
	return f
}

func feed(f *filter.SpikeFilter, values ...float64) {
	for _, v := range values {
		f.Evaluate(v)
	}
}

func TestOutOfRangeNeverEntersWindow(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())
	feed(f, 20.0, 20.5, 21.0)

	for _, v := range []float64{-40.01, 85.01, -273.15, 1000, math.NaN(), math.Inf(1)} {
		before := f.Window()
		verdict := f.Evaluate(v)

		assert.False(t, verdict.Accepted, "value %v", v)
		assert.Equal(t, filter.ReasonOutOfRange, verdict.Reason, "value %v", v)
		assert.Equal(t, before, f.Window(), "window changed for %v", v)
	}
}

func TestRangeBoundsInclusive(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())

	assert.Equal(t, filter.Verdict{Accepted: true}, f.Evaluate(-40.0))
	assert.Equal(t, filter.Verdict{Accepted: true}, f.Evaluate(85.0))
}

func TestFirstTwoReadingsSkipSpikeCheck(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())

	assert.True(t, f.Evaluate(-30.0).Accepted)
	assert.True(t, f.Evaluate(80.0).Accepted)
	assert.Equal(t, []float64{-30.0, 80.0}, f.Window())
}

func TestSpikeThresholdUsesStdDevFloor(t *testing.T) {
	stable := []float64{20.0, 20.1, 19.9, 20.0, 20.0}

	t.Run("beyond floor bound", func(t *testing.T) {
		f := newFilter(t, filter.DefaultConfig())
		feed(f, stable...)

		// mean 20.0, stddev ~0.06 floored to 1.0: bound is 0.5*1.0*5.0 = 2.5
		verdict := f.Evaluate(22.5 + 0.01)
		assert.Equal(t, filter.Verdict{Reason: filter.ReasonSpikeDetected}, verdict)
	})

	t.Run("within floor bound", func(t *testing.T) {
		f := newFilter(t, filter.DefaultConfig())
		feed(f, stable...)

		assert.True(t, f.Evaluate(22.0).Accepted)
		assert.True(t, f.Evaluate(18.2).Accepted)
	})

	t.Run("negative excursion", func(t *testing.T) {
		f := newFilter(t, filter.DefaultConfig())
		feed(f, stable...)

		assert.Equal(t, filter.ReasonSpikeDetected, f.Evaluate(17.4).Reason)
	})
}

func TestSpikeEntersWindow(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())
	feed(f, 20, 20, 20, 20, 20)

	verdict := f.Evaluate(30)
	require.Equal(t, filter.ReasonSpikeDetected, verdict.Reason)
	assert.Equal(t, []float64{20, 20, 20, 20, 30}, f.Window())

	// Window is now mean 22, stddev 4, bound 10. A second 30 is 8 away and
	// passes; it would be a spike against a window of plain 20s.
	assert.True(t, f.Evaluate(30).Accepted)
}

func TestSustainedShiftIsAbsorbed(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())
	feed(f, 20, 20.2, 19.8, 20.1, 19.9)

	var accepted int
	for i := 0; i < 10; i++ {
		if f.Evaluate(35).Accepted {
			accepted++
		}
	}

	assert.Positive(t, accepted)
	assert.True(t, f.Evaluate(35.1).Accepted)
}

func TestCountersInvariant(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		v := 22 + rng.NormFloat64()*3
		switch rng.Intn(20) {
		case 0:
			v = 150
		case 1:
			v += 40
		}

		f.Evaluate(v)

		require.Equal(t, f.Total(), f.AcceptedCount()+f.RejectedCount())
		require.LessOrEqual(t, len(f.Window()), filter.DefaultSpikeWindow)
	}

	assert.Equal(t, uint64(2000), f.Total())
	assert.Positive(t, f.RejectedCount())
}

func TestDeterministic(t *testing.T) {
	inputs := []float64{21, 21.5, 90, 22, 35, 34.8, 35.2, -50, 22.1}

	a := newFilter(t, filter.DefaultConfig())
	b := newFilter(t, filter.DefaultConfig())
	for _, v := range inputs {
		assert.Equal(t, a.Evaluate(v), b.Evaluate(v))
	}
	assert.Equal(t, a.Stats(), b.Stats())
}

func TestWindowOfOneDisablesSpikeDetection(t *testing.T) {
	cfg := filter.DefaultConfig()
	cfg.SpikeWindow = 1
	require.False(t, cfg.SpikeDetectionEnabled())

	f := newFilter(t, cfg)
	feed(f, 20, 20, 20)

	assert.True(t, f.Evaluate(80).Accepted)
	assert.Equal(t, []float64{80}, f.Window())
}

func TestStats(t *testing.T) {
	f := newFilter(t, filter.DefaultConfig())
	assert.Equal(t, filter.Stats{}, f.Stats())

	feed(f, 20, 22, 100)

	s := f.Stats()
	assert.Equal(t, uint64(3), s.Total)
	assert.Equal(t, uint64(2), s.Accepted)
	assert.Equal(t, uint64(1), s.Rejected)
	assert.Equal(t, 2, s.WindowLen)
	assert.InDelta(t, 21.0, s.WindowMean, 1e-12)
	assert.InDelta(t, 1.0, s.WindowStdDev, 1e-12)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*filter.Config)
		valid  bool
	}{
		{"defaults", func(*filter.Config) {}, true},
		{"min above max", func(c *filter.Config) { c.TempMinValid = 90 }, false},
		{"equal bounds", func(c *filter.Config) { c.TempMinValid, c.TempMaxValid = 20, 20 }, true},
		{"nan bound", func(c *filter.Config) { c.TempMaxValid = math.NaN() }, false},
		{"negative threshold", func(c *filter.Config) { c.NoiseThreshold = -0.1 }, false},
		{"zero threshold", func(c *filter.Config) { c.NoiseThreshold = 0 }, true},
		{"empty window", func(c *filter.Config) { c.SpikeWindow = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := filter.DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, filter.ErrInvalidConfig)

			_, err = filter.New(cfg)
			assert.Error(t, err)
		})
	}
}
