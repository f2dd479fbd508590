package sizing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func models(total int) map[string]Model {
	return map[string]Model{
		"fixed":    NewFixed(48, total),
		"variable": NewVariable(func(i int) float64 { return float64(20 + i%7*5) }, total),
		"measured": func() Model {
			m := NewMeasured(48, total)
			for i := 0; i < total; i += 3 {
				m.SetMeasuredSize(i, float64(10+i%11))
			}
			return m
		}(),
	}
}

func TestOffsetSizeInvariant(t *testing.T) {
	t.Parallel()

	for name, m := range models(500) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for i := range m.Total() {
				require.Equal(t, m.Size(i), m.Offset(i+1)-m.Offset(i), "index %d", i)
			}
			require.Equal(t, m.TotalSize(), m.Offset(m.Total()))
		})
	}
}

func TestOffsetSizeFractional(t *testing.T) {
	t.Parallel()

	m := NewMeasured(0.1, 1000)
	for i := 0; i < 1000; i += 7 {
		m.SetMeasuredSize(i, 0.7)
	}
	for i := range m.Total() {
		require.InDelta(t, m.Size(i), m.Offset(i+1)-m.Offset(i), 1e-9, "index %d", i)
		require.Equal(t, i, m.IndexAtOffset(m.Offset(i)+m.Size(i)/2), "index %d", i)
	}
	require.InDelta(t, 143*0.7+857*0.1, m.TotalSize(), 1e-9)
}

func TestIndexAtOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	for name, m := range models(500) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for i := range m.Total() {
				require.Equal(t, i, m.IndexAtOffset(m.Offset(i)), "index %d", i)
			}
		})
	}
}

func TestIndexAtOffsetMonotonic(t *testing.T) {
	t.Parallel()

	for name, m := range models(200) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			prev := 0
			for off := -10.0; off < m.TotalSize()+100; off += 3.5 {
				idx := m.IndexAtOffset(off)
				require.GreaterOrEqual(t, idx, prev)
				require.GreaterOrEqual(t, idx, 0)
				require.Less(t, idx, m.Total())
				prev = idx
			}
		})
	}
}

func TestIndexAtOffsetClamps(t *testing.T) {
	t.Parallel()

	m := NewVariable(func(int) float64 { return 10 }, 10)
	assert.Equal(t, 0, m.IndexAtOffset(-5))
	assert.Equal(t, 0, m.IndexAtOffset(math.NaN()))
	assert.Equal(t, 9, m.IndexAtOffset(1e9))
	assert.Equal(t, 4, m.IndexAtOffset(49.9))
	assert.Equal(t, 5, m.IndexAtOffset(50))

	empty := NewFixed(10, 0)
	assert.Equal(t, 0, empty.IndexAtOffset(100))
	assert.Equal(t, 0.0, empty.TotalSize())
}

func TestOutOfRangePanics(t *testing.T) {
	t.Parallel()

	for name, m := range models(10) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Panics(t, func() { m.Size(10) })
			require.Panics(t, func() { m.Size(-1) })
			require.Panics(t, func() { m.Offset(11) })
			require.NotPanics(t, func() { m.Offset(10) })
		})
	}
}

func TestFixedMillionItems(t *testing.T) {
	t.Parallel()

	m := NewFixed(48, 1_000_000)
	require.Equal(t, 48_000_000.0, m.TotalSize())
	require.Equal(t, 999_999, m.IndexAtOffset(m.TotalSize()))
	require.Equal(t, 20_833, m.IndexAtOffset(1_000_000))
}

func TestNewPrecedence(t *testing.T) {
	t.Parallel()

	m, err := New(Spec{Size: 10, SizeFunc: func(int) float64 { return 3 }, EstimatedSize: 7}, 5)
	require.NoError(t, err)
	require.IsType(t, &Fixed{}, m)

	m, err = New(Spec{SizeFunc: func(int) float64 { return 3 }, EstimatedSize: 7}, 5)
	require.NoError(t, err)
	require.IsType(t, &Variable{}, m)
	require.Equal(t, 15.0, m.TotalSize())

	m, err = New(Spec{EstimatedSize: 7}, 5)
	require.NoError(t, err)
	require.IsType(t, &Measured{}, m)

	_, err = New(Spec{}, 5)
	require.ErrorIs(t, err, ErrNoStrategy)
}

func TestVariableEvaluatesOncePerRebuild(t *testing.T) {
	t.Parallel()

	calls := 0
	m := NewVariable(func(i int) float64 {
		calls++
		return 1
	}, 100)
	require.Equal(t, 100, calls)

	for i := range 100 {
		m.Size(i)
		m.Offset(i)
	}
	m.IndexAtOffset(42)
	require.Equal(t, 100, calls)

	m.Rebuild(50)
	require.Equal(t, 150, calls)
	require.Equal(t, 50.0, m.TotalSize())
}

func TestVariableSanitizesBadSizes(t *testing.T) {
	t.Parallel()

	m := NewVariable(func(i int) float64 {
		switch i {
		case 1:
			return math.NaN()
		case 2:
			return math.Inf(1)
		case 3:
			return -4
		}
		return 2
	}, 5)
	require.Equal(t, 4.0, m.TotalSize())
	require.Equal(t, 0.0, m.Size(1))
}

func TestMeasured(t *testing.T) {
	t.Parallel()

	t.Run("set measured size", func(t *testing.T) {
		t.Parallel()
		m := NewMeasured(48, 10)
		require.Equal(t, 480.0, m.TotalSize())

		delta, ok := m.SetMeasuredSize(5, 120)
		require.True(t, ok)
		require.Equal(t, 72.0, delta)
		require.Equal(t, 120.0, m.Size(5))
		require.True(t, m.IsMeasured(5))
		require.False(t, m.IsMeasured(4))
		require.Equal(t, 552.0, m.TotalSize())
		require.Equal(t, 5*48.0+120, m.Offset(6))
	})

	t.Run("invalid sizes are dropped", func(t *testing.T) {
		t.Parallel()
		m := NewMeasured(48, 10)
		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1} {
			_, ok := m.SetMeasuredSize(2, v)
			require.False(t, ok)
		}
		require.False(t, m.IsMeasured(2))
		require.Equal(t, 480.0, m.TotalSize())
	})

	t.Run("rebuild keeps surviving measurements", func(t *testing.T) {
		t.Parallel()
		m := NewMeasured(10, 10)
		m.SetMeasuredSize(2, 30)
		m.SetMeasuredSize(8, 50)

		m.Rebuild(20)
		require.True(t, m.IsMeasured(2))
		require.True(t, m.IsMeasured(8))
		require.Equal(t, 30.0, m.Size(2))
		require.Equal(t, 18*10.0+30+50, m.TotalSize())

		m.Rebuild(5)
		require.True(t, m.IsMeasured(2))
		require.False(t, m.IsMeasured(8))
		require.Equal(t, 1, m.MeasuredCount())
		require.Equal(t, 4*10.0+30, m.TotalSize())

		m.Rebuild(10)
		require.False(t, m.IsMeasured(8))
		require.Equal(t, 10.0, m.Size(8))
	})

	t.Run("batch", func(t *testing.T) {
		t.Parallel()
		m := NewMeasured(10, 10)
		n := m.SetMeasuredSizes(map[int]float64{1: 20, 3: 5, 12: 99, 4: math.NaN()})
		require.Equal(t, 2, n)
		require.Equal(t, 8*10.0+20+5, m.TotalSize())
		for i := range m.Total() {
			require.Equal(t, m.Size(i), m.Offset(i+1)-m.Offset(i))
		}
	})
}
