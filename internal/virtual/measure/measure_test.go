package measure

import (
	"math"
	"testing"

	"github.com/charmbracelet/vlist/internal/virtual/sizing"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	seen []int
}

func (o *recordingObserver) Observe(index int) {
	o.seen = append(o.seen, index)
}

func TestRequestSubmitsOnce(t *testing.T) {
	t.Parallel()

	model := sizing.NewMeasured(48, 100)
	obs := &recordingObserver{}
	c := New(model, obs)

	require.Equal(t, 5, c.Request(viewport.Range{Start: 0, End: 5}))
	require.Equal(t, 3, c.Request(viewport.Range{Start: 3, End: 8}))
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, obs.seen)

	// out of range indices are never submitted
	require.Equal(t, 2, c.Request(viewport.Range{Start: 98, End: 120}))

	_, ok := model.SetMeasuredSize(50, 10)
	require.True(t, ok)
	require.Zero(t, c.Request(viewport.Range{Start: 50, End: 51}))

	c.Forget(0)
	require.Equal(t, 3, c.Request(viewport.Range{Start: 0, End: 3}))
}

func TestApplyAboveViewportAdjustsScroll(t *testing.T) {
	t.Parallel()

	model := sizing.NewMeasured(48, 100)
	c := New(model, nil)
	require.Equal(t, 4800.0, c.ContentSize())

	c.SetScrolling()
	c.Deliver(Measurement{Index: 5, Size: 120})
	require.True(t, c.Pending())

	corr := c.Apply(10)
	require.Equal(t, 72.0, corr.ScrollDelta)
	require.Equal(t, 1, corr.Applied)
	require.Equal(t, 120.0, model.Size(5))
	require.Equal(t, 4872.0, model.TotalSize())

	// content size waits for the scroll to end
	require.Equal(t, 4800.0, c.ContentSize())
	require.True(t, c.SetIdle())
	require.Equal(t, 4872.0, c.ContentSize())
	require.False(t, c.SetIdle())
}

func TestApplyBelowViewportKeepsScroll(t *testing.T) {
	t.Parallel()

	model := sizing.NewMeasured(48, 100)
	c := New(model, nil)

	c.Deliver(Measurement{Index: 20, Size: 10}, Measurement{Index: 2, Size: 40})
	corr := c.Apply(10)
	require.Equal(t, -8.0, corr.ScrollDelta)
	require.Equal(t, 2, corr.Applied)
	require.Equal(t, 4800.0-38-8, c.ContentSize())
}

func TestApplyDropsInvalid(t *testing.T) {
	t.Parallel()

	model := sizing.NewMeasured(48, 10)
	c := New(model, nil)
	_, ok := model.SetMeasuredSize(1, 30)
	require.True(t, ok)
	c.Refresh()

	c.Deliver(
		Measurement{Index: 0, Size: math.NaN()},
		Measurement{Index: 0, Size: math.Inf(1)},
		Measurement{Index: 0, Size: -1},
		Measurement{Index: 1, Size: 99},
		Measurement{Index: 42, Size: 10},
	)
	corr := c.Apply(5)
	require.Zero(t, corr.Applied)
	require.Zero(t, corr.ScrollDelta)
	require.False(t, model.IsMeasured(0))
	require.Equal(t, 30.0, model.Size(1))
	require.False(t, c.Pending())
}

func TestSynchronousObserver(t *testing.T) {
	t.Parallel()

	model := sizing.NewMeasured(1, 50)
	var c *Corrector
	c = New(model, ObserverFunc(func(index int) {
		c.Deliver(Measurement{Index: index, Size: float64(index%3 + 1)})
	}))

	require.Equal(t, 10, c.Request(viewport.Range{Start: 0, End: 10}))
	corr := c.Apply(0)
	require.Equal(t, 10, corr.Applied)
	require.Zero(t, corr.ScrollDelta)
	require.Equal(t, 10, model.MeasuredCount())
	require.Equal(t, model.TotalSize(), c.ContentSize())
}

func TestReset(t *testing.T) {
	t.Parallel()

	model := sizing.NewMeasured(48, 10)
	obs := &recordingObserver{}
	c := New(model, obs)
	c.Request(viewport.Range{Start: 0, End: 3})
	c.Deliver(Measurement{Index: 0, Size: 1})
	c.Reset()

	require.False(t, c.Pending())
	require.Equal(t, 3, c.Request(viewport.Range{Start: 0, End: 3}))
}
