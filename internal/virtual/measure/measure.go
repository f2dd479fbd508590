// Package measure reconciles estimated item sizes with real measurements
// while keeping the visible content still.
package measure

import (
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/charmbracelet/vlist/internal/virtual/sizing"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
)

// Observer measures rendered items. Results come back through
// Corrector.Deliver, either from inside Observe or later from any goroutine.
type Observer interface {
	Observe(index int)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(index int)

func (f ObserverFunc) Observe(index int) { f(index) }

// Measurement is the real size of one item.
type Measurement struct {
	Index int
	Size  float64
}

// Correction is the outcome of applying queued measurements.
type Correction struct {
	// ScrollDelta is the total size change of items above the first visible
	// one. Adding it to the scroll position keeps the visible items still.
	ScrollDelta float64
	// Applied is the number of measurements that changed the model.
	Applied int
}

// Corrector submits unmeasured items to an Observer and folds the results
// into a measured size model.
//
// It has two states. While idle the published content size follows the
// model immediately. While scrolling content size changes are held back
// until SetIdle, so the scroll extent does not move under the user.
type Corrector struct {
	model    *sizing.Measured
	observer Observer

	submitted *roaring.Bitmap
	scrolling bool
	content   float64
	pending   bool

	mu    sync.Mutex
	queue []Measurement
}

func New(model *sizing.Measured, observer Observer) *Corrector {
	return &Corrector{
		model:     model,
		observer:  observer,
		submitted: roaring.New(),
		content:   model.TotalSize(),
	}
}

// Request submits every index of render that is neither measured nor
// already submitted. It returns the number of submitted indices.
func (c *Corrector) Request(render viewport.Range) int {
	if c.observer == nil {
		return 0
	}
	render = render.Clamp(0, c.model.Total())
	var batch []int
	for i := render.Start; i < render.End; i++ {
		if c.model.IsMeasured(i) || c.submitted.Contains(uint32(i)) {
			continue
		}
		c.submitted.Add(uint32(i))
		batch = append(batch, i)
	}
	for _, i := range batch {
		c.observer.Observe(i)
	}
	return len(batch)
}

// Deliver queues measurements for the next Apply. It is safe to call from
// any goroutine.
func (c *Corrector) Deliver(ms ...Measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, ms...)
}

// Pending reports whether measurements are waiting to be applied.
func (c *Corrector) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// Apply drains the queue into the model. Invalid sizes and indices that are
// already measured are dropped.
func (c *Corrector) Apply(firstVisible int) Correction {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	var corr Correction
	if len(queue) == 0 {
		return corr
	}

	total := c.model.Total()
	batch := make(map[int]float64, len(queue))
	for _, m := range queue {
		if m.Index < 0 || m.Index >= total || !valid(m.Size) {
			continue
		}
		if c.model.IsMeasured(m.Index) {
			continue
		}
		batch[m.Index] = m.Size
	}
	for i, size := range batch {
		if i < firstVisible {
			corr.ScrollDelta += size - c.model.Size(i)
		}
	}
	corr.Applied = c.model.SetMeasuredSizes(batch)
	if corr.Applied > 0 {
		c.Refresh()
	}
	return corr
}

// Refresh publishes the model total size, or defers it while scrolling. It
// reports whether the published content size changed.
func (c *Corrector) Refresh() bool {
	if c.scrolling {
		c.pending = c.pending || c.model.TotalSize() != c.content
		return false
	}
	return c.publish()
}

func (c *Corrector) publish() bool {
	c.pending = false
	size := c.model.TotalSize()
	if size == c.content {
		return false
	}
	c.content = size
	return true
}

// ContentSize is the published total size.
func (c *Corrector) ContentSize() float64 { return c.content }

func (c *Corrector) Scrolling() bool { return c.scrolling }

func (c *Corrector) SetScrolling() {
	c.scrolling = true
}

// SetIdle leaves the scrolling state and publishes a deferred content size.
// It reports whether the content size changed.
func (c *Corrector) SetIdle() bool {
	c.scrolling = false
	return c.publish()
}

// Forget drops submissions at or beyond total, after the item count shrinks.
func (c *Corrector) Forget(total int) {
	c.submitted.RemoveRange(uint64(max(0, total)), uint64(1)<<32)
}

// Reset forgets every submission and queued measurement.
func (c *Corrector) Reset() {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()
	c.submitted.Clear()
	c.pending = false
	c.content = c.model.TotalSize()
}

func valid(size float64) bool {
	return !math.IsNaN(size) && !math.IsInf(size, 0) && size >= 0
}
