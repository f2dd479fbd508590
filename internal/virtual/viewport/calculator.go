package viewport

import (
	"math"

	"github.com/charmbracelet/vlist/internal/virtual/sizing"
)

// Result is the outcome of a range calculation.
type Result struct {
	Visible Range
	Render  Range
	// Changed is false when the calculation was skipped or produced the
	// previous ranges again.
	Changed bool
}

// Calculator turns a scroll position into visible and render ranges. It keeps
// the last inputs so a steady state costs nothing.
type Calculator struct {
	overscan int

	valid    bool
	seen     bool
	top      float64
	viewport float64
	total    int
	last     Result
}

func NewCalculator(overscan int) *Calculator {
	return &Calculator{overscan: max(0, overscan)}
}

func (c *Calculator) Overscan() int { return c.overscan }

// Invalidate forces the next Calculate to recompute. Call it after item sizes
// change.
func (c *Calculator) Invalidate() {
	c.valid = false
}

// Last returns the ranges from the previous calculation.
func (c *Calculator) Last() Result {
	r := c.last
	r.Changed = false
	return r
}

// Calculate computes the ranges for a logical top offset and viewport size.
func (c *Calculator) Calculate(model sizing.Model, top, viewport float64) Result {
	total := model.Total()
	if c.valid && c.top == top && c.viewport == viewport && c.total == total {
		return c.Last()
	}

	visible := VisibleRange(model, top, viewport)
	render := visible.Expand(c.overscan, c.overscan).Clamp(0, total)

	changed := !c.seen || visible != c.last.Visible || render != c.last.Render
	c.valid, c.seen = true, true
	c.top, c.viewport, c.total = top, viewport, total
	c.last = Result{Visible: visible, Render: render, Changed: changed}
	return c.last
}

// VisibleRange returns the items that intersect [top, top+viewport). The end
// is advanced until its offset covers the bottom edge, so variable sizes
// never leave a gap.
func VisibleRange(model sizing.Model, top, viewport float64) Range {
	total := model.Total()
	if total == 0 || math.IsNaN(top) || math.IsNaN(viewport) {
		return Range{}
	}
	top = max(0, top)
	bottom := top + max(0, viewport)

	start := model.IndexAtOffset(top)
	end := max(start, model.IndexAtOffset(bottom))
	for end < total && model.Offset(end) < bottom {
		end++
	}
	if end == start && viewport > 0 {
		end = min(start+1, total)
	}
	return Range{Start: start, End: end}
}
