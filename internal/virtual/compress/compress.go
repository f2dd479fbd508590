// Package compress remaps a logical scroll range that is too tall for the
// host surface onto a bounded physical range, and inverts that mapping for
// range calculation.
package compress

import (
	"math"

	"github.com/charmbracelet/vlist/internal/virtual/sizing"
)

// DefaultLimit is a conservative ceiling for the physical scroll height.
const DefaultLimit = 16_000_000

// State describes the current mapping.
type State struct {
	ActualSize   float64 `json:"actual_size" yaml:"actual_size"`
	VirtualSize  float64 `json:"virtual_size" yaml:"virtual_size"`
	Ratio        float64 `json:"ratio" yaml:"ratio"`
	IsCompressed bool    `json:"is_compressed" yaml:"is_compressed"`
}

// Compute returns the mapping for a logical size under limit.
func Compute(actual, limit float64) State {
	if actual <= limit || actual <= 0 {
		return State{
			ActualSize:  max(0, actual),
			VirtualSize: max(0, actual),
			Ratio:       1,
		}
	}
	return State{
		ActualSize:   actual,
		VirtualSize:  limit,
		Ratio:        limit / actual,
		IsCompressed: true,
	}
}

// Compressor keeps the mapping in sync with a size model.
type Compressor struct {
	limit float64
	model sizing.Model
	state State
}

// New returns a compressor with the given limit; a non-positive limit means
// DefaultLimit.
func New(limit float64) *Compressor {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Compressor{
		limit: limit,
		state: State{Ratio: 1},
	}
}

func (c *Compressor) Limit() float64 { return c.limit }

// Update recomputes the mapping from model. It must run after every change to
// the total or to item sizes. It reports whether the compressed mode flipped.
func (c *Compressor) Update(model sizing.Model) (State, bool) {
	c.model = model
	prev := c.state.IsCompressed
	c.state = Compute(model.TotalSize(), c.limit)
	return c.state, prev != c.state.IsCompressed
}

func (c *Compressor) State() State { return c.state }

func (c *Compressor) IsCompressed() bool { return c.state.IsCompressed }

// MaxScroll is the largest physical scroll position for a viewport.
func (c *Compressor) MaxScroll(viewport float64) float64 {
	return max(0, c.state.VirtualSize-viewport)
}

// ToPhysical maps a logical offset onto the physical axis.
func (c *Compressor) ToPhysical(logical float64) float64 {
	return logical * c.state.Ratio
}

// PhysicalOffset is the physical scroll position that puts index at the top
// of the viewport. It is the exact inverse of the index mapping used by
// LogicalTop.
func (c *Compressor) PhysicalOffset(index int) float64 {
	if c.model == nil {
		return 0
	}
	if !c.state.IsCompressed {
		return c.model.Offset(index)
	}
	total := c.model.Total()
	if total == 0 {
		return 0
	}
	return float64(index) / float64(total) * c.state.VirtualSize
}

// VirtualScrollIndex is the fractional item index at the top of the viewport
// for a physical scroll position.
func (c *Compressor) VirtualScrollIndex(physical float64) float64 {
	if c.model == nil || c.state.VirtualSize <= 0 {
		return 0
	}
	return physical / c.state.VirtualSize * float64(c.model.Total())
}

// LogicalTop maps a physical scroll position back to the logical offset shown
// at the top of the viewport. Within one viewport of the bottom it blends
// towards the bottom anchored position so the last item lands flush with the
// viewport edge at MaxScroll.
func (c *Compressor) LogicalTop(physical, viewport float64) float64 {
	if c.model == nil || math.IsNaN(physical) {
		return 0
	}
	maxScroll := c.MaxScroll(viewport)
	physical = min(max(physical, 0), maxScroll)
	if !c.state.IsCompressed {
		return physical
	}

	top := c.offsetAt(c.VirtualScrollIndex(physical))
	bottom := max(0, c.state.ActualSize-viewport)
	if viewport > 0 && maxScroll > 0 {
		switch dist := maxScroll - physical; {
		case dist <= 0:
			top = bottom
		case dist < viewport:
			t := 1 - dist/viewport
			top += (bottom - top) * t
		}
	}
	return top
}

// ItemPosition is where index starts relative to the top of the viewport.
func (c *Compressor) ItemPosition(index int, physical, viewport float64) float64 {
	return c.model.Offset(index) - c.LogicalTop(physical, viewport)
}

// offsetAt is the logical offset of a fractional index.
func (c *Compressor) offsetAt(idx float64) float64 {
	total := c.model.Total()
	if total == 0 || idx <= 0 {
		return 0
	}
	whole := int(math.Floor(idx))
	if whole >= total {
		return c.model.TotalSize()
	}
	frac := idx - float64(whole)
	return c.model.Offset(whole) + frac*c.model.Size(whole)
}
