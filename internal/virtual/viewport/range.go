// Package viewport computes which items intersect a viewport.
package viewport

import "fmt"

// Range is a half-open span of item indices.
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

func (r Range) Len() int { return max(0, r.End-r.Start) }

func (r Range) Empty() bool { return r.End <= r.Start }

func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Clamp restricts r to [lo, hi).
func (r Range) Clamp(lo, hi int) Range {
	r.Start = min(max(r.Start, lo), hi)
	r.End = min(max(r.End, r.Start), hi)
	return r
}

// Expand grows r by before and after items.
func (r Range) Expand(before, after int) Range {
	return Range{Start: r.Start - before, End: r.End + after}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}
