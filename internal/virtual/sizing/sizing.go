// Package sizing maps item indices to offsets and back under three sizing
// regimes: fixed, variable and measured.
//
// All models share one out-of-range policy: Size and Offset panic when given
// an index outside their domain, like slice indexing. IndexAtOffset takes a
// continuous offset and clamps its result to a valid index.
package sizing

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoStrategy is returned when a Spec names no sizing strategy.
var ErrNoStrategy = errors.New("sizing: one of size, size func or estimated size is required")

// Model answers size and offset questions for a list of items.
type Model interface {
	// Total is the number of items.
	Total() int
	// Size is the size of the item at index, 0 <= index < Total().
	Size(index int) float64
	// Offset is the cumulative offset of the item at index,
	// 0 <= index <= Total(). Offset(Total()) equals TotalSize().
	Offset(index int) float64
	// IndexAtOffset returns the index of the item that contains offset.
	IndexAtOffset(offset float64) int
	// TotalSize is the sum of all item sizes.
	TotalSize() float64
	// Rebuild replaces the model contents for a new item count.
	Rebuild(total int)
}

// Spec selects a sizing strategy. When more than one field is set the
// precedence is Size, then SizeFunc, then EstimatedSize.
type Spec struct {
	Size          float64
	SizeFunc      func(index int) float64
	EstimatedSize float64
}

// New builds the model selected by spec for total items.
func New(spec Spec, total int) (Model, error) {
	switch {
	case spec.Size > 0:
		return NewFixed(spec.Size, total), nil
	case spec.SizeFunc != nil:
		return NewVariable(spec.SizeFunc, total), nil
	case spec.EstimatedSize > 0:
		return NewMeasured(spec.EstimatedSize, total), nil
	}
	return nil, ErrNoStrategy
}

// Fixed is a model where every item has the same size. It allocates nothing
// per item.
type Fixed struct {
	size  float64
	total int
}

func NewFixed(size float64, total int) *Fixed {
	return &Fixed{size: size, total: max(0, total)}
}

func (f *Fixed) Total() int { return f.total }

func (f *Fixed) Size(index int) float64 {
	checkIndex(index, f.total)
	return f.size
}

func (f *Fixed) Offset(index int) float64 {
	checkOffsetIndex(index, f.total)
	return float64(index) * f.size
}

func (f *Fixed) IndexAtOffset(offset float64) int {
	if f.total == 0 || f.size <= 0 || offset <= 0 || math.IsNaN(offset) {
		return 0
	}
	if math.IsInf(offset, 1) {
		return f.total - 1
	}
	return min(int(math.Floor(offset/f.size)), f.total-1)
}

func (f *Fixed) TotalSize() float64 {
	return float64(f.total) * f.size
}

func (f *Fixed) Rebuild(total int) {
	f.total = max(0, total)
}

// prefix holds cumulative offsets; sums[i] is the offset of item i and
// sums[len-1] is the total size.
type prefix struct {
	sums []float64
}

func (p *prefix) total() int {
	if len(p.sums) == 0 {
		return 0
	}
	return len(p.sums) - 1
}

func (p *prefix) size(index int) float64 {
	checkIndex(index, p.total())
	return p.sums[index+1] - p.sums[index]
}

func (p *prefix) offset(index int) float64 {
	checkOffsetIndex(index, p.total())
	if len(p.sums) == 0 {
		return 0
	}
	return p.sums[index]
}

func (p *prefix) totalSize() float64 {
	if len(p.sums) == 0 {
		return 0
	}
	return p.sums[len(p.sums)-1]
}

func (p *prefix) indexAtOffset(offset float64) int {
	n := p.total()
	if n == 0 || offset <= 0 || math.IsNaN(offset) {
		return 0
	}
	// first item whose end lies past offset
	i := sort.Search(n, func(i int) bool {
		return p.sums[i+1] > offset
	})
	return min(i, n-1)
}

// build computes sums for total items in one pass and returns the new slice,
// leaving the current one untouched until the caller swaps it in.
func build(total int, size func(int) float64) []float64 {
	total = max(0, total)
	sums := make([]float64, total+1)
	for i := range total {
		sums[i+1] = sums[i] + sanitize(size(i))
	}
	return sums
}

// Variable is a model backed by a caller supplied size function, evaluated
// once per index on every rebuild.
type Variable struct {
	prefix
	fn func(int) float64
}

func NewVariable(fn func(int) float64, total int) *Variable {
	v := &Variable{fn: fn}
	v.Rebuild(total)
	return v
}

func (v *Variable) Total() int                       { return v.total() }
func (v *Variable) Size(index int) float64           { return v.size(index) }
func (v *Variable) Offset(index int) float64         { return v.offset(index) }
func (v *Variable) IndexAtOffset(offset float64) int { return v.indexAtOffset(offset) }
func (v *Variable) TotalSize() float64               { return v.totalSize() }

func (v *Variable) Rebuild(total int) {
	v.sums = build(total, v.fn)
}

// Measured is a model that starts from an estimate and replaces it with real
// measurements as they arrive. A measured index keeps its size across
// rebuilds for as long as it stays in range.
//
// Measurements shift the running sums in place, so with fractional sizes
// Offset(i+1)-Offset(i) equals Size(i) only up to float rounding.
type Measured struct {
	prefix
	estimate float64
	measured map[int]float64
}

func NewMeasured(estimate float64, total int) *Measured {
	m := &Measured{
		estimate: estimate,
		measured: make(map[int]float64),
	}
	m.Rebuild(total)
	return m
}

func (m *Measured) Total() int                       { return m.total() }
func (m *Measured) Offset(index int) float64         { return m.offset(index) }
func (m *Measured) IndexAtOffset(offset float64) int { return m.indexAtOffset(offset) }
func (m *Measured) TotalSize() float64               { return m.totalSize() }

func (m *Measured) Size(index int) float64 {
	checkIndex(index, m.total())
	if v, ok := m.measured[index]; ok {
		return v
	}
	return m.estimate
}

// Estimate is the fallback size for unmeasured items.
func (m *Measured) Estimate() float64 { return m.estimate }

func (m *Measured) IsMeasured(index int) bool {
	_, ok := m.measured[index]
	return ok
}

func (m *Measured) MeasuredCount() int { return len(m.measured) }

func (m *Measured) Rebuild(total int) {
	total = max(0, total)
	for i := range m.measured {
		if i >= total {
			delete(m.measured, i)
		}
	}
	m.sums = build(total, m.sizeOf)
}

func (m *Measured) sizeOf(index int) float64 {
	if v, ok := m.measured[index]; ok {
		return v
	}
	return m.estimate
}

// SetMeasuredSize records the real size of index and shifts the offsets of
// every following item. It returns the size delta, and false when the value
// is not a usable size.
func (m *Measured) SetMeasuredSize(index int, size float64) (float64, bool) {
	checkIndex(index, m.total())
	if !valid(size) {
		return 0, false
	}
	delta := size - m.Size(index)
	m.measured[index] = size
	if delta != 0 {
		for i := index + 1; i < len(m.sums); i++ {
			m.sums[i] += delta
		}
	}
	return delta, true
}

// SetMeasuredSizes records a batch of measurements with a single rebuild.
// Invalid and out of range entries are skipped. It returns the number of
// entries applied.
func (m *Measured) SetMeasuredSizes(sizes map[int]float64) int {
	n := 0
	total := m.total()
	for i, size := range sizes {
		if i < 0 || i >= total || !valid(size) {
			continue
		}
		m.measured[i] = size
		n++
	}
	if n > 0 {
		m.sums = build(total, m.sizeOf)
	}
	return n
}

func valid(size float64) bool {
	return !math.IsNaN(size) && !math.IsInf(size, 0) && size >= 0
}

func sanitize(size float64) float64 {
	if !valid(size) {
		return 0
	}
	return size
}

func checkIndex(index, total int) {
	if index < 0 || index >= total {
		panic(fmt.Sprintf("sizing: index %d out of range [0,%d)", index, total))
	}
}

func checkOffsetIndex(index, total int) {
	if index < 0 || index > total {
		panic(fmt.Sprintf("sizing: offset index %d out of range [0,%d]", index, total))
	}
}
