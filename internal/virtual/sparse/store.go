// Package sparse holds asynchronously loaded items in fixed-size chunks and
// keeps the number of cached items under a budget by evicting the least
// recently used chunks that lie away from the viewport.
package sparse

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
)

const (
	DefaultChunkSize      = 100
	DefaultMaxCachedItems = 10_000
	DefaultEvictionBuffer = 200

	// roaring ranges are half-open over uint32, so the exclusive end of the
	// whole domain is 1<<32.
	domainEnd = uint64(1) << 32
)

var (
	ErrInvalidChunkSize = errors.New("sparse: chunk size must be positive")
	ErrInvalidBudget    = errors.New("sparse: max cached items must hold at least one chunk")
)

// Options configures a Store. Zero fields take their defaults.
type Options struct {
	ChunkSize      int
	MaxCachedItems int
	EvictionBuffer int
	// Clock stamps chunk access times. Defaults to time.Now.
	Clock func() time.Time
}

// Chunk is the unit of loading and eviction.
type Chunk[T any] struct {
	Index        int
	Items        []T
	LastAccessed time.Time
}

// Stats is a point in time summary of a store.
type Stats struct {
	Chunks         int `json:"chunks" yaml:"chunks"`
	CachedItems    int `json:"cached_items" yaml:"cached_items"`
	MaxCachedItems int `json:"max_cached_items" yaml:"max_cached_items"`
	ChunkSize      int `json:"chunk_size" yaml:"chunk_size"`
	Evicted        int `json:"evicted" yaml:"evicted"`
}

// Store is a chunked, index addressable item store. It is not safe for
// concurrent use; callers serialize access.
type Store[T any] struct {
	chunkSize int
	maxCached int
	buffer    int
	clock     func() time.Time

	chunks map[int]*Chunk[T]
	loaded *roaring.Bitmap
	// total is the known item count, or -1 while unknown.
	total int

	keep    viewport.Range
	hasKeep bool
	evicted int
}

func New[T any](opts Options) (*Store[T], error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxCachedItems == 0 {
		opts.MaxCachedItems = DefaultMaxCachedItems
	}
	if opts.EvictionBuffer == 0 {
		opts.EvictionBuffer = DefaultEvictionBuffer
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, opts.ChunkSize)
	}
	if opts.MaxCachedItems < opts.ChunkSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrInvalidBudget, opts.MaxCachedItems, opts.ChunkSize)
	}
	return &Store[T]{
		chunkSize: opts.ChunkSize,
		maxCached: opts.MaxCachedItems,
		buffer:    max(0, opts.EvictionBuffer),
		clock:     opts.Clock,
		chunks:    make(map[int]*Chunk[T]),
		loaded:    roaring.New(),
		total:     -1,
	}, nil
}

func (s *Store[T]) ChunkSize() int { return s.chunkSize }

func (s *Store[T]) ChunkIndex(i int) int { return i / s.chunkSize }

// Total is the known item count, or -1 when none was set.
func (s *Store[T]) Total() int { return s.total }

func (s *Store[T]) CachedItems() int { return int(s.loaded.GetCardinality()) }

// Get returns the stored item. It never triggers a load and does not count
// as an access; evicted and never loaded indices look the same.
func (s *Store[T]) Get(i int) (T, bool) {
	var zero T
	if !s.Has(i) {
		return zero, false
	}
	c := s.chunks[s.ChunkIndex(i)]
	return c.Items[i-c.Index*s.chunkSize], true
}

func (s *Store[T]) Has(i int) bool {
	if i < 0 || uint64(i) >= domainEnd {
		return false
	}
	return s.loaded.Contains(uint32(i))
}

// SetRange stores items starting at offset, creating chunks as needed, then
// enforces the cache budget.
func (s *Store[T]) SetRange(offset int, items []T) {
	if offset < 0 {
		items = items[min(len(items), -offset):]
		offset = 0
	}
	if s.total >= 0 && offset+len(items) > s.total {
		items = items[:max(0, s.total-offset)]
	}
	if len(items) == 0 {
		return
	}

	now := s.clock()
	for n, item := range items {
		i := offset + n
		c := s.chunk(s.ChunkIndex(i), now)
		c.Items[i-c.Index*s.chunkSize] = item
	}
	s.loaded.AddRange(uint64(offset), uint64(offset+len(items)))
	s.enforce()
}

func (s *Store[T]) chunk(index int, now time.Time) *Chunk[T] {
	c, ok := s.chunks[index]
	if !ok {
		c = &Chunk[T]{
			Index: index,
			Items: make([]T, s.chunkSize),
		}
		s.chunks[index] = c
	}
	c.LastAccessed = now
	return c
}

// SetTotal records the item count. Items at or beyond a shrunk total are
// dropped.
func (s *Store[T]) SetTotal(total int) {
	total = max(0, total)
	if s.total < 0 || total < s.total {
		s.loaded.RemoveRange(uint64(total), domainEnd)
		var zero T
		for idx, c := range s.chunks {
			start := idx * s.chunkSize
			switch {
			case start >= total:
				delete(s.chunks, idx)
			case start+s.chunkSize > total:
				for i := total - start; i < s.chunkSize; i++ {
					c.Items[i] = zero
				}
			}
		}
	}
	s.total = total
}

// Clear drops every chunk and forgets the total.
func (s *Store[T]) Clear() {
	s.chunks = make(map[int]*Chunk[T])
	s.loaded.Clear()
	s.total = -1
	s.hasKeep = false
}

// TouchChunksForRange marks the chunks spanning [start,end) as accessed. The
// clock is read once per call, so a render frame pays for one read no matter
// how many rows it shows.
func (s *Store[T]) TouchChunksForRange(start, end int) {
	if end <= start {
		return
	}
	now := s.clock()
	for idx := s.ChunkIndex(max(0, start)); idx <= s.ChunkIndex(end-1); idx++ {
		if c, ok := s.chunks[idx]; ok {
			c.LastAccessed = now
		}
	}
}

// FindUnloadedRanges returns the parts of [start,end) that are not loaded,
// widened to chunk boundaries and merged.
func (s *Store[T]) FindUnloadedRanges(start, end int) []viewport.Range {
	start = max(0, start)
	if s.total >= 0 {
		end = min(end, s.total)
	}
	if end <= start {
		return nil
	}

	var ranges []viewport.Range
	for idx := s.ChunkIndex(start); idx <= s.ChunkIndex(end-1); idx++ {
		cs := idx * s.chunkSize
		ce := cs + s.chunkSize
		if s.total >= 0 {
			ce = min(ce, s.total)
		}
		a, b := max(start, cs), min(end, ce)
		if s.countLoaded(a, b) == b-a {
			continue
		}
		if n := len(ranges); n > 0 && ranges[n-1].End == cs {
			ranges[n-1].End = ce
			continue
		}
		ranges = append(ranges, viewport.Range{Start: cs, End: ce})
	}
	return ranges
}

func (s *Store[T]) countLoaded(a, b int) int {
	if b <= a {
		return 0
	}
	n := s.loaded.Rank(uint32(b - 1))
	if a > 0 {
		n -= s.loaded.Rank(uint32(a - 1))
	}
	return int(n)
}

// EvictDistant removes chunks that lie entirely outside the visible range
// padded by the eviction buffer, oldest first, until the cache fits its
// budget. It returns the number of items evicted.
func (s *Store[T]) EvictDistant(visibleStart, visibleEnd int) int {
	s.keep = viewport.Range{Start: visibleStart - s.buffer, End: visibleEnd + s.buffer}
	s.hasKeep = true
	return s.enforce()
}

// enforce evicts until the budget holds. Chunks outside the keep zone go
// first; chunks inside it are only evicted when the zone alone exceeds the
// budget.
func (s *Store[T]) enforce() int {
	if s.CachedItems() <= s.maxCached {
		return 0
	}

	type candidate struct {
		chunk    *Chunk[T]
		outside  bool
		distance int
	}
	candidates := make([]candidate, 0, len(s.chunks))
	for _, c := range s.chunks {
		outside, distance := s.placement(c.Index)
		candidates = append(candidates, candidate{chunk: c, outside: outside, distance: distance})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if a.outside != b.outside {
			if a.outside {
				return -1
			}
			return 1
		}
		if c := a.chunk.LastAccessed.Compare(b.chunk.LastAccessed); c != 0 {
			return c
		}
		if a.distance != b.distance {
			return b.distance - a.distance
		}
		return a.chunk.Index - b.chunk.Index
	})

	before := s.CachedItems()
	for _, c := range candidates {
		if s.CachedItems() <= s.maxCached {
			break
		}
		s.evict(c.chunk.Index)
	}
	n := before - s.CachedItems()
	s.evicted += n
	return n
}

// placement reports whether a chunk lies entirely outside the keep zone and
// how far from it.
func (s *Store[T]) placement(idx int) (bool, int) {
	if !s.hasKeep {
		return true, 0
	}
	cs, ce := idx*s.chunkSize, (idx+1)*s.chunkSize
	switch {
	case ce <= s.keep.Start:
		return true, s.keep.Start - ce
	case cs >= s.keep.End:
		return true, cs - s.keep.End
	}
	return false, 0
}

func (s *Store[T]) evict(idx int) {
	cs := uint64(idx * s.chunkSize)
	s.loaded.RemoveRange(cs, cs+uint64(s.chunkSize))
	delete(s.chunks, idx)
}

func (s *Store[T]) Stats() Stats {
	return Stats{
		Chunks:         len(s.chunks),
		CachedItems:    s.CachedItems(),
		MaxCachedItems: s.maxCached,
		ChunkSize:      s.chunkSize,
		Evicted:        s.evicted,
	}
}
