package data

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/vlist/internal/pubsub"
	"github.com/charmbracelet/vlist/internal/virtual/sparse"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	EventLoadStarted  pubsub.EventType = "load_started"
	EventLoadEnded    pubsub.EventType = "load_ended"
	EventTotalChanged pubsub.EventType = "total_changed"
	EventError        pubsub.EventType = "error"
)

// LoadEvent describes a load lifecycle step.
type LoadEvent struct {
	Range viewport.Range
	Count int
	Total int
	Err   error
}

// DataState is a snapshot of the coordinator. Only the coordinator mutates
// the underlying state; State returns copies.
type DataState struct {
	Total         int
	Cached        int
	IsLoading     bool
	PendingRanges []viewport.Range
	Err           error
	HasMore       bool
	Cursor        string
}

// Options configures a Coordinator.
type Options struct {
	Store    sparse.Options
	Velocity VelocityOptions
}

type fetch struct {
	id     string
	gen    uint64
	rng    viewport.Range
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Coordinator sits between a view and an adapter. It loads missing ranges
// into a sparse store, sharing in-flight reads between callers, and serves
// placeholders for indices that are not loaded. It is safe for concurrent
// use.
type Coordinator[T any] struct {
	adapter Adapter[T]
	broker  *pubsub.Broker[LoadEvent]
	opts    VelocityOptions

	mu           sync.Mutex
	store        *sparse.Store[T]
	inflight     map[int]*fetch
	failed       map[int]error
	// cursors maps the offset a page starts at to the cursor that reads it
	cursors      map[int]string
	gen          uint64
	state        DataState
	totalKnown   bool
	tracker      Tracker
	deferred     *viewport.Range
	placeholders placeholders[T]
}

func NewCoordinator[T any](adapter Adapter[T], masker Masker[T], opts Options) (*Coordinator[T], error) {
	store, err := sparse.New[T](opts.Store)
	if err != nil {
		return nil, err
	}
	return &Coordinator[T]{
		adapter:      adapter,
		broker:       pubsub.NewBroker[LoadEvent](),
		opts:         opts.Velocity.withDefaults(),
		store:        store,
		inflight:     make(map[int]*fetch),
		failed:       make(map[int]error),
		cursors:      make(map[int]string),
		placeholders: placeholders[T]{masker: masker},
	}, nil
}

// Subscribe returns load events until ctx is done.
func (c *Coordinator[T]) Subscribe(ctx context.Context) <-chan pubsub.Event[LoadEvent] {
	return c.broker.Subscribe(ctx)
}

func (c *Coordinator[T]) Shutdown() {
	c.CancelAll()
	c.broker.Shutdown()
}

// State returns a copy of the current data state.
func (c *Coordinator[T]) State() DataState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.PendingRanges = slices.Clone(s.PendingRanges)
	return s
}

// TotalKnown reports whether an adapter or caller has provided the total.
func (c *Coordinator[T]) TotalKnown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalKnown
}

// SetTotal records a total known ahead of any load.
func (c *Coordinator[T]) SetTotal(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTotalLocked(total)
}

func (c *Coordinator[T]) setTotalLocked(total int) bool {
	changed := !c.totalKnown || c.state.Total != total
	c.totalKnown = true
	c.state.Total = total
	c.store.SetTotal(total)
	c.refreshLocked()
	return changed
}

// Item returns the loaded item at index or a placeholder shaped like the
// loaded ones.
func (c *Coordinator[T]) Item(index int) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.store.Get(index); ok {
		return item
	}
	return c.placeholders.get(index)
}

func (c *Coordinator[T]) IsLoaded(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Has(index)
}

// UpdateVelocity feeds a scroll position to the velocity tracker.
func (c *Coordinator[T]) UpdateVelocity(pos float64, now time.Time) (float64, Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.tracker.Update(pos, now)
	return v, c.tracker.Direction()
}

func (c *Coordinator[T]) Velocity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Velocity()
}

// Settle marks scrolling as stopped. It returns true when a load was
// suppressed while moving and should be flushed.
func (c *Coordinator[T]) Settle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.Settle()
	return c.deferred != nil
}

// Flush loads the range that was suppressed while scrolling fast, if any.
func (c *Coordinator[T]) Flush(ctx context.Context) error {
	c.mu.Lock()
	r := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	return c.EnsureRange(ctx, r.Start, r.End)
}

// Init loads the first chunk so the total becomes known.
func (c *Coordinator[T]) Init(ctx context.Context) error {
	c.mu.Lock()
	waits, starts := c.planLocked(ctx, 0, c.store.ChunkSize())
	c.mu.Unlock()
	return c.await(ctx, waits, starts)
}

// EnsureRange makes sure [start,end) is loaded, returning once every read it
// depends on has finished. Concurrent callers share reads for the chunks
// they have in common. While the velocity is above the cancel threshold no
// read is issued; the range is remembered for Flush instead.
func (c *Coordinator[T]) EnsureRange(ctx context.Context, start, end int) error {
	c.mu.Lock()
	v := c.tracker.Velocity()
	if v > c.opts.CancelThreshold {
		c.deferred = &viewport.Range{Start: start, End: end}
		c.mu.Unlock()
		slog.Debug("Load suppressed while scrolling fast", "start", start, "end", end, "velocity", v)
		return nil
	}
	if v > c.opts.PreloadThreshold {
		if c.tracker.Direction() == DirectionForward {
			end += c.opts.PreloadAhead
		} else {
			start -= c.opts.PreloadAhead
		}
	}
	waits, starts := c.planLocked(ctx, start, end)
	c.mu.Unlock()
	return c.await(ctx, waits, starts)
}

// planLocked splits the unloaded parts of [start,end) into chunks that are
// already being fetched, which are joined, and the rest, which get new
// fetches covering the longest runs of adjacent chunks.
func (c *Coordinator[T]) planLocked(ctx context.Context, start, end int) (waits, starts []*fetch) {
	size := c.store.ChunkSize()
	seen := make(map[*fetch]bool)
	join := func(f *fetch) {
		if !seen[f] {
			seen[f] = true
			waits = append(waits, f)
		}
	}

	for _, r := range c.store.FindUnloadedRanges(start, end) {
		run := viewport.Range{Start: -1}
		flush := func() {
			if run.Start < 0 {
				return
			}
			f := c.newFetchLocked(ctx, run)
			starts = append(starts, f)
			join(f)
			run = viewport.Range{Start: -1}
		}
		for cs := r.Start; cs < r.End; cs += size {
			ce := min(cs+size, r.End)
			if f, ok := c.inflight[cs/size]; ok {
				flush()
				join(f)
				continue
			}
			if run.Start < 0 {
				run.Start = cs
			}
			run.End = ce
		}
		flush()
	}
	if len(starts) > 0 {
		c.refreshLocked()
	}
	return waits, starts
}

func (c *Coordinator[T]) newFetchLocked(ctx context.Context, r viewport.Range) *fetch {
	fctx, cancel := context.WithCancel(ctx)
	f := &fetch{
		id:     uuid.NewString(),
		gen:    c.gen,
		rng:    r,
		ctx:    fctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	size := c.store.ChunkSize()
	for cs := r.Start; cs < r.End; cs += size {
		c.inflight[cs/size] = f
	}
	return f
}

func (c *Coordinator[T]) await(ctx context.Context, waits, starts []*fetch) error {
	for _, f := range starts {
		go c.run(f)
	}
	if len(waits) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range waits {
		g.Go(func() error {
			select {
			case <-f.done:
				return f.err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// run performs one read. A result is applied in a single SetRange call, and
// a failed or cancelled read writes nothing. Reads started before the last
// Reset leave no trace at all.
func (c *Coordinator[T]) run(f *fetch) {
	defer f.cancel()

	c.mu.Lock()
	cursor := c.cursors[f.rng.Start]
	c.mu.Unlock()

	slog.Debug("Loading range", "fetch", f.id, "offset", f.rng.Start, "limit", f.rng.Len())
	c.broker.Publish(EventLoadStarted, LoadEvent{Range: f.rng})

	res, err := c.adapter.Read(f.ctx, ReadRequest{
		Offset: f.rng.Start,
		Limit:  f.rng.Len(),
		Cursor: cursor,
	})
	if err == nil {
		// results that arrive after cancellation are discarded
		err = f.ctx.Err()
	}

	c.mu.Lock()
	if f.gen != c.gen {
		c.mu.Unlock()
		f.err = context.Canceled
		close(f.done)
		slog.Debug("Dropped read from before reset", "fetch", f.id)
		return
	}
	size := c.store.ChunkSize()
	for cs := f.rng.Start; cs < f.rng.End; cs += size {
		if c.inflight[cs/size] == f {
			delete(c.inflight, cs/size)
		}
	}

	var totalChanged bool
	cancelled := errors.Is(err, context.Canceled)
	if err != nil {
		err = &LoadError{Range: f.rng, Err: err}
		if !cancelled {
			for cs := f.rng.Start; cs < f.rng.End; cs += size {
				c.failed[cs/size] = err
			}
		}
	} else {
		end := f.rng.Start + len(res.Items)
		switch {
		case res.Total >= 0 && (res.Total > 0 || len(res.Items) == 0):
			totalChanged = c.setTotalLocked(res.Total)
		case res.Total < 0:
			totalChanged = c.setTotalLocked(c.provisionalTotalLocked(end, res.HasMore))
		}
		c.store.SetRange(f.rng.Start, res.Items)
		c.placeholders.capture(res.Items)
		c.state.HasMore = res.HasMore
		if res.Cursor != "" {
			c.cursors[end] = res.Cursor
			c.state.Cursor = res.Cursor
		}
		for cs := f.rng.Start; cs < f.rng.End; cs += size {
			delete(c.failed, cs/size)
		}
	}
	c.refreshLocked()
	total := c.state.Total
	c.mu.Unlock()

	f.err = err
	close(f.done)

	if err != nil && !cancelled {
		slog.Warn("Failed to load range", "fetch", f.id, "range", f.rng.String(), "error", err)
		c.broker.Publish(EventError, LoadEvent{Range: f.rng, Total: total, Err: err})
	}
	if totalChanged {
		c.broker.Publish(EventTotalChanged, LoadEvent{Range: f.rng, Total: total})
	}
	count := 0
	if err == nil {
		count = len(res.Items)
	}
	c.broker.Publish(EventLoadEnded, LoadEvent{Range: f.rng, Count: count, Total: total, Err: err})
}

// provisionalTotalLocked is the total to assume after a page ending at end
// when the adapter does not know the total. While more pages exist the list
// reaches one chunk past what is loaded, so scrolling to the end asks for
// the next page; the last page fixes the total.
func (c *Coordinator[T]) provisionalTotalLocked(end int, hasMore bool) int {
	if !hasMore {
		return end
	}
	total := end + c.store.ChunkSize()
	if c.totalKnown {
		total = max(total, c.state.Total)
	}
	return total
}

// refreshLocked recomputes the derived parts of the state.
func (c *Coordinator[T]) refreshLocked() {
	c.state.Cached = c.store.CachedItems()

	seen := make(map[*fetch]bool)
	var pending []viewport.Range
	for _, f := range c.inflight {
		if !seen[f] {
			seen[f] = true
			pending = append(pending, f.rng)
		}
	}
	c.state.PendingRanges = mergeRanges(pending)
	c.state.IsLoading = len(pending) > 0

	c.state.Err = nil
	for _, idx := range sortedKeys(c.failed) {
		c.state.Err = c.failed[idx]
	}
}

// Evict trims the store around the visible range.
func (c *Coordinator[T]) Evict(visibleStart, visibleEnd int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.store.EvictDistant(visibleStart, visibleEnd)
	if n > 0 {
		slog.Debug("Evicted distant items", "count", n, "cached", c.store.CachedItems())
		c.refreshLocked()
	}
	return n
}

// Touch marks the chunks of a rendered range as recently used.
func (c *Coordinator[T]) Touch(start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.TouchChunksForRange(start, end)
}

func (c *Coordinator[T]) Stats() sparse.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Stats()
}

// CancelAll cancels every in-flight read.
func (c *Coordinator[T]) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.inflight {
		f.cancel()
	}
}

// Reset cancels in-flight reads and forgets everything that was loaded.
// Reads still running when it is called are discarded when they return.
func (c *Coordinator[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.inflight {
		f.cancel()
	}
	c.gen++
	c.inflight = make(map[int]*fetch)
	c.failed = make(map[int]error)
	c.cursors = make(map[int]string)
	c.store.Clear()
	c.placeholders.reset()
	c.deferred = nil
	c.totalKnown = false
	c.state = DataState{}
}
