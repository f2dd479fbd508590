package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/vlist/internal/pubsub"
	"github.com/charmbracelet/vlist/internal/virtual/sparse"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves Records for a fixed total. When gate is set every read
// blocks until the gate is closed or ctx is done.
type fakeAdapter struct {
	total int
	gate  chan struct{}
	err   error

	calls   atomic.Int32
	started chan ReadRequest

	mu       sync.Mutex
	requests []ReadRequest
}

func newFakeAdapter(total int) *fakeAdapter {
	return &fakeAdapter{total: total, started: make(chan ReadRequest, 16)}
}

func (a *fakeAdapter) Read(ctx context.Context, req ReadRequest) (ReadResult[Record], error) {
	a.calls.Add(1)
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	a.started <- req

	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
		}
	}
	if a.err != nil {
		return ReadResult[Record]{}, a.err
	}

	end := min(req.Offset+req.Limit, a.total)
	var items []Record
	for i := req.Offset; i < end; i++ {
		items = append(items, Record{
			Index:  i,
			Fields: map[string]string{"name": strings.Repeat("x", i%5+1)},
		})
	}
	return ReadResult[Record]{
		Items:   items,
		Total:   a.total,
		HasMore: end < a.total,
		Cursor:  "next",
	}, nil
}

func (a *fakeAdapter) Requests() []ReadRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ReadRequest(nil), a.requests...)
}

func newCoordinator(t *testing.T, a Adapter[Record]) *Coordinator[Record] {
	t.Helper()
	c, err := NewCoordinator(a, RecordMasker{Fields: []string{"name"}}, Options{
		Store: sparse.Options{ChunkSize: 100, MaxCachedItems: 1000},
	})
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func waitStarted(t *testing.T, a *fakeAdapter) ReadRequest {
	t.Helper()
	select {
	case req := <-a.started:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for adapter read")
	}
	return ReadRequest{}
}

func TestCoordinatorInit(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(1000)
	c := newCoordinator(t, a)
	require.False(t, c.TotalKnown())

	require.NoError(t, c.Init(t.Context()))

	state := c.State()
	require.True(t, c.TotalKnown())
	require.Equal(t, 1000, state.Total)
	require.Equal(t, 100, state.Cached)
	require.True(t, state.HasMore)
	require.Equal(t, "next", state.Cursor)
	require.False(t, state.IsLoading)
	require.Empty(t, state.PendingRanges)
	require.Equal(t, []ReadRequest{{Offset: 0, Limit: 100}}, a.Requests())
}

func TestCoordinatorEnsureRangeLoadsOnlyMissing(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(1000)
	c := newCoordinator(t, a)

	require.NoError(t, c.EnsureRange(t.Context(), 0, 150))
	require.NoError(t, c.EnsureRange(t.Context(), 50, 250))
	require.NoError(t, c.EnsureRange(t.Context(), 10, 20))

	reqs := a.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, 0, reqs[0].Offset)
	require.Equal(t, 200, reqs[0].Limit)
	require.Equal(t, 200, reqs[1].Offset)
	require.Equal(t, 100, reqs[1].Limit)
	require.Equal(t, "next", reqs[1].Cursor)

	for i := range 300 {
		require.True(t, c.IsLoaded(i), "index %d", i)
	}
	require.Equal(t, 150, c.Item(150).Index)
}

func TestCoordinatorDeduplicatesInflightChunks(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(1000)
	a.gate = make(chan struct{})
	c := newCoordinator(t, a)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = c.EnsureRange(t.Context(), 0, 300)
	}()
	first := waitStarted(t, a)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = c.EnsureRange(t.Context(), 100, 400)
	}()
	second := waitStarted(t, a)

	state := c.State()
	require.True(t, state.IsLoading)
	require.Equal(t, []viewport.Range{{Start: 0, End: 400}}, state.PendingRanges)

	close(a.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.EqualValues(t, 2, a.calls.Load())
	require.Equal(t, ReadRequest{Offset: 0, Limit: 300}, first)
	require.Equal(t, 300, second.Offset)
	require.Equal(t, 100, second.Limit)

	for i := range 400 {
		require.True(t, c.IsLoaded(i), "index %d", i)
	}
	require.False(t, c.State().IsLoading)
}

func TestCoordinatorVelocityGating(t *testing.T) {
	t.Parallel()

	t.Run("fast scroll defers loads", func(t *testing.T) {
		t.Parallel()

		a := newFakeAdapter(10_000)
		c := newCoordinator(t, a)
		t0 := time.Unix(0, 0)
		c.UpdateVelocity(0, t0)
		v, dir := c.UpdateVelocity(1000, t0.Add(10*time.Millisecond))
		require.Greater(t, v, float64(DefaultCancelThreshold))
		require.Equal(t, DirectionForward, dir)

		require.NoError(t, c.EnsureRange(t.Context(), 1000, 1050))
		require.Zero(t, a.calls.Load())
		require.False(t, c.IsLoaded(1000))

		require.True(t, c.Settle())
		require.Zero(t, c.Velocity())
		require.NoError(t, c.Flush(t.Context()))
		require.EqualValues(t, 1, a.calls.Load())
		require.True(t, c.IsLoaded(1000))

		require.False(t, c.Settle())
		require.NoError(t, c.Flush(t.Context()))
		require.EqualValues(t, 1, a.calls.Load())
	})

	t.Run("moderate scroll preloads ahead", func(t *testing.T) {
		t.Parallel()

		a := newFakeAdapter(10_000)
		c := newCoordinator(t, a)
		t0 := time.Unix(0, 0)
		c.UpdateVelocity(0, t0)
		v, _ := c.UpdateVelocity(100, t0.Add(10*time.Millisecond))
		require.Greater(t, v, float64(DefaultPreloadThreshold))
		require.Less(t, v, float64(DefaultCancelThreshold))

		require.NoError(t, c.EnsureRange(t.Context(), 0, 100))
		require.Equal(t, []ReadRequest{{Offset: 0, Limit: 200}}, a.Requests())
	})

	t.Run("backward preload", func(t *testing.T) {
		t.Parallel()

		a := newFakeAdapter(10_000)
		c := newCoordinator(t, a)
		t0 := time.Unix(0, 0)
		c.UpdateVelocity(1000, t0)
		_, dir := c.UpdateVelocity(900, t0.Add(10*time.Millisecond))
		require.Equal(t, DirectionBackward, dir)

		require.NoError(t, c.EnsureRange(t.Context(), 500, 600))
		require.Equal(t, []ReadRequest{{Offset: 400, Limit: 200}}, a.Requests())
	})
}

func TestCoordinatorErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a := newFakeAdapter(1000)
	a.err = boom
	c := newCoordinator(t, a)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	events := c.Subscribe(ctx)

	err := c.EnsureRange(t.Context(), 0, 50)
	require.ErrorIs(t, err, boom)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, viewport.Range{Start: 0, End: 100}, loadErr.Range)

	state := c.State()
	require.ErrorIs(t, state.Err, boom)
	require.Zero(t, state.Cached)
	require.False(t, state.IsLoading)

	var types []pubsub.EventType
	timeout := time.After(5 * time.Second)
	for len(types) < 3 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			if ev.Type == EventError {
				require.ErrorIs(t, ev.Payload.Err, boom)
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", types)
		}
	}
	require.Equal(t, []pubsub.EventType{EventLoadStarted, EventError, EventLoadEnded}, types)

	// no retry on its own; a later request tries again and clears the error
	a.err = nil
	require.NoError(t, c.EnsureRange(t.Context(), 0, 50))
	require.NoError(t, c.State().Err)
	require.EqualValues(t, 2, a.calls.Load())
}

func TestCoordinatorCancellationWritesNothing(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(1000)
	a.gate = make(chan struct{})
	c := newCoordinator(t, a)

	subCtx, stop := context.WithCancel(t.Context())
	defer stop()
	events := c.Subscribe(subCtx)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- c.EnsureRange(ctx, 0, 100)
	}()
	waitStarted(t, a)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	require.Eventually(t, func() bool {
		return !c.State().IsLoading
	}, 5*time.Second, 5*time.Millisecond)
	require.Zero(t, c.State().Cached)
	require.NoError(t, c.State().Err)
	require.False(t, c.IsLoaded(0))

	var types []pubsub.EventType
	timeout := time.After(5 * time.Second)
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("timed out, got %v", types)
		}
	}
	require.Equal(t, []pubsub.EventType{EventLoadStarted, EventLoadEnded}, types)

	// a cancelled read is not a failure; the next request reads again
	close(a.gate)
	require.NoError(t, c.EnsureRange(t.Context(), 0, 100))
	require.True(t, c.IsLoaded(0))
}

func TestCoordinatorResetDropsInflightReads(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(1000)
	a.gate = make(chan struct{})
	c := newCoordinator(t, a)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	events := c.Subscribe(ctx)

	done := make(chan error, 1)
	go func() {
		done <- c.EnsureRange(t.Context(), 0, 100)
	}()
	waitStarted(t, a)
	c.Reset()

	require.ErrorIs(t, <-done, context.Canceled)
	state := c.State()
	require.NoError(t, state.Err)
	require.False(t, state.IsLoading)
	require.Zero(t, state.Cached)
	require.Zero(t, state.Total)
	require.False(t, c.TotalKnown())

	var types []pubsub.EventType
	for {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			continue
		default:
		}
		break
	}
	require.Equal(t, []pubsub.EventType{EventLoadStarted}, types)

	close(a.gate)
	require.NoError(t, c.Init(t.Context()))
	require.Equal(t, 1000, c.State().Total)
	require.True(t, c.IsLoaded(0))
}

func TestCoordinatorCursorsFollowOffsets(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var cursors []string
	adapter := AdapterFunc[Record](func(ctx context.Context, req ReadRequest) (ReadResult[Record], error) {
		mu.Lock()
		cursors = append(cursors, req.Cursor)
		mu.Unlock()
		end := min(req.Offset+req.Limit, 1000)
		items := make([]Record, 0, end-req.Offset)
		for i := req.Offset; i < end; i++ {
			items = append(items, Record{Index: i})
		}
		return ReadResult[Record]{
			Items:   items,
			Total:   1000,
			HasMore: end < 1000,
			Cursor:  fmt.Sprintf("after-%d", end),
		}, nil
	})
	c := newCoordinator(t, adapter)

	for _, r := range []viewport.Range{
		{Start: 0, End: 100},
		{Start: 100, End: 200},
		{Start: 500, End: 600},
		{Start: 600, End: 700},
		{Start: 400, End: 500},
	} {
		require.NoError(t, c.EnsureRange(t.Context(), r.Start, r.End))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"", "after-100", "", "after-600", ""}, cursors)
	require.Equal(t, "after-500", c.State().Cursor)
}

func TestCoordinatorPlaceholders(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(1000)
	c := newCoordinator(t, a)

	before := c.Item(7)
	require.Equal(t, 7, before.Index)
	require.Equal(t, map[string]string{"name": ""}, before.Fields)

	require.NoError(t, c.Init(t.Context()))

	real := c.Item(7)
	require.Equal(t, "xxx", real.Get("name"))

	ph := c.Item(507)
	require.False(t, c.IsLoaded(507))
	require.Equal(t, 507, ph.Index)
	// profile pool holds the first 32 items, so 507 maps to item 507%32 = 27
	require.Equal(t, strings.Repeat("░", 27%5+1), ph.Get("name"))
}

func TestCoordinatorEvictAndReset(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter(5000)
	c, err := NewCoordinator[Record](a, nil, Options{
		Store: sparse.Options{ChunkSize: 100, MaxCachedItems: 300, EvictionBuffer: 50},
	})
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	require.NoError(t, c.EnsureRange(t.Context(), 0, 300))
	require.NoError(t, c.EnsureRange(t.Context(), 1000, 1100))
	require.LessOrEqual(t, c.State().Cached, 300)

	c.Evict(1000, 1100)
	require.True(t, c.IsLoaded(1000))
	require.LessOrEqual(t, c.Stats().CachedItems, 300)

	var zero Record
	require.Equal(t, zero, c.Item(4000))

	c.Reset()
	state := c.State()
	require.Zero(t, state.Cached)
	require.Zero(t, state.Total)
	require.False(t, c.TotalKnown())
	require.False(t, c.IsLoaded(1000))
}

func TestMergeRanges(t *testing.T) {
	t.Parallel()

	got := mergeRanges([]viewport.Range{
		{Start: 300, End: 400},
		{Start: 0, End: 100},
		{Start: 100, End: 200},
		{Start: 50, End: 50},
		{Start: 350, End: 500},
	})
	assert.Equal(t, []viewport.Range{{Start: 0, End: 200}, {Start: 300, End: 500}}, got)
	assert.Nil(t, mergeRanges(nil))
}
