package virtual

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/samber/lo"
)

var (
	ErrDuplicateFeature = errors.New("virtual: duplicate feature")
	ErrFeatureConflict  = errors.New("virtual: conflicting features")
)

// Feature extends an engine at assembly time. Features run their Setup in
// ascending priority order; a feature may not be combined with any feature
// it names in Conflicts.
type Feature[T any] interface {
	Name() string
	Priority() int
	Conflicts() []string
	Setup(e *Engine[T]) error
}

// Source provides the items an engine renders.
type Source[T any] interface {
	Item(index int) T
	IsLoaded(index int) bool
}

// pipeline orders and validates features.
func pipeline[T any](features []Feature[T]) ([]Feature[T], error) {
	features = lo.Filter(features, func(f Feature[T], _ int) bool {
		return f != nil
	})
	names := lo.Map(features, func(f Feature[T], _ int) string {
		return f.Name()
	})
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateFeature, dups)
	}
	for _, f := range features {
		if clash := lo.Intersect(f.Conflicts(), names); len(clash) > 0 {
			return nil, fmt.Errorf("%w: %s and %v", ErrFeatureConflict, f.Name(), clash)
		}
	}
	slices.SortStableFunc(features, func(a, b Feature[T]) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return features, nil
}

const (
	staticItemsName   = "static-items"
	asyncDataName     = "async-data"
	stickToBottomName = "stick-to-bottom"
)

type staticItems[T any] struct {
	items []T
}

// StaticItems serves an in-memory slice.
func StaticItems[T any](items []T) Feature[T] {
	return &staticItems[T]{items: items}
}

func (f *staticItems[T]) Name() string        { return staticItemsName }
func (f *staticItems[T]) Priority() int       { return 0 }
func (f *staticItems[T]) Conflicts() []string { return []string{asyncDataName} }

func (f *staticItems[T]) Setup(e *Engine[T]) error {
	e.source = f
	e.SetTotal(len(f.items))
	return nil
}

func (f *staticItems[T]) Item(index int) T {
	if index < 0 || index >= len(f.items) {
		var zero T
		return zero
	}
	return f.items[index]
}

func (f *staticItems[T]) IsLoaded(index int) bool {
	return index >= 0 && index < len(f.items)
}

type asyncData[T any] struct {
	adapter data.Adapter[T]
	masker  data.Masker[T]
}

// AsyncData loads items on demand through adapter, showing placeholders
// built by masker until they arrive.
func AsyncData[T any](adapter data.Adapter[T], masker data.Masker[T]) Feature[T] {
	return &asyncData[T]{adapter: adapter, masker: masker}
}

func (f *asyncData[T]) Name() string        { return asyncDataName }
func (f *asyncData[T]) Priority() int       { return 0 }
func (f *asyncData[T]) Conflicts() []string { return []string{staticItemsName} }

func (f *asyncData[T]) Setup(e *Engine[T]) error {
	c, err := data.NewCoordinator(f.adapter, f.masker, data.Options{
		Store:    e.cfg.Store,
		Velocity: e.cfg.Velocity,
	})
	if err != nil {
		return fmt.Errorf("async data: %w", err)
	}
	e.data = c
	e.source = c
	return nil
}

type stickToBottom[T any] struct{}

// StickToBottom starts the engine at the end of the list and keeps it there
// as items are added, for as long as the user has not scrolled away.
func StickToBottom[T any]() Feature[T] {
	return stickToBottom[T]{}
}

func (stickToBottom[T]) Name() string        { return stickToBottomName }
func (stickToBottom[T]) Priority() int       { return 10 }
func (stickToBottom[T]) Conflicts() []string { return nil }

func (stickToBottom[T]) Setup(e *Engine[T]) error {
	e.OnTotalChange(func(c TotalChange) {
		if c.WasAtBottom {
			e.ScrollToEnd()
		}
	})
	e.OnViewportChange(func() {
		if e.pinned {
			e.ScrollToEnd()
		}
	})
	e.ScrollToEnd()
	e.state.Direction = data.DirectionBackward
	return nil
}

// Data returns the coordinator behind AsyncData, or nil.
func (e *Engine[T]) Data() *data.Coordinator[T] {
	return e.data
}

// Fetch loads r through the data coordinator. It touches no engine state and
// is safe to call from any goroutine; follow it with Reconcile on the
// goroutine that owns the engine.
func (e *Engine[T]) Fetch(ctx context.Context, start, end int) error {
	if e.data == nil {
		return nil
	}
	if !e.data.TotalKnown() {
		if err := e.data.Init(ctx); err != nil {
			return err
		}
	}
	return e.data.EnsureRange(ctx, start, end)
}

// Flush re-issues the load that velocity gating held back, if any. Like
// Fetch it is safe to call from any goroutine.
func (e *Engine[T]) Flush(ctx context.Context) error {
	if e.data == nil {
		return nil
	}
	return e.data.Flush(ctx)
}

// Reload forgets every loaded item, the total and every measurement. The
// next Sync or Fetch starts over from the first page.
func (e *Engine[T]) Reload() {
	if e.data == nil {
		return
	}
	e.data.Reset()
	e.SetTotal(0)
	if e.corrector != nil {
		e.corrector.Reset()
	}
	e.state.ScrollTop = e.clamp(e.state.ScrollTop)
	e.recompute()
	slog.Debug("Reloaded data source")
}
