// Package virtual renders arbitrarily long lists by only materializing the
// items that intersect the viewport.
//
// An Engine owns a size model, a scroll compressor, a range calculator and,
// depending on its features, a data coordinator and a measurement
// corrector. It is driven from a single goroutine: scroll, resize, data and
// measurement changes all go through its methods, which update the State
// arena in place. Snapshot, State and Range return copies.
package virtual

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/charmbracelet/vlist/internal/pubsub"
	"github.com/charmbracelet/vlist/internal/virtual/compress"
	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/charmbracelet/vlist/internal/virtual/measure"
	"github.com/charmbracelet/vlist/internal/virtual/sizing"
	"github.com/charmbracelet/vlist/internal/virtual/sparse"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
)

const DefaultOverscan = 3

// bottomEpsilon absorbs float drift when deciding whether the view sits at
// the end of the list.
const bottomEpsilon = 1e-6

// Config configures an Engine.
type Config struct {
	Sizing           sizing.Spec
	Overscan         int
	CompressionLimit float64
	Store            sparse.Options
	Velocity         data.VelocityOptions
	// Observer measures items when Sizing uses an estimated size.
	Observer measure.Observer
	// Clock feeds the velocity tracker. Defaults to time.Now.
	Clock func() time.Time
}

// State is the engine arena. Every mutating engine method updates it in
// place.
type State struct {
	// ScrollTop is the physical scroll position.
	ScrollTop   float64         `json:"scroll_top" yaml:"scroll_top"`
	LogicalTop  float64         `json:"logical_top" yaml:"logical_top"`
	Viewport    float64         `json:"viewport" yaml:"viewport"`
	Total       int             `json:"total" yaml:"total"`
	Direction   data.Direction  `json:"direction" yaml:"direction"`
	Velocity    float64         `json:"velocity" yaml:"velocity"`
	Scrolling   bool            `json:"scrolling" yaml:"scrolling"`
	Visible     viewport.Range  `json:"visible" yaml:"visible"`
	Render      viewport.Range  `json:"render" yaml:"render"`
	Compression compress.State  `json:"compression" yaml:"compression"`
}

// Snapshot is a restorable scroll position. Index and Within anchor the
// position to an item so it survives size changes; ScrollTop is used when
// the anchor is out of range.
type Snapshot struct {
	ScrollTop float64 `json:"scroll_top" yaml:"scroll_top"`
	Index     int     `json:"index" yaml:"index"`
	Within    float64 `json:"within" yaml:"within"`
}

// TotalChange is passed to total change hooks.
type TotalChange struct {
	Old, New    int
	WasAtBottom bool
}

// Align places an item when scrolling to it.
type Align int

const (
	// AlignAuto scrolls the least needed to make the item visible.
	AlignAuto Align = iota
	AlignStart
	AlignEnd
)

type Engine[T any] struct {
	cfg      Config
	features []Feature[T]
	clock    func() time.Time

	model      sizing.Model
	measured   *sizing.Measured
	compressor *compress.Compressor
	calc       *viewport.Calculator
	corrector  *measure.Corrector

	source  Source[T]
	data    *data.Coordinator[T]
	tracker data.Tracker
	broker  *pubsub.Broker[Event]

	onTotal    []func(TotalChange)
	onViewport []func()
	pinned     bool

	state State
}

// New assembles an engine from cfg and features. Configuration errors are
// returned here and nowhere else.
func New[T any](cfg Config, features ...Feature[T]) (*Engine[T], error) {
	model, err := sizing.New(cfg.Sizing, 0)
	if err != nil {
		return nil, err
	}
	if cfg.Overscan <= 0 {
		cfg.Overscan = DefaultOverscan
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	ordered, err := pipeline(features)
	if err != nil {
		return nil, err
	}

	e := &Engine[T]{
		cfg:        cfg,
		features:   ordered,
		clock:      cfg.Clock,
		model:      model,
		compressor: compress.New(cfg.CompressionLimit),
		calc:       viewport.NewCalculator(cfg.Overscan),
		broker:     pubsub.NewBroker[Event](),
	}
	if m, ok := model.(*sizing.Measured); ok {
		e.measured = m
		e.corrector = measure.New(m, cfg.Observer)
	}
	e.state.Compression, _ = e.compressor.Update(model)

	for _, f := range ordered {
		if err := f.Setup(e); err != nil {
			return nil, err
		}
		slog.Debug("Feature ready", "feature", f.Name(), "priority", f.Priority())
	}
	e.recompute()
	return e, nil
}

// Features returns the feature names in pipeline order.
func (e *Engine[T]) Features() []string {
	names := make([]string, len(e.features))
	for i, f := range e.features {
		names[i] = f.Name()
	}
	return names
}

// OnTotalChange registers fn to run after every change of the item count.
func (e *Engine[T]) OnTotalChange(fn func(TotalChange)) {
	e.onTotal = append(e.onTotal, fn)
}

// OnViewportChange registers fn to run after the viewport is resized.
func (e *Engine[T]) OnViewportChange(fn func()) {
	e.onViewport = append(e.onViewport, fn)
}

// Subscribe returns engine events until ctx is done.
func (e *Engine[T]) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return e.broker.Subscribe(ctx)
}

// Shutdown cancels in-flight loads and closes every subscription.
func (e *Engine[T]) Shutdown() {
	if e.data != nil {
		e.data.Shutdown()
	}
	e.broker.Shutdown()
}

func (e *Engine[T]) Model() sizing.Model { return e.model }

func (e *Engine[T]) Total() int { return e.model.Total() }

// State returns a copy of the arena.
func (e *Engine[T]) State() State { return e.state }

func (e *Engine[T]) Range() viewport.Result { return e.calc.Last() }

func (e *Engine[T]) Compression() compress.State { return e.state.Compression }

// MaxScroll is the largest physical scroll position. While a gesture is
// in progress it follows the published content size, so measurements never
// shrink the scroll extent under the user; Idle applies the live extent.
func (e *Engine[T]) MaxScroll() float64 {
	live := e.compressor.MaxScroll(e.state.Viewport)
	if e.corrector == nil || !e.corrector.Scrolling() {
		return live
	}
	return max(live, e.ContentSize()-e.state.Viewport)
}

// ContentSize is the physical size of the scrollable content. With measured
// sizes it lags behind the model while scrolling.
func (e *Engine[T]) ContentSize() float64 {
	if e.corrector != nil {
		return e.compressor.ToPhysical(e.corrector.ContentSize())
	}
	return e.state.Compression.VirtualSize
}

// AtBottom reports whether the view shows the end of the list.
func (e *Engine[T]) AtBottom() bool {
	return e.state.ScrollTop >= e.MaxScroll()-bottomEpsilon
}

// Item returns the item at index, or a placeholder while it loads.
func (e *Engine[T]) Item(index int) T {
	if e.source == nil {
		var zero T
		return zero
	}
	return e.source.Item(index)
}

func (e *Engine[T]) IsLoaded(index int) bool {
	return e.source != nil && e.source.IsLoaded(index)
}

// ItemPosition is the position of an item relative to the top of the
// viewport.
func (e *Engine[T]) ItemPosition(index int) float64 {
	if e.state.Compression.IsCompressed {
		return e.compressor.ItemPosition(index, e.state.ScrollTop, e.state.Viewport)
	}
	return e.model.Offset(index) - e.state.LogicalTop
}

// SetViewport sets the viewport size.
func (e *Engine[T]) SetViewport(size float64) {
	if !finite(size) || size < 0 || size == e.state.Viewport {
		return
	}
	e.state.Viewport = size
	e.state.ScrollTop = e.clamp(e.state.ScrollTop)
	e.recompute()
	for _, fn := range e.onViewport {
		fn()
	}
}

// SetTotal rebuilds the size model for a new item count. The model is fully
// rebuilt before anything reads offsets again.
func (e *Engine[T]) SetTotal(total int) {
	total = max(0, total)
	old := e.model.Total()
	if total == old && e.state.Total == total {
		return
	}
	change := TotalChange{Old: old, New: total, WasAtBottom: e.AtBottom()}

	e.model.Rebuild(total)
	e.state.Total = total
	if e.corrector != nil {
		e.corrector.Forget(total)
		e.corrector.Refresh()
	}
	if e.data != nil && e.data.State().Total != total {
		e.data.SetTotal(total)
	}
	e.sizesChanged()
	e.state.ScrollTop = e.clamp(e.state.ScrollTop)
	e.recompute()

	slog.Debug("Total changed", "old", old, "new", total)
	for _, fn := range e.onTotal {
		fn(change)
	}
}

// ScrollTo moves to a physical scroll position.
func (e *Engine[T]) ScrollTo(physical float64) {
	if !finite(physical) {
		return
	}
	physical = e.clamp(physical)
	if physical == e.state.ScrollTop {
		return
	}
	if physical > e.state.ScrollTop {
		e.state.Direction = data.DirectionForward
	} else {
		e.state.Direction = data.DirectionBackward
	}
	e.state.ScrollTop = physical
	e.state.Scrolling = true
	if e.corrector != nil {
		e.corrector.SetScrolling()
	}
	e.pinned = e.AtBottom()

	e.recompute()
	e.broker.Publish(EventScroll, Event{
		Position:  physical,
		Direction: e.state.Direction,
	})
	e.updateVelocity()
}

// ScrollBy moves the physical scroll position by delta.
func (e *Engine[T]) ScrollBy(delta float64) {
	e.ScrollTo(e.state.ScrollTop + delta)
}

func (e *Engine[T]) ScrollToTop() {
	e.ScrollTo(0)
}

func (e *Engine[T]) ScrollToEnd() {
	e.ScrollTo(e.MaxScroll())
	e.pinned = true
}

// ScrollToIndex brings an item into view.
func (e *Engine[T]) ScrollToIndex(index int, align Align) {
	total := e.model.Total()
	if total == 0 {
		return
	}
	index = min(max(index, 0), total-1)
	top, size := e.model.Offset(index), e.model.Size(index)
	vp := e.state.Viewport
	logical := e.state.LogicalTop

	var target float64
	switch align {
	case AlignStart:
		target = top
	case AlignEnd:
		target = top + size - vp
	default:
		switch {
		case top < logical:
			target = top
		case top+size > logical+vp:
			target = top + size - vp
		default:
			return
		}
	}
	target = max(0, target)
	if e.compressor.IsCompressed() {
		// land on the item's share of the compressed track
		e.ScrollTo(e.compressor.PhysicalOffset(index) + (target-top)*e.state.Compression.Ratio)
		return
	}
	e.ScrollTo(target)
}

// Measure applies queued measurements. Size changes above the viewport are
// compensated so the visible items stay still.
func (e *Engine[T]) Measure() measure.Correction {
	if e.corrector == nil || !e.corrector.Pending() {
		return measure.Correction{}
	}
	corr := e.corrector.Apply(e.state.Visible.Start)
	if corr.Applied == 0 {
		return corr
	}
	wasAtBottom := e.pinned && e.AtBottom()
	e.sizesChanged()
	if corr.ScrollDelta != 0 && !e.state.Compression.IsCompressed {
		e.state.ScrollTop = e.clamp(e.state.ScrollTop + corr.ScrollDelta)
	}
	if wasAtBottom {
		e.state.ScrollTop = e.MaxScroll()
	}
	e.state.ScrollTop = e.clamp(e.state.ScrollTop)
	e.recompute()
	slog.Debug("Applied measurements", "applied", corr.Applied, "measured", e.measured.MeasuredCount(), "delta", corr.ScrollDelta)
	return corr
}

// Deliver queues measurements for the next Measure call. It is safe to call
// from any goroutine.
func (e *Engine[T]) Deliver(ms ...measure.Measurement) {
	if e.corrector != nil {
		e.corrector.Deliver(ms...)
	}
}

// Idle ends a scroll gesture. It reports whether loads were held back while
// scrolling fast and should now be fetched.
func (e *Engine[T]) Idle() bool {
	e.state.Scrolling = false
	if e.corrector != nil {
		changed := e.corrector.SetIdle()
		if top := e.clamp(e.state.ScrollTop); changed || top != e.state.ScrollTop {
			e.state.ScrollTop = top
			e.recompute()
		}
	}
	flush := false
	if e.data != nil {
		flush = e.data.Settle()
	} else {
		e.tracker.Settle()
	}
	if e.state.Velocity != 0 {
		e.state.Velocity = 0
		e.broker.Publish(EventVelocityChanged, Event{Velocity: 0, Direction: e.state.Direction})
	}
	return flush
}

// Reconcile folds the data coordinator's state into the engine after a
// fetch: a new total rebuilds the model, distant chunks are evicted and
// rendered chunks are marked as used. It reports whether the total changed.
func (e *Engine[T]) Reconcile() bool {
	if e.data == nil {
		return false
	}
	changed := false
	if e.data.TotalKnown() {
		if total := e.data.State().Total; total != e.model.Total() {
			e.SetTotal(total)
			changed = true
		}
	}
	e.data.Evict(e.state.Visible.Start, e.state.Visible.End)
	e.data.Touch(e.state.Render.Start, e.state.Render.End)
	return changed
}

// Sync loads the render range and reconciles. It blocks until the loads it
// needs have finished.
func (e *Engine[T]) Sync(ctx context.Context) error {
	if e.data == nil {
		return nil
	}
	if !e.data.TotalKnown() {
		if err := e.data.Init(ctx); err != nil {
			return err
		}
		e.Reconcile()
	}
	r := e.state.Render
	if err := e.data.EnsureRange(ctx, r.Start, r.End); err != nil {
		return err
	}
	e.Reconcile()
	return nil
}

// Snapshot captures the current scroll position.
func (e *Engine[T]) Snapshot() Snapshot {
	s := Snapshot{ScrollTop: e.state.ScrollTop}
	if e.model.Total() > 0 {
		s.Index = e.model.IndexAtOffset(e.state.LogicalTop)
		s.Within = e.state.LogicalTop - e.model.Offset(s.Index)
	}
	return s
}

// Restore returns to a snapshot. Non-finite values are dropped.
func (e *Engine[T]) Restore(s Snapshot) {
	if s.Index >= 0 && s.Index < e.model.Total() && finite(s.Within) && !e.compressor.IsCompressed() {
		e.ScrollTo(e.model.Offset(s.Index) + s.Within)
		return
	}
	if finite(s.ScrollTop) {
		e.ScrollTo(s.ScrollTop)
	}
}

// sizesChanged refreshes everything derived from the size model.
func (e *Engine[T]) sizesChanged() {
	state, flipped := e.compressor.Update(e.model)
	e.state.Compression = state
	e.calc.Invalidate()
	if flipped {
		slog.Debug("Compression changed", "compressed", state.IsCompressed, "ratio", state.Ratio)
		e.broker.Publish(EventCompressionChanged, Event{Compression: state})
	}
}

func (e *Engine[T]) recompute() {
	if e.state.Compression.IsCompressed {
		e.state.LogicalTop = e.compressor.LogicalTop(e.state.ScrollTop, e.state.Viewport)
	} else {
		// ScrollTop is clamped to MaxScroll, which may still hold the
		// published extent while scrolling
		e.state.LogicalTop = e.state.ScrollTop
	}
	res := e.calc.Calculate(e.model, e.state.LogicalTop, e.state.Viewport)
	e.state.Visible = res.Visible
	e.state.Render = res.Render
	if res.Changed {
		e.broker.Publish(EventRangeChanged, Event{
			Range:   res.Render,
			Visible: res.Visible,
		})
	}
	if e.corrector != nil {
		e.corrector.Request(res.Render)
	}
}

func (e *Engine[T]) updateVelocity() {
	now := e.clock()
	var v float64
	if e.data != nil {
		v, _ = e.data.UpdateVelocity(e.state.LogicalTop, now)
	} else {
		v = e.tracker.Update(e.state.LogicalTop, now)
	}
	if v != e.state.Velocity {
		e.state.Velocity = v
		e.broker.Publish(EventVelocityChanged, Event{Velocity: v, Direction: e.state.Direction})
	}
}

func (e *Engine[T]) clamp(physical float64) float64 {
	return min(max(physical, 0), e.MaxScroll())
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
