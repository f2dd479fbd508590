package list

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/key"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/vlist/internal/csync"
	"github.com/charmbracelet/vlist/internal/virtual"
	"github.com/charmbracelet/vlist/internal/virtual/measure"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
	"github.com/charmbracelet/x/ansi"
)

const (
	ViewportDefaultScrollSize = 2
	DefaultIdleTimeout        = 150 * time.Millisecond

	// maxMeasurePasses bounds how often one update may re-measure after a
	// correction uncovered new rows.
	maxMeasurePasses = 4
)

// RenderFunc renders one row. loaded is false while the row shows a
// placeholder.
type RenderFunc[T any] func(item T, index int, loaded bool, width int) string

type confOptions struct {
	width, height int
	keyMap        KeyMap
	enableMouse   bool
	idleTimeout   time.Duration
}

type ListOption func(*confOptions)

// WithSize sets the size of the list.
func WithSize(width, height int) ListOption {
	return func(l *confOptions) {
		l.width = width
		l.height = height
	}
}

// WithEnableMouse enables mouse wheel scrolling.
func WithEnableMouse() ListOption {
	return func(l *confOptions) {
		l.enableMouse = true
	}
}

// WithIdleTimeout sets how long the list waits after the last scroll before
// it treats scrolling as finished.
func WithIdleTimeout(d time.Duration) ListOption {
	return func(l *confOptions) {
		if d > 0 {
			l.idleTimeout = d
		}
	}
}

type idleMsg struct {
	seq int
}

type loadedMsg struct {
	rng viewport.Range
	err error
}

// List is a bubbletea model that shows an engine's render range.
type List[T any] struct {
	*confOptions

	ctx    context.Context
	cancel context.CancelFunc

	engine *virtual.Engine[T]
	render RenderFunc[T]

	viewCache *csync.Map[int, string]
	// rows the engine asked to measure that are not loaded yet
	observed []int

	idleSeq  int
	rendered string
}

// New builds the engine from cfg and features and wraps it in a list. Rows
// with estimated sizes are measured with lipgloss.Height once they are
// loaded.
func New[T any](cfg virtual.Config, render RenderFunc[T], features []virtual.Feature[T], opts ...ListOption) (*List[T], error) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &List[T]{
		confOptions: &confOptions{
			keyMap:      DefaultKeyMap(),
			idleTimeout: DefaultIdleTimeout,
		},
		ctx:       ctx,
		cancel:    cancel,
		render:    render,
		viewCache: csync.NewMap[int, string](),
	}
	for _, opt := range opts {
		opt(l.confOptions)
	}
	if cfg.Observer == nil {
		cfg.Observer = measure.ObserverFunc(func(index int) {
			l.observed = append(l.observed, index)
		})
	}

	engine, err := virtual.New(cfg, features...)
	if err != nil {
		cancel()
		return nil, err
	}
	l.engine = engine
	if l.height > 0 {
		l.engine.SetViewport(float64(l.height))
	}
	l.refresh()
	return l, nil
}

// Engine returns the engine behind the list.
func (l *List[T]) Engine() *virtual.Engine[T] {
	return l.engine
}

// KeyMap returns the bindings the list reacts to.
func (l *List[T]) KeyMap() KeyMap {
	return l.keyMap
}

// Close cancels in-flight loads and shuts the engine down.
func (l *List[T]) Close() {
	l.cancel()
	l.engine.Shutdown()
}

func (l *List[T]) Init() tea.Cmd {
	return l.loadCmd()
}

func (l *List[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.MouseWheelMsg:
		if l.enableMouse {
			return l.handleMouseWheel(msg)
		}
		return l, nil
	case tea.KeyPressMsg:
		switch {
		case key.Matches(msg, l.keyMap.LineDown):
			return l, l.MoveDown(1)
		case key.Matches(msg, l.keyMap.LineUp):
			return l, l.MoveUp(1)
		case key.Matches(msg, l.keyMap.RecordDown):
			return l, l.ItemBelow()
		case key.Matches(msg, l.keyMap.RecordUp):
			return l, l.ItemAbove()
		case key.Matches(msg, l.keyMap.HalfPageDown):
			return l, l.MoveDown(max(1, l.height/2))
		case key.Matches(msg, l.keyMap.HalfPageUp):
			return l, l.MoveUp(max(1, l.height/2))
		case key.Matches(msg, l.keyMap.PageDown):
			return l, l.MoveDown(max(1, l.height))
		case key.Matches(msg, l.keyMap.PageUp):
			return l, l.MoveUp(max(1, l.height))
		case key.Matches(msg, l.keyMap.Last):
			return l, l.GoToBottom()
		case key.Matches(msg, l.keyMap.First):
			return l, l.GoToTop()
		case key.Matches(msg, l.keyMap.Reload):
			return l, l.Reload()
		}
	case idleMsg:
		if msg.seq != l.idleSeq {
			return l, nil
		}
		flush := l.engine.Idle()
		l.refresh()
		if flush {
			// the held back range may lie behind the one idle settled on
			return l, tea.Batch(l.flushCmd(), l.loadCmd())
		}
		return l, l.loadCmd()
	case loadedMsg:
		if msg.err != nil {
			slog.Debug("List load failed", "range", msg.rng, "error", msg.err)
		}
		totalChanged := l.engine.Reconcile()
		l.refresh()
		if totalChanged && msg.err == nil {
			return l, l.loadCmd()
		}
		return l, nil
	}
	return l, nil
}

func (l *List[T]) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg.Button {
	case tea.MouseWheelDown:
		cmd = l.MoveDown(ViewportDefaultScrollSize)
	case tea.MouseWheelUp:
		cmd = l.MoveUp(ViewportDefaultScrollSize)
	}
	return l, cmd
}

func (l *List[T]) View() string {
	if l.height <= 0 || l.width <= 0 {
		return ""
	}
	return l.rendered
}

// MoveDown scrolls down by n lines.
func (l *List[T]) MoveDown(n int) tea.Cmd {
	return l.scroll(func() {
		l.engine.ScrollBy(l.lines(n))
	})
}

// MoveUp scrolls up by n lines.
func (l *List[T]) MoveUp(n int) tea.Cmd {
	return l.scroll(func() {
		l.engine.ScrollBy(-l.lines(n))
	})
}

// ItemBelow aligns the row after the first visible one with the top.
func (l *List[T]) ItemBelow() tea.Cmd {
	return l.scroll(func() {
		l.engine.ScrollToIndex(l.engine.State().Visible.Start+1, virtual.AlignStart)
	})
}

// ItemAbove aligns the first visible row with the top, or the row before it
// when the first row is already aligned.
func (l *List[T]) ItemAbove() tea.Cmd {
	return l.scroll(func() {
		first := l.engine.State().Visible.Start
		if l.engine.ItemPosition(first) >= 0 {
			first--
		}
		l.engine.ScrollToIndex(max(0, first), virtual.AlignStart)
	})
}

func (l *List[T]) GoToTop() tea.Cmd {
	return l.scroll(l.engine.ScrollToTop)
}

func (l *List[T]) GoToBottom() tea.Cmd {
	return l.scroll(l.engine.ScrollToEnd)
}

// SetSize resizes the list and the engine viewport.
func (l *List[T]) SetSize(width, height int) tea.Cmd {
	if width == l.width && height == l.height {
		return nil
	}
	l.width = width
	l.height = height
	l.viewCache.Reset()
	l.engine.SetViewport(float64(max(0, height)))
	l.refresh()
	return l.loadCmd()
}

// Reload drops every loaded row and measurement and reads the data source
// again from the first page. Lists over static items only re-render.
func (l *List[T]) Reload() tea.Cmd {
	l.engine.Reload()
	l.viewCache.Reset()
	l.observed = nil
	l.refresh()
	return l.loadCmd()
}

func (l *List[T]) GetSize() (int, int) {
	return l.width, l.height
}

// lines converts terminal lines into physical scroll units.
func (l *List[T]) lines(n int) float64 {
	return float64(n) * l.engine.Compression().Ratio
}

func (l *List[T]) scroll(fn func()) tea.Cmd {
	before := l.engine.State().ScrollTop
	fn()
	if l.engine.State().ScrollTop == before {
		return nil
	}
	l.refresh()
	l.idleSeq++
	seq := l.idleSeq
	idle := tea.Tick(l.idleTimeout, func(time.Time) tea.Msg {
		return idleMsg{seq: seq}
	})
	return tea.Batch(idle, l.loadCmd())
}

// refresh measures what the engine asked for and re-renders.
func (l *List[T]) refresh() {
	l.measurePending()
	l.rendered = l.renderVirtualScrolling()
}

func (l *List[T]) measurePending() {
	for range maxMeasurePasses {
		if len(l.observed) == 0 {
			return
		}
		var ms []measure.Measurement
		var waiting []int
		for _, index := range l.observed {
			if index >= l.engine.Total() {
				continue
			}
			if !l.engine.IsLoaded(index) {
				waiting = append(waiting, index)
				continue
			}
			ms = append(ms, measure.Measurement{
				Index: index,
				Size:  float64(lipgloss.Height(l.itemView(index))),
			})
		}
		l.observed = waiting
		if len(ms) == 0 {
			return
		}
		l.engine.Deliver(ms...)
		l.engine.Measure()
	}
}

func (l *List[T]) itemView(index int) string {
	if !l.engine.IsLoaded(index) {
		return l.render(l.engine.Item(index), index, false, l.width)
	}
	return l.viewCache.GetOrSet(index, func() string {
		return l.render(l.engine.Item(index), index, true, l.width)
	})
}

func (l *List[T]) renderVirtualScrolling() string {
	state := l.engine.State()
	if state.Total == 0 || l.height <= 0 {
		return ""
	}
	model := l.engine.Model()

	// Lines of the first row that are above the viewport
	skip := 0
	if pos := l.engine.ItemPosition(state.Visible.Start); pos < 0 {
		skip = int(math.Round(-pos))
	}

	var lines []string
	for i := state.Visible.Start; i < state.Visible.End && len(lines) < l.height; i++ {
		itemLines := strings.Split(l.itemView(i), "\n")
		size := max(0, int(math.Round(model.Size(i))))
		for len(itemLines) < size {
			itemLines = append(itemLines, "")
		}
		itemLines = itemLines[:size]
		if skip > 0 {
			itemLines = itemLines[min(skip, len(itemLines)):]
			skip = 0
		}
		lines = append(lines, itemLines...)
	}

	// Content that fits the viewport is not padded
	if l.engine.ContentSize() > float64(l.height) || state.ScrollTop > 0 {
		for len(lines) < l.height {
			lines = append(lines, "")
		}
	}
	if len(lines) > l.height {
		lines = lines[:l.height]
	}
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, l.width, "…")
	}
	l.pruneCache(state.Render)
	return strings.Join(lines, "\n")
}

func (l *List[T]) pruneCache(keep viewport.Range) {
	var stale []int
	for index := range l.viewCache.Seq2() {
		if !keep.Contains(index) {
			stale = append(stale, index)
		}
	}
	for _, index := range stale {
		l.viewCache.Del(index)
	}
}

// rangeLoaded reports whether every row in r is loaded.
func (l *List[T]) rangeLoaded(r viewport.Range) bool {
	for i := r.Start; i < r.End; i++ {
		if !l.engine.IsLoaded(i) {
			return false
		}
	}
	return true
}

// loadCmd fetches the render range off the update loop.
func (l *List[T]) loadCmd() tea.Cmd {
	data := l.engine.Data()
	if data == nil {
		return nil
	}
	r := l.engine.State().Render
	if data.TotalKnown() && l.rangeLoaded(r) {
		return nil
	}
	ctx, engine := l.ctx, l.engine
	return func() tea.Msg {
		return loadedMsg{rng: r, err: engine.Fetch(ctx, r.Start, r.End)}
	}
}

// flushCmd issues the load held back while scrolling fast.
func (l *List[T]) flushCmd() tea.Cmd {
	ctx, engine := l.ctx, l.engine
	r := engine.State().Render
	return func() tea.Msg {
		return loadedMsg{rng: r, err: engine.Flush(ctx)}
	}
}
