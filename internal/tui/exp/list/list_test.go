package list

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/vlist/internal/virtual"
	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/charmbracelet/vlist/internal/virtual/sizing"
	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func renderInt(item int, _ int, loaded bool, _ int) string {
	if !loaded {
		return "…"
	}
	return fmt.Sprintf("item %d", item)
}

// renderTall gives row i i%3 detail lines.
func renderTall(item int, index int, loaded bool, width int) string {
	lines := []string{renderInt(item, index, loaded, width)}
	for range item % 3 {
		lines = append(lines, "  detail")
	}
	return strings.Join(lines, "\n")
}

func newStaticList(t *testing.T, n int, spec sizing.Spec, render RenderFunc[int], opts ...ListOption) *List[int] {
	t.Helper()
	l, err := New(virtual.Config{Sizing: spec}, render, []virtual.Feature[int]{
		virtual.StaticItems(numbers(n)),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

// run executes cmd and every command it leads to, feeding messages back
// into the list.
func run[T any](t *testing.T, l *List[T], cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100, "command loop did not settle")
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, c := l.Update(msg)
			queue = append(queue, c)
		}
	}
}

func TestListView(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5))
	golden.RequireEqual(t, []byte(l.View()))
}

func TestListFitsWithoutPadding(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 3, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5))
	assert.Equal(t, "item 0\nitem 1\nitem 2", l.View())
}

func TestListEmpty(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 0, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5))
	assert.Empty(t, l.View())

	sized := newStaticList(t, 10, sizing.Spec{Size: 1}, renderInt)
	assert.Empty(t, sized.View())
}

func TestListTruncatesToWidth(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 12, sizing.Spec{Size: 1}, renderInt, WithSize(5, 3))
	assert.Equal(t, "item…\nitem…\nitem…", l.View())
}

func TestListPageDown(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5), WithIdleTimeout(time.Millisecond))
	_, cmd := l.Update(tea.KeyPressMsg{Code: tea.KeyPgDown})
	require.NotNil(t, cmd)
	golden.RequireEqual(t, []byte(l.View()))
	assert.Equal(t, 5.0, l.Engine().State().ScrollTop)
}

func TestListGoToBottom(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5))
	_, cmd := l.Update(tea.KeyPressMsg{Code: tea.KeyEnd})
	require.NotNil(t, cmd)
	golden.RequireEqual(t, []byte(l.View()))

	// already at the end
	_, cmd = l.Update(tea.KeyPressMsg{Code: tea.KeyEnd})
	assert.Nil(t, cmd)

	l.Update(tea.KeyPressMsg{Code: tea.KeyHome})
	assert.Zero(t, l.Engine().State().ScrollTop)
}

func TestListLineNavigation(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{Size: 2}, renderInt, WithSize(20, 4))
	assert.Equal(t, "item 0\n\nitem 1\n", l.View())

	l.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	assert.Equal(t, "\nitem 1\n\nitem 2", l.View())

	l.Update(tea.KeyPressMsg{Code: tea.KeyUp})
	assert.Equal(t, 0.0, l.Engine().State().ScrollTop)

	l.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	l.ItemBelow()
	assert.Equal(t, 2.0, l.Engine().State().ScrollTop)

	l.MoveDown(1)
	l.ItemAbove()
	assert.Equal(t, 2.0, l.Engine().State().ScrollTop)
	l.ItemAbove()
	assert.Zero(t, l.Engine().State().ScrollTop)
}

func TestListMouseWheel(t *testing.T) {
	t.Parallel()

	off := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5))
	_, cmd := off.Update(tea.MouseWheelMsg{Button: tea.MouseWheelDown})
	assert.Nil(t, cmd)
	assert.Zero(t, off.Engine().State().ScrollTop)

	on := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5), WithEnableMouse())
	on.Update(tea.MouseWheelMsg{Button: tea.MouseWheelDown})
	assert.Equal(t, float64(ViewportDefaultScrollSize), on.Engine().State().ScrollTop)
	assert.True(t, strings.HasPrefix(on.View(), "item 2\n"))

	on.Update(tea.MouseWheelMsg{Button: tea.MouseWheelUp})
	assert.Zero(t, on.Engine().State().ScrollTop)
}

func TestListMeasuredRows(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{EstimatedSize: 2}, renderTall, WithSize(20, 6))
	golden.RequireEqual(t, []byte(l.View()))
	assert.Equal(t, 200.0, l.Engine().ContentSize())

	l.MoveDown(1)
	assert.Equal(t, "item 1\n  detail\nitem 2\n  detail\n  detail\nitem 3", l.View())
}

func TestListIdleEndsScrolling(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 5), WithIdleTimeout(time.Millisecond))
	cmd := l.MoveDown(3)
	require.True(t, l.Engine().State().Scrolling)

	// a newer scroll makes the first tick stale
	l.MoveDown(1)
	_, _ = l.Update(idleMsg{seq: 1})
	require.True(t, l.Engine().State().Scrolling)

	run(t, l, cmd)
	run(t, l, l.MoveDown(1))
	require.False(t, l.Engine().State().Scrolling)
}

func TestListAsyncData(t *testing.T) {
	t.Parallel()

	adapter := data.AdapterFunc[int](func(ctx context.Context, req data.ReadRequest) (data.ReadResult[int], error) {
		const total = 1000
		var items []int
		for i := req.Offset; i < min(req.Offset+req.Limit, total); i++ {
			items = append(items, i*2)
		}
		return data.ReadResult[int]{Items: items, Total: total}, nil
	})

	l, err := New(virtual.Config{Sizing: sizing.Spec{Size: 1}}, renderInt, []virtual.Feature[int]{
		virtual.AsyncData[int](adapter, nil),
	}, WithSize(20, 3), WithIdleTimeout(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(l.Close)
	require.Empty(t, l.View())

	run(t, l, l.Init())
	require.Equal(t, 1000, l.Engine().Total())
	golden.RequireEqual(t, []byte(l.View()))

	_, cmd := l.Update(tea.KeyPressMsg{Code: tea.KeyEnd})
	run(t, l, cmd)
	assert.Equal(t, "item 1994\nitem 1996\nitem 1998", l.View())
	assert.Nil(t, l.loadCmd())
}

func TestListSetSize(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 100, sizing.Spec{Size: 1}, renderInt, WithSize(20, 2))
	assert.Equal(t, "item 0\nitem 1", l.View())

	assert.Nil(t, l.SetSize(20, 3))
	w, h := l.GetSize()
	assert.Equal(t, 20, w)
	assert.Equal(t, 3, h)
	assert.Equal(t, "item 0\nitem 1\nitem 2", l.View())
}

func TestListIdleFlushesDeferredLoad(t *testing.T) {
	t.Parallel()

	adapter := data.AdapterFunc[int](func(ctx context.Context, req data.ReadRequest) (data.ReadResult[int], error) {
		const total = 1000
		var items []int
		for i := req.Offset; i < min(req.Offset+req.Limit, total); i++ {
			items = append(items, i)
		}
		return data.ReadResult[int]{Items: items, Total: total}, nil
	})
	now := time.Unix(0, 0)
	l, err := New(virtual.Config{
		Sizing: sizing.Spec{Size: 1},
		Clock: func() time.Time {
			now = now.Add(time.Millisecond)
			return now
		},
	}, renderInt, []virtual.Feature[int]{
		virtual.AsyncData[int](adapter, nil),
	}, WithSize(20, 3), WithIdleTimeout(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(l.Close)
	run(t, l, l.Init())

	// a fast jump holds the load back
	l.MoveDown(1)
	l.GoToBottom()
	r := l.Engine().State().Render
	require.NoError(t, l.Engine().Fetch(t.Context(), r.Start, r.End))
	require.False(t, l.Engine().IsLoaded(999))

	_, cmd := l.Update(idleMsg{seq: l.idleSeq})
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)

	run(t, l, cmd)
	require.True(t, l.Engine().IsLoaded(999))
	assert.Equal(t, "item 997\nitem 998\nitem 999", l.View())
}

func TestListReload(t *testing.T) {
	t.Parallel()

	total := 1000
	adapter := data.AdapterFunc[int](func(ctx context.Context, req data.ReadRequest) (data.ReadResult[int], error) {
		var items []int
		for i := req.Offset; i < min(req.Offset+req.Limit, total); i++ {
			items = append(items, i)
		}
		return data.ReadResult[int]{Items: items, Total: total}, nil
	})
	l, err := New(virtual.Config{Sizing: sizing.Spec{EstimatedSize: 1}}, renderTall, []virtual.Feature[int]{
		virtual.AsyncData[int](adapter, nil),
	}, WithSize(20, 3))
	require.NoError(t, err)
	t.Cleanup(l.Close)
	run(t, l, l.Init())
	require.Equal(t, 1000, l.Engine().Total())
	assert.Equal(t, "item 0\nitem 1\n  detail", l.View())

	total = 2
	_, cmd := l.Update(tea.KeyPressMsg{Code: 'r', Mod: tea.ModCtrl})
	require.NotNil(t, cmd)
	assert.Empty(t, l.View())

	run(t, l, cmd)
	assert.Equal(t, 2, l.Engine().Total())
	assert.Equal(t, "item 0\nitem 1\n  detail", l.View())
	assert.Equal(t, 3.0, l.Engine().ContentSize())
}

func TestListReloadStatic(t *testing.T) {
	t.Parallel()

	l := newStaticList(t, 10, sizing.Spec{Size: 1}, renderInt, WithSize(20, 2))
	assert.Nil(t, l.Reload())
	assert.Equal(t, "item 0\nitem 1", l.View())
}
