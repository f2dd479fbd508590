package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/help"
	"github.com/charmbracelet/bubbles/v2/key"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/vlist/internal/pubsub"
	"github.com/charmbracelet/vlist/internal/tui/exp/list"
	"github.com/charmbracelet/vlist/internal/virtual"
	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/dustin/go-humanize"
)

// NoticeMsg shows a one line message in the status bar until the next one.
type NoticeMsg string

type status struct {
	visible   string
	velocity  float64
	direction data.Direction
	err       error
	notice    string
}

// Model is the application: a record list over a status bar.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	list   *list.List[data.Record]
	keyMap KeyMap
	help   help.Model
	styles Styles

	width, height int
	status        status

	engineEvents <-chan pubsub.Event[virtual.Event]
	loadEvents   <-chan pubsub.Event[data.LoadEvent]
}

// New wraps l in the application model. The model owns l from here on.
func New(l *list.List[data.Record]) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		ctx:          ctx,
		cancel:       cancel,
		list:         l,
		keyMap:       DefaultKeyMap(l.KeyMap()),
		help:         help.New(),
		styles:       DefaultStyles(),
		engineEvents: l.Engine().Subscribe(ctx),
	}
	if d := l.Engine().Data(); d != nil {
		m.loadEvents = d.Subscribe(ctx)
	}
	m.status.visible = l.Engine().State().Visible.String()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		listen(m.engineEvents),
		listen(m.loadEvents),
	)
}

// listen waits for the next event on ch.
func listen[T any](ch <-chan pubsub.Event[T]) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ev
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, m.resizeList()
	case tea.KeyPressMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, m.resizeList()
		case key.Matches(msg, m.keyMap.List.Reload):
			m.status.err = nil
			m.status.notice = "reloaded"
		}
	case NoticeMsg:
		m.status.notice = string(msg)
		return m, nil
	case pubsub.Event[virtual.Event]:
		m.handleEngineEvent(msg)
		return m, listen(m.engineEvents)
	case pubsub.Event[data.LoadEvent]:
		m.handleLoadEvent(msg)
		return m, listen(m.loadEvents)
	}

	u, cmd := m.list.Update(msg)
	m.list = u.(*list.List[data.Record])
	return m, cmd
}

// resizeList gives the list whatever the footer leaves.
func (m *Model) resizeList() tea.Cmd {
	footer := 1 + lipgloss.Height(m.helpView())
	return m.list.SetSize(m.width, max(0, m.height-footer))
}

func (m *Model) helpView() string {
	return m.help.View(m.keyMap)
}

func (m *Model) handleEngineEvent(ev pubsub.Event[virtual.Event]) {
	switch ev.Type {
	case virtual.EventRangeChanged:
		m.status.visible = ev.Payload.Visible.String()
	case virtual.EventVelocityChanged:
		m.status.velocity = ev.Payload.Velocity
		m.status.direction = ev.Payload.Direction
	}
}

func (m *Model) handleLoadEvent(ev pubsub.Event[data.LoadEvent]) {
	switch ev.Type {
	case data.EventLoadEnded:
		if ev.Payload.Err == nil {
			m.status.err = nil
		}
	case data.EventError:
		m.status.err = ev.Payload.Err
	}
}

func (m *Model) View() tea.View {
	if m.width <= 0 || m.height <= 0 {
		return tea.NewView("")
	}
	width, height := m.list.GetSize()
	listView := lipgloss.NewStyle().
		Width(width).
		Height(height).
		Render(m.list.View())
	return tea.NewView(lipgloss.JoinVertical(lipgloss.Left, listView, m.statusView(), m.helpView()))
}

func (m *Model) statusView() string {
	engine := m.list.Engine()
	state := engine.State()
	s := m.styles

	parts := []string{
		s.StatusKey.Render("rows") + " " + m.status.visible + " of " + humanize.Comma(int64(state.Total)),
	}
	loading := false
	if d := engine.Data(); d != nil {
		stats := d.Stats()
		parts = append(parts, s.StatusKey.Render("cached")+" "+humanize.Comma(int64(stats.CachedItems)))
		loading = d.State().IsLoading
	}
	if c := state.Compression; c.IsCompressed {
		parts = append(parts, s.StatusKey.Render("compressed")+" "+fmt.Sprintf("1:%.2f", 1/c.Ratio))
	}
	if m.status.velocity > 0 {
		parts = append(parts, fmt.Sprintf("%s %.1f/ms", m.status.direction, m.status.velocity))
	}
	switch {
	case m.status.err != nil:
		parts = append(parts, s.StatusError.Render(m.status.err.Error()))
	case loading:
		parts = append(parts, s.StatusLoading.Render("loading…"))
	}
	if m.status.notice != "" {
		parts = append(parts, s.StatusNotice.Render(m.status.notice))
	}
	return s.Status.Width(m.width).MaxHeight(1).Render(strings.Join(parts, s.StatusSep.Render(" · ")))
}

// Close stops listening for events and releases the list.
func (m *Model) Close() {
	m.cancel()
	m.list.Close()
}
