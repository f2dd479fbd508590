package tui

import (
	"github.com/charmbracelet/bubbles/v2/key"
	"github.com/charmbracelet/vlist/internal/tui/exp/list"
)

type KeyMap struct {
	Quit key.Binding
	Help key.Binding

	List list.KeyMap
}

func DefaultKeyMap(listKeys list.KeyMap) KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		List: listKeys,
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return append(k.List.ShortHelp(), k.Help, k.Quit)
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return append(k.List.FullHelp(), []key.Binding{k.Help, k.Quit})
}
