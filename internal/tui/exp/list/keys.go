package list

import (
	"github.com/charmbracelet/bubbles/v2/key"
)

// KeyMap binds keys to list movement. Line bindings move by one terminal
// row; record bindings snap a whole record to the top edge.
type KeyMap struct {
	LineUp, LineDown         key.Binding
	RecordUp, RecordDown     key.Binding
	HalfPageUp, HalfPageDown key.Binding
	PageUp, PageDown         key.Binding
	First, Last              key.Binding

	// Reload drops every loaded record and reads the source again.
	Reload key.Binding
}

func DefaultKeyMap() KeyMap {
	bind := func(help, desc string, keys ...string) key.Binding {
		return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
	}
	return KeyMap{
		LineUp:       bind("↑/k", "line up", "up", "k"),
		LineDown:     bind("↓/j", "line down", "down", "j"),
		RecordUp:     bind("K", "previous record", "shift+up", "K"),
		RecordDown:   bind("J", "next record", "shift+down", "J"),
		HalfPageUp:   bind("u", "half page up", "ctrl+u", "u"),
		HalfPageDown: bind("d", "half page down", "ctrl+d", "d"),
		PageUp:       bind("pgup/b", "page up", "pgup", "b"),
		PageDown:     bind("pgdn/f", "page down", "pgdown", "f", "space"),
		First:        bind("g", "first record", "home", "g"),
		Last:         bind("G", "last record", "end", "G"),
		Reload:       bind("ctrl+r", "reload", "ctrl+r"),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.LineDown, k.LineUp, k.PageDown, k.Last, k.Reload}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.LineDown, k.LineUp, k.RecordDown, k.RecordUp},
		{k.PageDown, k.PageUp, k.HalfPageDown, k.HalfPageUp},
		{k.First, k.Last, k.Reload},
	}
}
