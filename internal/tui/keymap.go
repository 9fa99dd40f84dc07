package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/pders01/streamview/internal/config"
)

// keyMap is built from the configured bindings. Request, Topics, Filters and
// Search are combined with the modifier.
type keyMap struct {
	Request      key.Binding
	Topics       key.Binding
	Filters      key.Binding
	Search       key.Binding
	AddFilter    key.Binding
	RemoveFilter key.Binding
	PrevPage     key.Binding
	NextPage     key.Binding
	GrowPage     key.Binding
	ShrinkPage   key.Binding
	Back         key.Binding
	Help         key.Binding
	Quit         key.Binding
	Open         key.Binding
}

func newKeyMap(modifierKey string, b config.KeyBindings) keyMap {
	bind := func(k, desc string) key.Binding {
		return key.NewBinding(key.WithKeys(k), key.WithHelp(k, desc))
	}
	return keyMap{
		Request:      bind(modifierKey+b.Request, "request"),
		Topics:       bind(modifierKey+b.Topics, "topics"),
		Filters:      bind(modifierKey+b.Filters, "filters"),
		Search:       bind(modifierKey+b.Search, "search"),
		AddFilter:    bind(b.AddFilter, "add filter"),
		RemoveFilter: bind(b.RemoveFilter, "remove filter"),
		PrevPage:     bind(b.PrevPage, "newer page"),
		NextPage:     bind(b.NextPage, "older page"),
		GrowPage:     bind(b.GrowPage, "grow page"),
		ShrinkPage:   bind(b.ShrinkPage, "shrink page"),
		Back:         bind(b.Back, "back"),
		Help:         bind(b.Help, "help"),
		Quit: key.NewBinding(
			key.WithKeys(b.Quit, "ctrl+c"),
			key.WithHelp(b.Quit, "quit"),
		),
		Open: bind("enter", "open"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Request, k.Topics, k.Filters, k.Search, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Request, k.Topics, k.Filters, k.Search},
		{k.PrevPage, k.NextPage, k.GrowPage, k.ShrinkPage},
		{k.AddFilter, k.RemoveFilter, k.Open},
		{k.Back, k.Help, k.Quit},
	}
}

func helpEntry(b key.Binding) string {
	h := b.Help()
	return h.Key + ": " + h.Desc
}
