package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	NextResult key.Binding
	PrevResult key.Binding
	TogglePlan key.Binding
	Help       key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
}

var keys = keyMap{
	NextResult: key.NewBinding(
		key.WithKeys("tab", "right"),
		key.WithHelp("tab", "next result"),
	),
	PrevResult: key.NewBinding(
		key.WithKeys("shift+tab", "left"),
		key.WithHelp("shift+tab", "previous result"),
	),
	TogglePlan: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "toggle plan"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "q"),
		key.WithHelp("q", "quit"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓", "scroll down"),
	),
}
