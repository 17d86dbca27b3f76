package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit        key.Binding
	Switch      key.Binding
	Search      key.Binding
	Sort        key.Binding
	Mark        key.Binding
	Merge       key.Binding
	NewGroup    key.Binding
	Details     key.Binding
	MergeGroup  key.Binding
	Undo        key.Binding
	ClearFilter key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Switch: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch pane"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "cycle sort"),
	),
	Mark: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "mark"),
	),
	Merge: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "merge into group"),
	),
	NewGroup: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new group"),
	),
	Details: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "add details"),
	),
	MergeGroup: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "merge groups"),
	),
	Undo: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "undo"),
	),
	ClearFilter: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear"),
	),
}
