package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Back       key.Binding
	CycleTheme key.Binding
	Layout     key.Binding
	Logs       key.Binding
	Manager    key.Binding
	Focus      key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Open     key.Binding

	// Song actions
	CycleFilter key.Binding
	Delete      key.Binding
	Retry       key.Binding
	Check       key.Binding
	Refresh     key.Binding
	Choose      key.Binding

	// Playlist manager
	PickUp key.Binding
	Create key.Binding

	// Logs
	LogLevel key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Theme"),
		),
		Layout: key.NewBinding(
			key.WithKeys("V"),
			key.WithHelp("V", "Layout"),
		),
		Logs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Logs"),
		),
		Manager: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Playlists"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Focus"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("n", "pgdown"),
			key.WithHelp("n", "Next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("p", "pgup"),
			key.WithHelp("p", "Prev page"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open"),
		),

		CycleFilter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Filter"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Delete"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Retry"),
		),
		Check: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Check"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Refresh"),
		),
		Choose: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Save match"),
		),

		PickUp: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Pick up"),
		),
		Create: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "New playlist"),
		),

		LogLevel: key.NewBinding(
			key.WithKeys("F"),
			key.WithHelp("F", "Level"),
		),
	}
}
