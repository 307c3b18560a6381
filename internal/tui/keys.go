package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI. Letter keys are left to
// the URL input, so every binding uses a modifier or a non-printing key.
type KeyMap struct {
	Start        key.Binding
	Stop         key.Binding
	Quality      key.Binding
	OpenFolder   key.Binding
	ChangeFolder key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	Help         key.Binding
	Escape       key.Binding
	Quit         key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "start capture"),
		),
		Stop: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "stop capture"),
		),
		Quality: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle quality"),
		),
		OpenFolder: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "open download folder"),
		),
		ChangeFolder: key.NewBinding(
			key.WithKeys("ctrl+f"),
			key.WithHelp("ctrl+f", "change download folder"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll log up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll log down"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k KeyMap) all() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Quality, k.OpenFolder, k.ChangeFolder, k.ScrollUp, k.ScrollDown, k.Help, k.Quit}
}
