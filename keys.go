package main

import "github.com/charmbracelet/bubbles/key"

// ---------------------------------------------------------------------------
// Key bindings
// ---------------------------------------------------------------------------

type keyMap struct {
	Send       key.Binding
	Cancel     key.Binding
	NewSession key.Binding
	Sessions   key.Binding
	Inspector  key.Binding
	NextTab    key.Binding
	PrevTab    key.Binding
	UpDown     key.Binding
	Enter      key.Binding
	Rename     key.Binding
	Delete     key.Binding
	Close      key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		NewSession: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
		Sessions:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "sessions")),
		Inspector:  key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "inspector")),
		NextTab:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		PrevTab:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev tab")),
		UpDown:     key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "navigate")),
		Enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Rename:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Delete:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Close:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Sessions, k.Inspector, k.NextTab, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Cancel, k.NewSession},
		{k.Sessions, k.Inspector, k.NextTab, k.PrevTab},
		{k.Quit},
	}
}

type sessionsKeyMap struct {
	keyMap
}

func (k sessionsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Rename, k.Delete, k.NewSession, k.Close}
}

func (k sessionsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Enter, k.Rename, k.Delete, k.NewSession, k.Close}}
}
