package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/chat"
)

// ---------------------------------------------------------------------------
// Async commands: each wraps one blocking call and reports back as a tea.Msg
// ---------------------------------------------------------------------------

const backendCallTimeout = 10 * time.Second

// resolveChatCmd finishes an accepted send. The orchestrator applies the
// outcome to the store before the message reaches Update.
func resolveChatCmd(p *chat.Pending) tea.Cmd {
	return func() tea.Msg {
		return chatDoneMsg{res: p.Resolve()}
	}
}

func fetchBackendConfigCmd(client *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
		defer cancel()
		cfg, err := client.GetConfig(ctx)
		return backendConfigMsg{cfg: cfg, err: err}
	}
}

func applyBackendConfigCmd(client *api.Client, upd api.ConfigUpdate) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
		defer cancel()
		cfg, err := client.SetConfig(ctx, upd)
		return backendConfigMsg{cfg: cfg, err: err}
	}
}

func fetchHealthCmd(client *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
		defer cancel()
		h, err := client.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}
