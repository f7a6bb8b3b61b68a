package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/chat"
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/kv"
	"github.com/jask/railchat/internal/session"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// ---------------------------------------------------------------------------
// Settings cycling
// ---------------------------------------------------------------------------

func TestNextInList(t *testing.T) {
	items := []string{"langchain", "nemo", "none"}
	if got := nextInList(items, "langchain"); got != "nemo" {
		t.Errorf("nextInList = %q, want nemo", got)
	}
	if got := nextInList(items, "none"); got != "langchain" {
		t.Errorf("nextInList should wrap, got %q", got)
	}
	if got := nextInList(items, "unknown"); got != "langchain" {
		t.Errorf("unknown current should fall back to first, got %q", got)
	}
}

func TestCycleHelpersWithoutBackendConfig(t *testing.T) {
	var m model
	if _, ok := m.cycleBackend(); ok {
		t.Errorf("cycleBackend should fail without backend config")
	}
	if _, ok := m.cycleProvider(); ok {
		t.Errorf("cycleProvider should fail without backend config")
	}
	if _, ok := m.cycleModel(); ok {
		t.Errorf("cycleModel should fail without backend config")
	}
}

func TestCycleModelUsesCurrentProvider(t *testing.T) {
	m := model{backendCfg: &api.RuntimeConfig{
		LLMProvider: "openai",
		LLMModel:    "gpt-4o",
		AvailableProviders: []api.ProviderInfo{
			{ID: "anthropic", Models: []string{"claude-sonnet-4-5"}},
			{ID: "openai", Models: []string{"gpt-4o", "gpt-4o-mini"}},
		},
	}}
	upd, ok := m.cycleModel()
	if !ok || upd.LLMModel == nil || *upd.LLMModel != "gpt-4o-mini" {
		t.Errorf("cycleModel = %+v ok=%v", upd, ok)
	}
}

// ---------------------------------------------------------------------------
// Guardrails tab cursor
// ---------------------------------------------------------------------------

func newGuardrailsModel(t *testing.T) model {
	t.Helper()
	rails := guardrails.NewStore(kv.NewMemStore(), nil)
	rails.Load()
	return model{rails: rails, activeTab: tabGuardrails}
}

func TestGuardrailsCursorStaysInBounds(t *testing.T) {
	m := newGuardrailsModel(t)
	rows := 2 + len(guardrails.AllRailKeys())

	mm, _ := m.updateGuardrails(keyMsg("up"))
	m = mm.(model)
	if m.railCursor != 0 {
		t.Errorf("cursor went above the first row: %d", m.railCursor)
	}

	for i := 0; i < rows+5; i++ {
		mm, _ = m.updateGuardrails(keyMsg("down"))
		m = mm.(model)
	}
	if m.railCursor != rows-1 {
		t.Errorf("cursor = %d, want last row %d", m.railCursor, rows-1)
	}
}

func TestGuardrailsEnterTogglesRow(t *testing.T) {
	m := newGuardrailsModel(t)

	// Row 0 is the master switch.
	mm, _ := m.updateGuardrails(keyMsg("enter"))
	m = mm.(model)
	if m.rails.Snapshot().Enabled {
		t.Errorf("master switch not toggled off")
	}

	// Row 2 is the first rail in enumeration order.
	m.railCursor = 2
	first := guardrails.AllRailKeys()[0]
	before := m.rails.Snapshot().Toggles[first]
	mm, _ = m.updateGuardrails(keyMsg("enter"))
	m = mm.(model)
	if got := m.rails.Snapshot().Toggles[first]; got == before {
		t.Errorf("rail %q not toggled", first)
	}
}

func TestGuardrailsResetKey(t *testing.T) {
	m := newGuardrailsModel(t)
	m.rails.SetEnabled(false)
	m.rails.SetRail(guardrails.RailInputPII, false)

	mm, _ := m.updateGuardrails(keyMsg("R"))
	m = mm.(model)

	cfg := m.rails.Snapshot()
	if !cfg.Enabled || !cfg.Toggles[guardrails.RailInputPII] {
		t.Errorf("reset did not restore defaults: %+v", cfg)
	}
}

// ---------------------------------------------------------------------------
// Chat-done status line
// ---------------------------------------------------------------------------

func TestHandleChatDoneStatus(t *testing.T) {
	tests := []struct {
		name string
		res  chat.Result
		want string
	}{
		{
			name: "ok",
			res:  chat.Result{Status: session.StatusOK},
			want: "Ready.",
		},
		{
			name: "cancelled",
			res:  chat.Result{Status: session.StatusCancelled},
			want: "Request cancelled.",
		},
		{
			name: "api error",
			res: chat.Result{Status: session.StatusError, Err: &api.APIError{
				StatusCode: 502, Detail: "upstream timeout",
			}},
			want: "Backend error (502): upstream timeout",
		},
		{
			name: "transport error",
			res:  chat.Result{Status: session.StatusError, Err: errors.New("connection refused")},
			want: "Request failed: connection refused",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var m model
			mm, _ := m.handleChatDone(chatDoneMsg{res: tc.res})
			if got := mm.(model).status; got != tc.want {
				t.Errorf("status = %q, want %q", got, tc.want)
			}
		})
	}
}
