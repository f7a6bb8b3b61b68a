package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/chat"
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/session"
)

// ---------------------------------------------------------------------------
// Message handlers (called from Update)
// ---------------------------------------------------------------------------

func (m model) handleChatDone(msg chatDoneMsg) (tea.Model, tea.Cmd) {
	res := msg.res
	switch {
	case res.Err != nil:
		var apiErr *api.APIError
		if errors.As(res.Err, &apiErr) {
			m.status = fmt.Sprintf("Backend error (%d): %s", apiErr.StatusCode, apiErr.Detail)
		} else {
			m.status = fmt.Sprintf("Request failed: %v", res.Err)
		}
	case res.Status == session.StatusCancelled:
		m.status = "Request cancelled."
	case res.Status == session.StatusRefused:
		m.status = "The guardrails refused this turn. See the inspector for details."
	default:
		m.status = "Ready."
	}
	m.selectedMsgID = res.MessageID
	m.refreshTranscript()
	return m, nil
}

func (m model) handleBackendConfig(msg backendConfigMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = fmt.Sprintf("Backend config unavailable: %v", msg.err)
		return m, nil
	}
	m.backendCfg = msg.cfg
	return m, nil
}

func (m model) handleHealth(msg healthMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.health = nil
		m.status = fmt.Sprintf("Backend unreachable: %v", msg.err)
		return m, nil
	}
	m.health = msg.health
	return m, nil
}

// ---------------------------------------------------------------------------
// Chat tab
// ---------------------------------------------------------------------------

func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return m, nil
	case "ctrl+s":
		m.showSessions = true
		m.syncSessionList()
		return m, nil
	case "ctrl+n":
		m.sessions.CreateSession()
		m.selectedMsgID = ""
		m.status = "New session started."
		m.refreshTranscript()
		return m, nil
	case "ctrl+o":
		m.showInspector = !m.showInspector
		if m.showInspector && m.selectedMsgID == "" {
			m.selectLatestMessage()
		}
		m.resize()
		m.refreshTranscript()
		return m, nil
	case "ctrl+f":
		if m.showInspector {
			m.facet = (m.facet + 1) % facetCount
		}
		return m, nil
	case "ctrl+up":
		m.moveSelection(-1)
		return m, nil
	case "ctrl+down":
		m.moveSelection(1)
		return m, nil
	case "esc":
		if m.orch.InFlight() {
			m.orch.Cancel()
			m.status = "Cancelling..."
			return m, nil
		}
		return m, nil
	case "enter":
		return m.sendComposer()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m model) sendComposer() (tea.Model, tea.Cmd) {
	if m.orch.InFlight() {
		m.status = "A request is already in flight. esc cancels it."
		return m, nil
	}
	pending, err := m.orch.Send(m.composer.Value())
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return m, nil
	case errors.Is(err, chat.ErrNoSession):
		m.status = "No session. ctrl+n starts one."
		return m, nil
	case errors.Is(err, chat.ErrSendInFlight):
		m.status = "A request is already in flight. esc cancels it."
		return m, nil
	case err != nil:
		m.status = fmt.Sprintf("Send failed: %v", err)
		return m, nil
	}
	m.composer.Reset()
	m.selectedMsgID = pending.MessageID
	m.status = "Waiting for the agent... esc cancels."
	m.refreshTranscript()
	return m, tea.Batch(resolveChatCmd(pending), m.spin.Tick)
}

func (m *model) selectLatestMessage() {
	msgs := m.sessions.CurrentMessages()
	if len(msgs) == 0 {
		m.selectedMsgID = ""
		return
	}
	m.selectedMsgID = msgs[len(msgs)-1].ID
}

func (m *model) moveSelection(delta int) {
	msgs := m.sessions.CurrentMessages()
	if len(msgs) == 0 {
		return
	}
	pos := len(msgs) - 1
	for i, msg := range msgs {
		if msg.ID == m.selectedMsgID {
			pos = i
			break
		}
	}
	pos += delta
	if pos < 0 {
		pos = 0
	}
	if pos >= len(msgs) {
		pos = len(msgs) - 1
	}
	m.selectedMsgID = msgs[pos].ID
	m.refreshTranscript()
}

// ---------------------------------------------------------------------------
// Sessions overlay
// ---------------------------------------------------------------------------

func (m model) updateSessions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.renaming {
		switch msg.String() {
		case "enter":
			if item, ok := m.sessionList.SelectedItem().(sessionItem); ok {
				m.sessions.RenameSession(item.sess.ID, m.renameInput.Value())
			}
			m.renaming = false
			m.syncSessionList()
			return m, nil
		case "esc":
			m.renaming = false
			return m, nil
		}
		var cmd tea.Cmd
		m.renameInput, cmd = m.renameInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "ctrl+s":
		m.showSessions = false
		return m, nil
	case "enter":
		if item, ok := m.sessionList.SelectedItem().(sessionItem); ok {
			m.sessions.SetCurrentSession(item.sess.ID)
			m.selectedMsgID = ""
			m.showSessions = false
			m.refreshTranscript()
		}
		return m, nil
	case "ctrl+n":
		m.sessions.CreateSession()
		m.selectedMsgID = ""
		m.showSessions = false
		m.refreshTranscript()
		return m, nil
	case "r":
		if item, ok := m.sessionList.SelectedItem().(sessionItem); ok {
			m.renaming = true
			m.renameInput.SetValue(item.sess.Title)
			m.renameInput.Focus()
		}
		return m, nil
	case "d":
		if item, ok := m.sessionList.SelectedItem().(sessionItem); ok {
			m.sessions.DeleteSession(item.sess.ID)
			m.selectedMsgID = ""
			m.syncSessionList()
			m.refreshTranscript()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.sessionList, cmd = m.sessionList.Update(msg)
	return m, cmd
}

func (m *model) syncSessionList() {
	current := m.sessions.CurrentSessionID()
	sessions := m.sessions.Sessions()
	items := make([]list.Item, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, sessionItem{sess: sess, current: sess.ID == current})
	}
	m.sessionList.SetItems(items)
}

// ---------------------------------------------------------------------------
// Guardrails tab
// ---------------------------------------------------------------------------

// Rows 0 and 1 are the enabled / monitor-only switches; rails follow.
func (m model) updateGuardrails(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := 2 + len(guardrails.AllRailKeys())
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return m, nil
	case "up", "k":
		if m.railCursor > 0 {
			m.railCursor--
		}
		return m, nil
	case "down", "j":
		if m.railCursor < rows-1 {
			m.railCursor++
		}
		return m, nil
	case "enter", " ":
		cfg := m.rails.Snapshot()
		switch m.railCursor {
		case 0:
			m.rails.SetEnabled(!cfg.Enabled)
		case 1:
			m.rails.SetMonitorOnly(!cfg.MonitorOnly)
		default:
			keys := guardrails.AllRailKeys()
			m.rails.ToggleRail(keys[m.railCursor-2])
		}
		return m, nil
	case "R":
		m.rails.Reset()
		m.status = "Guardrails reset to defaults."
		return m, nil
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Settings tab
// ---------------------------------------------------------------------------

func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return m, nil
	case "r":
		m.status = "Refreshing backend state..."
		return m, tea.Batch(fetchBackendConfigCmd(m.client), fetchHealthCmd(m.client))
	case "b":
		if upd, ok := m.cycleBackend(); ok {
			m.status = "Switching guardrails backend..."
			return m, applyBackendConfigCmd(m.client, upd)
		}
		return m, nil
	case "p":
		if upd, ok := m.cycleProvider(); ok {
			m.status = "Switching LLM provider..."
			return m, applyBackendConfigCmd(m.client, upd)
		}
		return m, nil
	case "m":
		if upd, ok := m.cycleModel(); ok {
			m.status = "Switching LLM model..."
			return m, applyBackendConfigCmd(m.client, upd)
		}
		return m, nil
	}
	return m, nil
}

func (m model) cycleBackend() (api.ConfigUpdate, bool) {
	if m.backendCfg == nil || len(m.backendCfg.AvailableBackends) == 0 {
		return api.ConfigUpdate{}, false
	}
	next := nextInList(m.backendCfg.AvailableBackends, m.backendCfg.GuardrailsBackend)
	return api.ConfigUpdate{GuardrailsBackend: &next}, true
}

func (m model) cycleProvider() (api.ConfigUpdate, bool) {
	if m.backendCfg == nil || len(m.backendCfg.AvailableProviders) == 0 {
		return api.ConfigUpdate{}, false
	}
	ids := make([]string, 0, len(m.backendCfg.AvailableProviders))
	for _, p := range m.backendCfg.AvailableProviders {
		ids = append(ids, p.ID)
	}
	next := nextInList(ids, m.backendCfg.LLMProvider)
	return api.ConfigUpdate{LLMProvider: &next}, true
}

func (m model) cycleModel() (api.ConfigUpdate, bool) {
	if m.backendCfg == nil {
		return api.ConfigUpdate{}, false
	}
	for _, p := range m.backendCfg.AvailableProviders {
		if p.ID == m.backendCfg.LLMProvider && len(p.Models) > 0 {
			next := nextInList(p.Models, m.backendCfg.LLMModel)
			return api.ConfigUpdate{LLMModel: &next}, true
		}
	}
	return api.ConfigUpdate{}, false
}

func nextInList(items []string, current string) string {
	for i, it := range items {
		if it == current {
			return items[(i+1)%len(items)]
		}
	}
	return items[0]
}

// ---------------------------------------------------------------------------
// Layout plumbing
// ---------------------------------------------------------------------------

func (m *model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	composerHeight := 3
	chrome := 1 + 1 + composerHeight + 1 + 1 // header, gap, composer, status, footer
	bodyHeight := m.height - chrome
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	transcriptWidth := m.width
	if m.showInspector {
		transcriptWidth = m.width - inspectorWidth(m.width)
	}
	if !m.transcriptReady {
		m.transcript = viewport.New(transcriptWidth, bodyHeight)
		m.transcriptReady = true
	} else {
		m.transcript.Width = transcriptWidth
		m.transcript.Height = bodyHeight
	}
	m.composer.SetWidth(m.width - 2)

	listWidth := min(60, m.width-6)
	if listWidth < 30 {
		listWidth = 30
	}
	m.sessionList.SetWidth(listWidth)
	m.sessionList.SetHeight(min(14, m.height-8))
	m.renameInput.Width = listWidth - 4

	m.refreshTranscript()
}

func (m *model) refreshTranscript() {
	if !m.transcriptReady {
		return
	}
	m.transcript.SetContent(m.renderTranscript(m.transcript.Width))
	m.transcript.GotoBottom()
}
