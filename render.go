package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/inspector"
	"github.com/jask/railchat/internal/session"
)

// ---------------------------------------------------------------------------
// Styles — Catppuccin Mocha themed
// ---------------------------------------------------------------------------

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)

	headerBarStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorMantle).
			Padding(0, 2)

	headerAppStyle = lipgloss.NewStyle().
			Foreground(colorBrand).
			Bold(true)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Background(colorSurface0).
			Bold(true).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorOverlay1).
				Background(colorMantle).
				Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(colorSubtext0)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorSubtext1).
			Background(colorSurface0).
			Padding(0, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0).
			Background(colorMantle).
			Padding(0, 2)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface2).
			Padding(0, 1)

	inspectorStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorSurface1).
			Padding(0, 1)

	cursorStyle      = lipgloss.NewStyle().Foreground(colorFocus).Bold(true)
	currentMarkStyle = lipgloss.NewStyle().Foreground(colorSuccess)

	userLabelStyle      = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	assistantLabelStyle = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)

	refusedStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	errorTextStyle = lipgloss.NewStyle().Foreground(colorError)
	cancelledStyle = lipgloss.NewStyle().Foreground(colorOverlay1).Strikethrough(false)
	sendingStyle   = lipgloss.NewStyle().Foreground(colorOverlay1).Italic(true)
	selectedStyle  = lipgloss.NewStyle().Foreground(colorFocus)

	railOnStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	railOffStyle = lipgloss.NewStyle().Foreground(colorOverlay0)
)

var tabNames = [tabCount]string{"Chat", "Guardrails", "Settings"}

// ---------------------------------------------------------------------------
// Header / footer / status line
// ---------------------------------------------------------------------------

func renderHeader(name string, activeTab, width int) string {
	parts := []string{headerAppStyle.Render(name), "  "}
	for i, tab := range tabNames {
		if i == activeTab {
			parts = append(parts, activeTabStyle.Render(tab))
		} else {
			parts = append(parts, inactiveTabStyle.Render(tab))
		}
	}
	line := lipgloss.JoinHorizontal(lipgloss.Center, parts...)
	return headerBarStyle.Width(width).Render(line)
}

func (m model) renderStatusLine() string {
	status := m.status
	if m.orch.InFlight() {
		status = m.spin.View() + " " + status
	}
	return statusBarStyle.Width(m.width).Render(status)
}

func (m model) renderFooter() string {
	bindings := m.keys.ShortHelp()
	if m.showSessions {
		bindings = m.sessKeys.ShortHelp()
	}
	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, fmt.Sprintf("%s %s", h.Key, h.Desc))
	}
	return footerStyle.Width(m.width).Render(strings.Join(parts, "  ·  "))
}

func (m model) placeWithFooter(main, statusLine, footer string) string {
	gap := m.height - lipgloss.Height(main) - lipgloss.Height(statusLine) - lipgloss.Height(footer)
	if gap < 0 {
		gap = 0
	}
	return main + strings.Repeat("\n", gap+1) + statusLine + "\n" + footer
}

func (m model) composeSessionsModal(main, statusLine, footer string) string {
	var body string
	if m.renaming {
		body = titleStyle.Render("Rename session") + "\n\n" + m.renameInput.View()
	} else {
		body = m.sessionList.View()
	}
	modal := modalStyle.Render(body)
	overlay := lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, modal)
	return overlay + "\n" + statusLine + "\n" + footer
}

// ---------------------------------------------------------------------------
// Chat tab
// ---------------------------------------------------------------------------

func (m model) chatView() string {
	transcript := m.transcript.View()
	if m.showInspector {
		insp := m.inspectorView(inspectorWidth(m.width), m.transcript.Height)
		transcript = lipgloss.JoinHorizontal(lipgloss.Top, transcript, insp)
	}
	return transcript + "\n" + m.composer.View()
}

func (m model) renderTranscript(width int) string {
	msgs := m.sessions.CurrentMessages()
	if len(msgs) == 0 {
		return sendingStyle.Render("No messages yet. Type below and press enter.")
	}

	var b strings.Builder
	for _, msg := range msgs {
		label := assistantLabelStyle.Render("agent")
		if msg.Role == session.RoleUser {
			label = userLabelStyle.Render("you")
		}
		if m.showInspector && msg.ID == m.selectedMsgID {
			label = selectedStyle.Render("▸ ") + label
		}
		meta := renderMessageMeta(msg)
		b.WriteString(label)
		if meta != "" {
			b.WriteString("  " + meta)
		}
		b.WriteString("\n")
		b.WriteString(m.renderMessageBody(msg, width))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMessageMeta(msg session.Message) string {
	var tags []string
	switch msg.Status {
	case session.StatusSending:
		tags = append(tags, sendingStyle.Render("sending"))
	case session.StatusRefused:
		tags = append(tags, refusedStyle.Render("refused"))
	case session.StatusBlocked:
		tags = append(tags, refusedStyle.Render("blocked"))
	case session.StatusError:
		tags = append(tags, errorTextStyle.Render("error"))
	case session.StatusCancelled:
		tags = append(tags, cancelledStyle.Render("cancelled"))
	}
	if n := len(msg.RailEvents); n > 0 {
		tags = append(tags, refusedStyle.Render(fmt.Sprintf("⚑ %d", n)))
	}
	if n := len(msg.ToolCalls); n > 0 {
		tags = append(tags, statusStyle.Render(fmt.Sprintf("⚙ %d", n)))
	}
	return strings.Join(tags, " ")
}

func (m model) renderMessageBody(msg session.Message, width int) string {
	switch msg.Status {
	case session.StatusSending:
		return sendingStyle.Render("…")
	case session.StatusError:
		return errorTextStyle.Render(msg.Content)
	case session.StatusCancelled:
		return cancelledStyle.Render(msg.Content)
	}
	if msg.Role == session.RoleAssistant && m.md != nil {
		if out, err := m.md.Render(msg.Content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return lipgloss.NewStyle().Width(width - 2).Render(msg.Content)
}

// ---------------------------------------------------------------------------
// Inspector pane
// ---------------------------------------------------------------------------

func inspectorWidth(total int) int {
	w := total / 3
	if w < 28 {
		w = 28
	}
	if w > 48 {
		w = 48
	}
	return w
}

func (m model) inspectorView(width, height int) string {
	var b strings.Builder

	var tabs []string
	for i, name := range facetNames {
		if i == m.facet {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, tabs...))
	b.WriteString("\n\n")

	selected := inspector.Select(m.selectedMsgID, m.sessions.CurrentMessages())
	switch m.facet {
	case facetActions:
		b.WriteString(renderToolCalls(inspector.ToolCalls(selected)))
	case facetRails:
		b.WriteString(renderRailToggles(m.rails.Snapshot()))
	case facetEvents:
		b.WriteString(renderRailEvents(inspector.RailEvents(selected)))
	case facetRules:
		b.WriteString(renderGeneratedRails(inspector.Generated(selected)))
	}

	return inspectorStyle.Width(width - 1).Height(height).Render(b.String())
}

func renderToolCalls(calls []session.ToolCall) string {
	if len(calls) == 0 {
		return statusStyle.Render("No tool calls for this turn.")
	}
	var b strings.Builder
	for _, tc := range calls {
		mark := railOnStyle.Render("✓")
		if tc.Status != "ok" {
			mark = errorTextStyle.Render("✗")
		}
		fmt.Fprintf(&b, "%s %s", mark, titleStyle.Render(tc.Tool))
		if tc.LatencyMs > 0 {
			fmt.Fprintf(&b, " %s", statusStyle.Render(fmt.Sprintf("%dms", tc.LatencyMs)))
		}
		b.WriteString("\n")
		if tc.Error != "" {
			b.WriteString(errorTextStyle.Render("  "+tc.Error) + "\n")
		}
	}
	return b.String()
}

func renderRailToggles(cfg guardrails.Config) string {
	var b strings.Builder
	mode := "blocking"
	if cfg.MonitorOnly {
		mode = "monitor-only"
	}
	if !cfg.Enabled {
		b.WriteString(railOffStyle.Render("Guardrails disabled — requests omit rails entirely.") + "\n\n")
	} else {
		b.WriteString(statusStyle.Render("Enabled, "+mode+" mode.") + "\n\n")
	}
	active, inactive := inspector.Rails(cfg)
	for _, k := range active {
		b.WriteString(railOnStyle.Render("● ") + renderRailName(k) + "\n")
	}
	for _, k := range inactive {
		b.WriteString(railOffStyle.Render("○ "+string(k)) + "\n")
	}
	return b.String()
}

func renderRailName(k guardrails.RailKey) string {
	return lipgloss.NewStyle().Foreground(stageColor(k.Category())).Render(string(k))
}

func renderRailEvents(events []session.RailEvent) string {
	if len(events) == 0 {
		return statusStyle.Render("No rail events for this turn.")
	}
	var b strings.Builder
	for _, ev := range events {
		sev := statusStyle
		switch ev.Severity {
		case "warn":
			sev = refusedStyle
		case "block":
			sev = errorTextStyle
		}
		fmt.Fprintf(&b, "%s %s\n", sev.Render("["+ev.Severity+"]"),
			lipgloss.NewStyle().Foreground(stageColor(ev.Stage)).Render(ev.RailName))
		b.WriteString("  " + ev.Reason + "\n")
	}
	return b.String()
}

func renderGeneratedRails(g *session.GeneratedRails) string {
	if g == nil {
		return statusStyle.Render("No generated rules for this turn.")
	}
	newIDs := inspector.NewRuleIDs(g)
	var b strings.Builder
	b.WriteString(titleStyle.Render(g.ProfileID) + "\n")
	if g.Summary != "" {
		b.WriteString(statusStyle.Render(g.Summary) + "\n")
	}
	b.WriteString("\n")
	for _, r := range g.Rules {
		mark := "  "
		style := statusStyle
		if newIDs[r.RuleID] {
			mark = railOnStyle.Render("+ ")
			style = lipgloss.NewStyle().Foreground(colorText)
		}
		fmt.Fprintf(&b, "%s%s %s\n", mark, style.Render(r.Description),
			railOffStyle.Render("("+r.Severity+")"))
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Guardrails tab
// ---------------------------------------------------------------------------

func (m model) guardrailsView() string {
	cfg := m.rails.Snapshot()
	var b strings.Builder
	b.WriteString(titleStyle.Render("Guardrails") + "\n\n")

	rows := []string{
		checkboxRow("Guardrails enabled", cfg.Enabled, m.railCursor == 0),
		checkboxRow("Monitor only (log, never block)", cfg.MonitorOnly, m.railCursor == 1),
	}
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n\n")

	lastCategory := ""
	for i, k := range guardrails.AllRailKeys() {
		if cat := k.Category(); cat != lastCategory {
			if lastCategory != "" {
				b.WriteString("\n")
			}
			b.WriteString(lipgloss.NewStyle().Foreground(stageColor(cat)).Bold(true).Render(strings.ToUpper(cat)) + "\n")
			lastCategory = cat
		}
		b.WriteString(checkboxRow(string(k), cfg.Toggles[k], m.railCursor == i+2) + "\n")
	}
	b.WriteString("\n" + statusStyle.Render("space toggles · R resets to defaults"))
	return b.String()
}

func checkboxRow(label string, on, focused bool) string {
	box := railOffStyle.Render("[ ]")
	if on {
		box = railOnStyle.Render("[x]")
	}
	prefix := "  "
	style := lipgloss.NewStyle().Foreground(colorText)
	if focused {
		prefix = cursorStyle.Render("> ")
		style = selectedStyle
	}
	return prefix + box + " " + style.Render(label)
}

// ---------------------------------------------------------------------------
// Settings tab
// ---------------------------------------------------------------------------

func (m model) settingsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Backend") + "\n\n")

	if m.health != nil {
		b.WriteString(railOnStyle.Render("● ") + "connected  " +
			statusStyle.Render(fmt.Sprintf("env=%s dynamic_rails=%v", m.health.Env, m.health.DynamicRails)) + "\n\n")
	} else {
		b.WriteString(errorTextStyle.Render("● ") + "unreachable  " +
			statusStyle.Render(m.cfg.Backend.URL) + "\n\n")
	}

	if m.backendCfg == nil {
		b.WriteString(statusStyle.Render("Runtime config not loaded. r retries."))
		return b.String()
	}

	b.WriteString(settingRow("b", "Guardrails backend", m.backendCfg.GuardrailsBackend))
	b.WriteString(settingRow("p", "LLM provider", m.backendCfg.LLMProvider))
	b.WriteString(settingRow("m", "LLM model", m.backendCfg.LLMModel))
	b.WriteString("\n" + statusStyle.Render("b/p/m cycle values · r refreshes"))
	return b.String()
}

func settingRow(binding, label, value string) string {
	return fmt.Sprintf("  %s %s: %s\n",
		cursorStyle.Render("("+binding+")"),
		label,
		lipgloss.NewStyle().Foreground(colorText).Render(value))
}

// ---------------------------------------------------------------------------
// Small helpers
// ---------------------------------------------------------------------------

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
