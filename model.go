package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/chat"
	"github.com/jask/railchat/internal/config"
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/session"
)

const appName = "Railchat"

// Tab indices
const (
	tabChat       = 0
	tabGuardrails = 1
	tabSettings   = 2
	tabCount      = 3
)

// Inspector facets
const (
	facetActions = iota
	facetRails
	facetEvents
	facetRules
	facetCount
)

var facetNames = [facetCount]string{"Actions", "Guardrails", "Events", "Rules"}

// ---------------------------------------------------------------------------
// Session-picker item (implements list.Item)
// ---------------------------------------------------------------------------

type sessionItem struct {
	sess    session.Session
	current bool
}

func (s sessionItem) Title() string       { return s.sess.Title }
func (s sessionItem) Description() string { return "" }
func (s sessionItem) FilterValue() string { return s.sess.Title }

type sessionItemDelegate struct{}

func (d sessionItemDelegate) Height() int  { return 1 }
func (d sessionItemDelegate) Spacing() int { return 0 }
func (d sessionItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}
func (d sessionItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(sessionItem)
	if !ok {
		return
	}
	prefix := "  "
	if index == m.Index() {
		prefix = cursorStyle.Render("> ")
	}
	marker := "  "
	if entry.current {
		marker = currentMarkStyle.Render("* ")
	}
	line := fmt.Sprintf("%s%s%s (%d)", prefix, marker, entry.sess.Title, entry.sess.MessageCount)
	fmt.Fprint(w, padRight(line, m.Width()))
}

// ---------------------------------------------------------------------------
// Bubble Tea messages
// ---------------------------------------------------------------------------

type chatDoneMsg struct {
	res chat.Result
}

type backendConfigMsg struct {
	cfg *api.RuntimeConfig
	err error
}

type healthMsg struct {
	health *api.HealthStatus
	err    error
}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	cfg  config.Config
	log  *zap.Logger
	keys keyMap
	sessKeys sessionsKeyMap

	sessions *session.Store
	rails    *guardrails.Store
	client   *api.Client
	orch     *chat.Orchestrator

	activeTab int
	width     int
	height    int
	status    string

	// Chat tab
	composer   textarea.Model
	transcript viewport.Model
	spin       spinner.Model
	md         *glamour.TermRenderer
	transcriptReady bool

	// Sessions overlay
	showSessions bool
	sessionList  list.Model
	renaming     bool
	renameInput  textinput.Model

	// Inspector pane
	showInspector bool
	selectedMsgID string
	facet         int

	// Guardrails tab
	railCursor int

	// Settings tab
	backendCfg *api.RuntimeConfig
	health     *api.HealthStatus
}

func newModel(cfg config.Config, log *zap.Logger, sessions *session.Store, rails *guardrails.Store, client *api.Client, orch *chat.Orchestrator) model {
	composer := textarea.New()
	composer.Placeholder = "Ask the agent anything..."
	composer.SetHeight(3)
	composer.ShowLineNumbers = false
	composer.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(colorAccent)

	sessionList := list.New([]list.Item{}, sessionItemDelegate{}, 0, 0)
	sessionList.Title = "Sessions"
	sessionList.Styles.Title = titleStyle
	sessionList.Styles.NoItems = lipgloss.NewStyle()
	sessionList.SetShowStatusBar(false)
	sessionList.SetFilteringEnabled(false)
	sessionList.SetShowHelp(false)
	sessionList.DisableQuitKeybindings()

	renameInput := textinput.New()
	renameInput.Placeholder = "Session title"
	renameInput.CharLimit = 80

	md, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return model{
		cfg:         cfg,
		log:         log,
		keys:        newKeyMap(),
		sessKeys:    sessionsKeyMap{keyMap: newKeyMap()},
		sessions:    sessions,
		rails:       rails,
		client:      client,
		orch:        orch,
		activeTab:   tabChat,
		composer:    composer,
		spin:        spin,
		sessionList: sessionList,
		renameInput: renameInput,
		md:          md,
		status:      "Ready. Enter sends, ctrl+s opens sessions.",
	}
}

// ---------------------------------------------------------------------------
// Bubble Tea interface: Init / Update / View
// ---------------------------------------------------------------------------

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		fetchBackendConfigCmd(m.client),
		fetchHealthCmd(m.client),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case chatDoneMsg:
		return m.handleChatDone(msg)
	case backendConfigMsg:
		return m.handleBackendConfig(msg)
	case healthMsg:
		return m.handleHealth(msg)
	case spinner.TickMsg:
		if !m.orch.InFlight() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		if m.showSessions {
			return m.updateSessions(msg)
		}
		switch m.activeTab {
		case tabChat:
			return m.updateChat(msg)
		case tabGuardrails:
			return m.updateGuardrails(msg)
		case tabSettings:
			return m.updateSettings(msg)
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return statusStyle.Render("Loading...")
	}

	header := renderHeader(appName, m.activeTab, m.width)
	statusLine := m.renderStatusLine()
	footer := m.renderFooter()

	var body string
	switch m.activeTab {
	case tabChat:
		body = m.chatView()
	case tabGuardrails:
		body = m.guardrailsView()
	case tabSettings:
		body = m.settingsView()
	default:
		body = m.chatView()
	}

	main := header + "\n" + body

	if m.showSessions {
		return m.composeSessionsModal(main, statusLine, footer)
	}
	return m.placeWithFooter(main, statusLine, footer)
}
