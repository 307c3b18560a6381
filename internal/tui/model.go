// Package tui is the terminal client: a URL prompt, a quality toggle, a
// progress bar and a scrolling log console fed by the server's event stream.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/amilaanjanab/voidstream/internal/client"
	"github.com/amilaanjanab/voidstream/internal/session"
	"github.com/amilaanjanab/voidstream/internal/settings"
)

const (
	maxConsoleLines = 1000
	// status bar, input box, progress bar and footer
	chromeHeight = 9
)

// --- internal messages ---

type configMsg struct{ Settings settings.Settings }

type folderMsg struct{ Result client.FolderResult }

type errMsg struct {
	op  string
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	input   textinput.Model
	console viewport.Model
	bar     progress.Model

	lines   []string
	quality string
	folder  string
	percent float64
	status  session.Status

	connected bool
	running   bool

	showHelp  bool
	helpStyle string
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())

	in := textinput.New()
	in.Placeholder = "paste a stream URL and press enter"
	in.Prompt = "URL > "
	in.CharLimit = 2048
	in.Focus()

	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		input:     in,
		console:   viewport.New(80, 10),
		bar:       progress.New(progress.WithDefaultGradient()),
		quality:   "best",
		helpStyle: styles.DarkStyle,
	}
}

// Init starts the WebSocket connection and loads the server settings.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.ws.Listen(m.ctx), m.loadConfig())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		if m.running {
			m.running = false
			m.appendLine("[ERROR] Connection lost. Capture aborted by server.")
		}
		return m, m.ws.Listen(m.ctx)

	case client.EventMsg:
		m.applyEvent(msg.Event)
		return m, m.ws.ReadLoop(m.ctx)

	case configMsg:
		m.folder = msg.Settings.DownloadPath
		if msg.Settings.Quality != "" {
			m.quality = msg.Settings.Quality
		}
		return m, nil

	case folderMsg:
		if msg.Result.Path != "" {
			m.folder = msg.Result.Path
		}
		m.appendLine(fmt.Sprintf("[SYSTEM] Folder %s: %s", msg.Result.Status, msg.Result.Path))
		return m, nil

	case errMsg:
		if msg.op == "start" {
			m.running = false
		}
		m.appendLine(fmt.Sprintf("[ERROR] %s: %v", msg.op, msg.err))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.showHelp = false
			return m, nil
		}
		if key.Matches(msg, m.keys.Quit) {
			m.cancel()
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Start):
		url := strings.TrimSpace(m.input.Value())
		if url == "" || m.running || !m.connected {
			return m, nil
		}
		m.running = true
		m.percent = 0
		m.status = ""
		m.input.Reset()
		return m, m.startDownload(url, m.quality)

	case key.Matches(msg, m.keys.Stop):
		if !m.running {
			return m, nil
		}
		return m, m.stopDownload()

	case key.Matches(msg, m.keys.Quality):
		if m.quality == "worst" {
			m.quality = "best"
		} else {
			m.quality = "worst"
		}
		return m, m.saveQuality(m.quality)

	case key.Matches(msg, m.keys.OpenFolder):
		return m, m.folderAction("open folder", m.http.OpenFolder)

	case key.Matches(msg, m.keys.ChangeFolder):
		return m, m.folderAction("change folder", m.http.ChangeFolder)

	case key.Matches(msg, m.keys.ScrollUp):
		m.console.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.console.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyEvent(ev session.Event) {
	switch ev.Type {
	case session.EventLog:
		m.appendLine(ev.Message)
	case session.EventProgress:
		if p, ok := parsePercent(ev.Raw); ok {
			m.percent = p
		}
	case session.EventStatus:
		m.running = false
		m.status = ev.Status
		if ev.Status == session.StatusCompleted {
			m.percent = 1
		}
		m.appendLine(statusLine(ev))
	case session.EventFatal:
		m.appendLine(ev.Message)
	}
}

func statusLine(ev session.Event) string {
	switch {
	case ev.Status == session.StatusCompleted:
		return "[SYSTEM] Capture completed."
	case ev.Status == session.StatusStopped:
		return "[SYSTEM] Capture stopped."
	case ev.Code != nil:
		return fmt.Sprintf("[ERROR] Capture failed with exit code %d.", *ev.Code)
	default:
		return "[ERROR] Capture failed."
	}
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - maxConsoleLines; over > 0 {
		m.lines = m.lines[over:]
	}
	atBottom := m.console.AtBottom()
	m.console.SetContent(m.renderLines())
	if atBottom {
		m.console.GotoBottom()
	}
}

func (m Model) renderLines() string {
	out := make([]string, len(m.lines))
	for i, l := range m.lines {
		out[i] = lipgloss.NewStyle().Foreground(LineColor(l)).Render(l)
	}
	return strings.Join(out, "\n")
}

func (m *Model) resize() {
	w := max(m.width-2, 20)
	m.input.Width = w - len(m.input.Prompt) - 1
	m.bar.Width = w
	m.console.Width = w
	m.console.Height = max(m.height-chromeHeight, 3)
	m.console.SetContent(m.renderLines())
	m.console.GotoBottom()
}

// --- commands ---

func (m Model) startDownload(url, quality string) tea.Cmd {
	ws := m.ws
	return func() tea.Msg {
		if err := ws.StartDownload(url, quality); err != nil {
			return errMsg{op: "start", err: err}
		}
		return nil
	}
}

func (m Model) stopDownload() tea.Cmd {
	ws := m.ws
	return func() tea.Msg {
		if err := ws.StopDownload(); err != nil {
			return errMsg{op: "stop", err: err}
		}
		return nil
	}
}

func (m Model) loadConfig() tea.Cmd {
	hc, ctx := m.http, m.ctx
	return func() tea.Msg {
		st, err := hc.GetConfig(ctx)
		if err != nil {
			return errMsg{op: "load settings", err: err}
		}
		return configMsg{Settings: st}
	}
}

func (m Model) saveQuality(q string) tea.Cmd {
	hc, ctx := m.http, m.ctx
	return func() tea.Msg {
		st, err := hc.SetConfig(ctx, settings.Partial{Quality: &q})
		if err != nil {
			return errMsg{op: "save quality", err: err}
		}
		return configMsg{Settings: st}
	}
}

func (m Model) folderAction(op string, call func(context.Context) (client.FolderResult, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		res, err := call(ctx)
		if err != nil {
			return errMsg{op: op, err: err}
		}
		return folderMsg{Result: res}
	}
}

// --- view ---

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showHelp {
		out, err := renderHelp(m.keys, m.quality, m.folder, m.helpStyle, m.width-4)
		if err != nil {
			return "help unavailable: " + err.Error()
		}
		return out
	}

	sections := []string{
		m.statusBar(),
		StyleBorder.Width(max(m.width-2, 20)).Render(m.input.View()),
		m.bar.ViewAs(m.percent),
		m.console.View(),
		StyleDimmed.Render("  enter:start  ctrl+x:stop  tab:quality  ctrl+o:open  ctrl+f:folder  f1:help  ctrl+c:quit"),
	}
	if !m.connected {
		sections[3] = m.disconnectedOverlay()
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusBar() string {
	var conn string
	if m.connected {
		conn = lipgloss.NewStyle().Foreground(ColorHealthy).Render("● Connected")
	} else {
		conn = lipgloss.NewStyle().Foreground(ColorDanger).Render("○ Connecting...")
	}

	state := "idle"
	switch {
	case m.running:
		state = "capturing"
	case m.status != "":
		state = lipgloss.NewStyle().Foreground(StatusColor(m.status)).Render(string(m.status))
	}

	sep := lipgloss.NewStyle().Foreground(ColorBorder).Render(" | ")
	folder := m.folder
	if folder == "" {
		folder = "?"
	}
	content := conn + sep + "quality: " + StyleHeader.Render(m.quality) + sep + "folder: " + folder + sep + state

	return lipgloss.NewStyle().
		Width(max(m.width-2, 20)).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder).
		Render(content)
}

func (m Model) disconnectedOverlay() string {
	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorDanger).
		Padding(1, 4).
		Render(lipgloss.NewStyle().Foreground(ColorDanger).Bold(true).Render("DISCONNECTED") +
			"\n" + StyleDimmed.Render("Reconnecting to server..."))
	return lipgloss.Place(max(m.width-2, 20), max(m.height-chromeHeight, 3), lipgloss.Center, lipgloss.Center, box)
}
