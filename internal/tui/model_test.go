package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/amilaanjanab/voidstream/internal/client"
	"github.com/amilaanjanab/voidstream/internal/session"
	"github.com/amilaanjanab/voidstream/internal/settings"
)

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
		ok   bool
	}{
		{"fraction", "[download]  42.5% of 10.00MiB at 1.20MiB/s ETA 00:05", 0.425, true},
		{"whole", "[download] 100% of 3.2MiB in 00:01", 1, true},
		{"clamped", "[download] 250% weird", 1, true},
		{"no percent", "[download] Destination: x.mp4", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePercent(tt.raw)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parsePercent(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLineColor(t *testing.T) {
	tests := map[string]lipgloss.Color{
		"[SYSTEM] Uplink established.":    ColorSystem,
		"[CMD] Initializing":              ColorCommand,
		"[WARN] FFmpeg missing":           ColorWarn,
		"[ERROR] Stream reader: closed":   ColorError,
		"[FATAL] Startup failed: nope":    ColorError,
		"[download]  1.0% of 1MiB":        ColorDownload,
		"[youtube] abc: Downloading m3u8": ColorOutput,
	}
	for line, want := range tests {
		if got := LineColor(line); got != want {
			t.Errorf("LineColor(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestApplyEvents(t *testing.T) {
	m := sized(New(nil, nil))
	m.connected = true
	m.running = true

	m, _ = update(t, m, client.EventMsg{Event: session.LogEvent(1, "[youtube] fetching")})
	m, _ = update(t, m, client.EventMsg{Event: session.ProgressEvent(1, "[download]  50.0% of 2MiB")})
	if m.percent != 0.5 {
		t.Errorf("percent = %v, want 0.5", m.percent)
	}
	if !m.running {
		t.Error("progress must not end the run")
	}

	m, _ = update(t, m, client.EventMsg{Event: session.FailedEvent(1, 3)})
	if m.running {
		t.Error("status event should end the run")
	}
	if m.status != session.StatusFailed {
		t.Errorf("status = %q, want failed", m.status)
	}
	last := m.lines[len(m.lines)-1]
	if !strings.Contains(last, "exit code 3") {
		t.Errorf("last line = %q, want exit code", last)
	}
}

func TestCompletedFillsBar(t *testing.T) {
	m := sized(New(nil, nil))
	m.running = true
	m, _ = update(t, m, client.EventMsg{Event: session.StatusEvent(1, session.StatusCompleted)})
	if m.percent != 1 {
		t.Errorf("percent = %v, want 1", m.percent)
	}
}

func TestFatalKeepsRunState(t *testing.T) {
	m := sized(New(nil, nil))
	m.running = true
	m, _ = update(t, m, client.EventMsg{Event: session.FatalEvent("download already running")})
	if !m.running {
		t.Error("a rejected second start must not clear the active run")
	}
	if got := m.lines[len(m.lines)-1]; got != "download already running" {
		t.Errorf("last line = %q", got)
	}
}

func TestStartKey(t *testing.T) {
	m := sized(New(nil, nil))
	enter := tea.KeyMsg{Type: tea.KeyEnter}

	m, cmd := update(t, m, enter)
	if cmd != nil || m.running {
		t.Error("enter with an empty URL should do nothing")
	}

	m.input.SetValue("https://example.com/live")
	m, cmd = update(t, m, enter)
	if cmd != nil || m.running {
		t.Error("enter while disconnected should do nothing")
	}

	m.connected = true
	m, cmd = update(t, m, enter)
	if cmd == nil {
		t.Fatal("expected a start command")
	}
	if !m.running {
		t.Error("model should be running after start")
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q, want cleared", m.input.Value())
	}

	m.input.SetValue("https://example.com/other")
	_, cmd = update(t, m, enter)
	if cmd != nil {
		t.Error("second start while running should be ignored")
	}
}

func TestStartSendFailureClearsRun(t *testing.T) {
	m := sized(New(nil, nil))
	m.running = true
	m, _ = update(t, m, errMsg{op: "start", err: client.ErrNotConnected})
	if m.running {
		t.Error("failed send should clear the run")
	}
}

func TestStopKeyIdle(t *testing.T) {
	m := sized(New(nil, nil))
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	if cmd != nil {
		t.Error("stop while idle should not send")
	}
}

func TestQualityToggle(t *testing.T) {
	m := sized(New(nil, nil))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.quality != "worst" {
		t.Errorf("quality = %q, want worst", m.quality)
	}
	if cmd == nil {
		t.Error("toggle should persist the setting")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.quality != "best" {
		t.Errorf("quality = %q, want best", m.quality)
	}
}

func TestConfigMsg(t *testing.T) {
	m := New(nil, nil)
	m, _ = update(t, m, configMsg{Settings: settings.Settings{DownloadPath: "/srv/media", Quality: "worst"}})
	if m.folder != "/srv/media" || m.quality != "worst" {
		t.Errorf("folder=%q quality=%q", m.folder, m.quality)
	}
}

func TestTypingGoesToInput(t *testing.T) {
	m := sized(New(nil, nil))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abc")})
	if m.input.Value() != "abc" {
		t.Errorf("input = %q, want abc", m.input.Value())
	}
}

func TestConsoleIsBounded(t *testing.T) {
	m := sized(New(nil, nil))
	for i := 0; i < maxConsoleLines+50; i++ {
		m.appendLine("line")
	}
	if len(m.lines) != maxConsoleLines {
		t.Errorf("lines = %d, want %d", len(m.lines), maxConsoleLines)
	}
}

func TestDisconnectOverlay(t *testing.T) {
	m := New(nil, nil)
	m.width = 80
	m.height = 24
	m.connected = false

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") {
		t.Error("disconnect overlay should contain 'DISCONNECTED'")
	}
	if !strings.Contains(v, "Reconnecting") {
		t.Error("disconnect overlay should contain 'Reconnecting'")
	}
}

func TestDisconnectEndsRun(t *testing.T) {
	m := sized(New(nil, nil))
	m.connected = true
	m.running = true
	m, cmd := update(t, m, client.DisconnectedMsg{})
	if m.connected || m.running {
		t.Error("disconnect should clear connection and run state")
	}
	if cmd == nil {
		t.Error("disconnect should schedule a reconnect")
	}
}

func TestHelpOverlay(t *testing.T) {
	m := sized(New(nil, nil))
	m.helpStyle = styles.NoTTYStyle
	m.folder = "downloads"

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyF1})
	if !m.showHelp {
		t.Fatal("f1 should open help")
	}
	v := m.View()
	for _, want := range []string{"ctrl+x", "stop capture", "downloads"} {
		if !strings.Contains(v, want) {
			t.Errorf("help view missing %q", want)
		}
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showHelp {
		t.Error("esc should close help")
	}
}
