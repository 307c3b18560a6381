package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/amilaanjanab/voidstream/internal/session"
)

// Console line colors, keyed by the tag the server prefixes lines with.
var (
	ColorSystem   = lipgloss.Color("#22c55e")
	ColorCommand  = lipgloss.Color("#a855f7")
	ColorWarn     = lipgloss.Color("#d97706")
	ColorError    = lipgloss.Color("#dc2626")
	ColorDownload = lipgloss.Color("#06b6d4")
	ColorOutput   = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorDanger  = lipgloss.Color("#dc2626")
)

var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)
)

// LineColor picks the console color for one output line.
func LineColor(line string) lipgloss.Color {
	switch {
	case strings.HasPrefix(line, "[SYSTEM]"):
		return ColorSystem
	case strings.HasPrefix(line, "[CMD]"):
		return ColorCommand
	case strings.HasPrefix(line, "[WARN]"), strings.HasPrefix(line, "WARNING:"):
		return ColorWarn
	case strings.HasPrefix(line, "[ERROR]"), strings.HasPrefix(line, "[FATAL]"), strings.HasPrefix(line, "ERROR:"):
		return ColorError
	case strings.HasPrefix(line, "[download]"):
		return ColorDownload
	default:
		return ColorOutput
	}
}

// StatusColor returns the color for a terminal run status.
func StatusColor(s session.Status) lipgloss.Color {
	switch s {
	case session.StatusCompleted:
		return ColorHealthy
	case session.StatusFailed:
		return ColorDanger
	default:
		return ColorWarn
	}
}
