package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderHelp renders the key bindings and current settings as markdown.
func renderHelp(keys KeyMap, quality, folder, style string, width int) (string, error) {
	var b strings.Builder
	b.WriteString("# voidstream\n\n")
	b.WriteString("| Key | Action |\n|---|---|\n")
	for _, k := range keys.all() {
		h := k.Help()
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString("\n## Settings\n\n")
	fmt.Fprintf(&b, "- **Quality:** %s\n", quality)
	fmt.Fprintf(&b, "- **Folder:** %s\n", folder)

	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(b.String())
}
