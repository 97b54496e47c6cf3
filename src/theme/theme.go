// Package theme holds the console palette and the lipgloss styles built
// from it.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme represents a color theme
type Theme struct {
	Primary   lipgloss.Color
	Accent    lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

// Dark suits dark terminal backgrounds.
var Dark = Theme{
	Primary:   lipgloss.Color("#00d75f"),
	Accent:    lipgloss.Color("#5fafff"),
	Text:      lipgloss.Color("#ffffff"),
	TextMuted: lipgloss.Color("#808080"),
	Success:   lipgloss.Color("#00af5f"),
	Warning:   lipgloss.Color("#ffaf00"),
	Error:     lipgloss.Color("#ff5f5f"),
}

// Light suits light terminal backgrounds.
var Light = Theme{
	Primary:   lipgloss.Color("#008700"),
	Accent:    lipgloss.Color("#005fd7"),
	Text:      lipgloss.Color("#000000"),
	TextMuted: lipgloss.Color("#6c6c6c"),
	Success:   lipgloss.Color("#008700"),
	Warning:   lipgloss.Color("#af5f00"),
	Error:     lipgloss.Color("#d70000"),
}

var CurrentTheme = Dark

// ByName returns the named theme, dark or light.
func ByName(name string) (Theme, bool) {
	switch name {
	case "dark", "":
		return Dark, true
	case "light":
		return Light, true
	}
	return Theme{}, false
}

// SetTheme sets the current theme
func SetTheme(t Theme) {
	CurrentTheme = t
}

// Styles are the rendered roles of the console view.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Tool      lipgloss.Style
	Running   lipgloss.Style
	Success   lipgloss.Style
	Failure   lipgloss.Style
	Muted     lipgloss.Style
	Notice    lipgloss.Style
	Meter     lipgloss.Style
}

// NewStyles derives the view styles from t.
func NewStyles(t Theme) Styles {
	return Styles{
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Tool:      lipgloss.NewStyle().Foreground(t.Text),
		Running:   lipgloss.NewStyle().Foreground(t.Warning),
		Success:   lipgloss.NewStyle().Foreground(t.Success),
		Failure:   lipgloss.NewStyle().Foreground(t.Error),
		Muted:     lipgloss.NewStyle().Foreground(t.TextMuted),
		Notice:    lipgloss.NewStyle().Italic(true).Foreground(t.Warning),
		Meter:     lipgloss.NewStyle().Foreground(t.Primary),
	}
}
