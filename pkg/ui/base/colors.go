package base

import "github.com/charmbracelet/lipgloss"

// ColorPalette defines a consistent color scheme
type ColorPalette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
}

// DarkPalette is the default dark theme palette
var DarkPalette = ColorPalette{
	Primary:   lipgloss.Color("#7C3AED"), // Purple
	Secondary: lipgloss.Color("#06B6D4"), // Cyan
	Accent:    lipgloss.Color("#10B981"), // Emerald
	Warning:   lipgloss.Color("#F59E0B"), // Amber
	Error:     lipgloss.Color("#EF4444"), // Red
	Muted:     lipgloss.Color("#94A3B8"), // Slate
}
