package ui

import (
	"payloadbuilder/pkg/ui/base"

	"github.com/charmbracelet/lipgloss"
)

var (
	palette = base.DarkPalette

	primaryColor   = palette.Primary
	secondaryColor = palette.Secondary
	accentColor    = palette.Accent
	warningColor   = palette.Warning
	errorColor     = palette.Error
	textMuted      = palette.Muted

	bgDark   = lipgloss.Color("#0F172A")
	bgMedium = lipgloss.Color("#1E293B")
	bgLight  = lipgloss.Color("#334155")

	textPrimary   = lipgloss.Color("#F8FAFC")
	textSecondary = lipgloss.Color("#CBD5E1")
)

var (
	appStyle = lipgloss.NewStyle().
			Foreground(textPrimary).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#8B5CF6")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 2)

	tabStyle = lipgloss.NewStyle().
			Foreground(textSecondary).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Background(secondaryColor).
			Foreground(bgDark).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(bgMedium).
			Foreground(textSecondary).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Background(accentColor).
			Foreground(bgDark).
			Bold(true).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Background(errorColor).
			Foreground(textPrimary).
			Bold(true).
			Padding(0, 1)

	planStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	oddCellStyle = cellStyle.Foreground(textSecondary)
)
