package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"payloadbuilder/pkg/ui/base"
)

// Model browses a set of results, one tab per executed plan.
type Model struct {
	results     []Result
	active      int
	resultTable table.Model
	planView    viewport.Model
	help        help.Model
	highlighter *PlanHighlighter

	width    int
	height   int
	showPlan bool
	showHelp bool
	keys     keyMap
}

func NewModel(results ...Result) Model {
	t := table.New(
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	s.Selected = s.Selected.
		Foreground(bgDark).
		Background(secondaryColor).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		results:     results,
		resultTable: t,
		planView:    viewport.New(80, 8),
		help:        help.New(),
		highlighter: NewPlanHighlighter(),
		width:       100,
		height:      30,
		keys:        keys,
	}
	m.planView.Style = planStyle
	m.load()
	return m
}

// Active returns the index of the displayed result.
func (m Model) Active() int {
	return m.active
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.NextResult):
			m.switchTo(m.active + 1)
			return m, nil

		case key.Matches(msg, m.keys.PrevResult):
			m.switchTo(m.active - 1)
			return m, nil

		case key.Matches(msg, m.keys.TogglePlan):
			m.showPlan = !m.showPlan
			m.updateLayout()
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.resultTable, cmd = m.resultTable.Update(msg)
	cmds = append(cmds, cmd)
	if m.showPlan {
		m.planView, cmd = m.planView.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	sections := []string{m.renderHeader()}

	if len(m.results) == 0 {
		sections = append(sections, lipgloss.NewStyle().Foreground(textMuted).Render("no results"))
		return appStyle.Render(strings.Join(sections, "\n"))
	}

	r := m.results[m.active]
	if m.showPlan && r.Plan != "" {
		sections = append(sections, m.planView.View())
	}
	if r.Err != nil {
		sections = append(sections, m.renderError(r.Err))
	} else {
		sections = append(sections, m.resultTable.View())
	}
	sections = append(sections, m.renderStatusBar())

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}
	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m *Model) switchTo(i int) {
	if len(m.results) == 0 {
		return
	}
	m.active = (i + len(m.results)) % len(m.results)
	m.load()
}

// load puts the active result into the table and plan views.
func (m *Model) load() {
	if len(m.results) == 0 {
		return
	}
	r := m.results[m.active]

	columns := make([]table.Column, len(r.Columns))
	for i, c := range r.Columns {
		columns[i] = table.Column{Title: c, Width: columnWidth(r, i)}
	}
	rows := make([]table.Row, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = table.Row(row)
	}

	// Rows go last; the table renders them against the current columns.
	m.resultTable.SetRows(nil)
	m.resultTable.SetColumns(columns)
	m.resultTable.SetRows(rows)
	m.resultTable.GotoTop()

	m.planView.SetContent(m.highlighter.Highlight(r.Plan))
	m.planView.GotoTop()
}

func columnWidth(r Result, col int) int {
	width := len(r.Columns[col]) + 2
	for _, row := range r.Rows {
		if w := len(row[col]) + 2; w > width {
			width = w
		}
	}
	return base.Clamp(width, 6, maxCellWidth)
}

// updateLayout adjusts component sizes based on window size
func (m *Model) updateLayout() {
	planHeight := 0
	if m.showPlan {
		planHeight = base.Clamp(m.height/3, 4, 20)
	}
	m.planView.Width = m.width - 6
	m.planView.Height = planHeight
	m.resultTable.SetHeight(base.Clamp(m.height-planHeight-10, 3, m.height))
}

func (m Model) renderHeader() string {
	tabs := []string{titleStyle.Render("payloadbuilder")}
	for i, r := range m.results {
		style := tabStyle
		if i == m.active {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(r.Title))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Left, tabs...)

	separator := lipgloss.NewStyle().
		Foreground(bgLight).
		Render(strings.Repeat("─", max(m.width-4, 0)))
	return header + "\n" + separator
}

func (m Model) renderError(err error) string {
	icon := errorStyle.Render(" ⚠ ERROR ")
	message := lipgloss.NewStyle().
		Foreground(errorColor).
		Render(err.Error())

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errorColor).
		Padding(0, 1).
		Render(fmt.Sprintf("%s %s", icon, message))
}

func (m Model) renderStatusBar() string {
	r := m.results[m.active]
	status := lipgloss.NewStyle().Foreground(accentColor).Render("● " + summary(r))
	if r.Err != nil {
		status = lipgloss.NewStyle().Foreground(warningColor).Render("● failed")
	}
	hint := lipgloss.NewStyle().
		Foreground(textMuted).
		Render(fmt.Sprintf(" | %d/%d | press ? for help", m.active+1, len(m.results)))

	return statusBarStyle.
		Width(max(m.width-4, 0)).
		Render(status + hint)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{m.keys.NextResult, m.keys.PrevResult, m.keys.TogglePlan},
		{m.keys.ScrollUp, m.keys.ScrollDown, m.keys.Help, m.keys.Quit},
	})

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(bgMedium).
		Render(helpText)
}
