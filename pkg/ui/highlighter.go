package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PlanHighlighter colors the lines of an execution plan: the operator by its
// family, the family tag and the statistics muted.
type PlanHighlighter struct {
	families    map[string]lipgloss.Style
	familyStyle lipgloss.Style
	statsStyle  lipgloss.Style
}

func NewPlanHighlighter() *PlanHighlighter {
	return &PlanHighlighter{
		families: map[string]lipgloss.Style{
			"source":    lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")),
			"filter":    lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C")),
			"join":      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6")).Bold(true),
			"cache":     lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
			"aggregate": lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
			"parallel":  lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9")).Bold(true),
		},
		familyStyle: lipgloss.NewStyle().Foreground(textMuted),
		statsStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4")).
			Italic(true),
	}
}

// Highlight styles every line of plan. Lines that do not look like plan
// nodes are returned unchanged.
func (h *PlanHighlighter) Highlight(plan string) string {
	lines := strings.Split(strings.TrimRight(plan, "\n"), "\n")
	for i, line := range lines {
		lines[i] = h.line(line)
	}
	return strings.Join(lines, "\n")
}

func (h *PlanHighlighter) line(line string) string {
	body := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(body)]

	node, rest, ok := strings.Cut(body, " ")
	if !ok || !strings.Contains(node, "#") || !strings.HasPrefix(rest, "[") {
		return line
	}
	family, rest, ok := strings.Cut(strings.TrimPrefix(rest, "["), "]")
	if !ok {
		return line
	}
	style, ok := h.families[family]
	if !ok {
		return line
	}

	detail, stats := rest, ""
	if i := strings.LastIndex(rest, " ("); i >= 0 && strings.HasSuffix(rest, ")") {
		detail, stats = rest[:i], rest[i:]
	}

	return indent + style.Render(node) + " " + h.familyStyle.Render("["+family+"]") +
		detail + h.statsStyle.Render(stats)
}
