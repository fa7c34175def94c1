package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"payloadbuilder/pkg/ui/base"
)

const maxCellWidth = 40

// Render formats results for non interactive output.
func Render(results ...Result) string {
	sections := make([]string, 0, len(results))
	for _, r := range results {
		sections = append(sections, renderResult(r))
	}
	return strings.Join(sections, "\n\n")
}

func renderResult(r Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(r.Title))
	b.WriteString("\n")

	if r.Plan != "" {
		b.WriteString(planStyle.Render(NewPlanHighlighter().Highlight(r.Plan)))
		b.WriteString("\n")
	}

	if r.Err != nil {
		b.WriteString(errorStyle.Render(" ERROR "))
		b.WriteString(" ")
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render(r.Err.Error()))
		return b.String()
	}

	if len(r.Columns) > 0 {
		b.WriteString(resultTable(r).String())
		b.WriteString("\n")
	}
	b.WriteString(successStyle.Render(" ✓ "))
	b.WriteString(" ")
	b.WriteString(summary(r))
	return b.String()
}

func resultTable(r Result) *table.Table {
	rows := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = base.TruncateString(cell, maxCellWidth)
		}
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(bgLight)).
		Headers(r.Columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCellStyle
			case row%2 == 1:
				return oddCellStyle
			default:
				return cellStyle
			}
		})
}

func summary(r Result) string {
	return fmt.Sprintf("%d rows in %v", len(r.Rows), r.Elapsed.Round(time.Microsecond))
}
