package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/vulnrecon/internal/models"
)

var unmatchedColumns = []table.Column{
	{Title: " ", Width: 2},
	{Title: "Unmatched finding", Width: 60},
}

var groupColumns = []table.Column{
	{Title: "ID", Width: 6},
	{Title: "Group", Width: 40},
	{Title: "Risk", Width: 10},
	{Title: "Members", Width: 8},
	{Title: "Origin", Width: 8},
}

// buildUnmatchedRows renders unmatched names, flagging marked ones.
func buildUnmatchedRows(names []string, marked map[string]bool) []table.Row {
	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		flag := ""
		if marked[name] {
			flag = "*"
		}
		rows = append(rows, table.Row{flag, truncate(name, unmatchedColumns[1].Width)})
	}
	return rows
}

// buildGroupRows renders matched and session groups.
func buildGroupRows(groups []models.Group) []table.Row {
	rows := make([]table.Row, 0, len(groups))
	for _, g := range groups {
		origin := "catalog"
		if g.Origin() == models.OriginSession {
			origin = "new"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", g.ID),
			truncate(g.Name, groupColumns[1].Width),
			g.Risk,
			fmt.Sprintf("%d", len(g.Members)),
			origin,
		})
	}
	return rows
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-len(ellipsis)]) + ellipsis
}

// newTable creates a bubbles table with standard styling.
func newTable(columns []table.Column, rows []table.Row, height int, focused bool) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(focused),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorAccent).
		Bold(false)
	t.SetStyles(s)

	return t
}
