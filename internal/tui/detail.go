package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// detailHeight is the fixed number of lines for the detail panel.
const detailHeight = 5

// maxDetailMembers caps the members listed for a selected group.
const maxDetailMembers = 3

// renderGroupDetail shows the selected group and its first members.
func renderGroupDetail(g *models.Group, width int) string {
	if g == nil {
		return styleDetailPanel.Width(width).Render("No group selected")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("#%d %s  %s\n", g.ID, g.Name, riskStyle(g.Risk).Render(g.Risk)))
	for i, m := range g.Members {
		if i == maxDetailMembers {
			b.WriteString(fmt.Sprintf("  ... %d more", len(g.Members)-maxDetailMembers))
			break
		}
		b.WriteString("  - " + m + "\n")
	}
	return styleDetailPanel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

// renderFindingDetail shows the full name of the selected unmatched finding.
func renderFindingDetail(name string, marked int, width int) string {
	if name == "" {
		return styleDetailPanel.Width(width).Render("No unmatched findings")
	}
	text := name
	if marked > 0 {
		text += fmt.Sprintf("\n%d marked", marked)
	}
	return styleDetailPanel.Width(width).Render(text)
}
