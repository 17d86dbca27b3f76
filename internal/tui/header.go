package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
)

// headerHeight is the number of terminal lines the header occupies.
const headerHeight = 5

// renderHeader summarizes the session: counts and groups by risk.
func renderHeader(sessionID string, view *reconcile.View, undoable int, width int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("vulnrecon  Session: %s", sessionID))
	b.WriteString("\n")

	newGroups := 0
	risks := make([]string, 0, len(view.MatchedGroups))
	for _, g := range view.MatchedGroups {
		if g.Origin() == models.OriginSession {
			newGroups++
		}
		risks = append(risks, g.Risk)
	}
	b.WriteString(fmt.Sprintf("Groups: %d (%d new)  Unmatched: %d  Undo: %d",
		len(view.MatchedGroups), newGroups, len(view.Unmatched), undoable))
	b.WriteString("\n")

	counts := aggregator.CountByRisk(risks)
	parts := make([]string, 0, len(models.RiskLevels))
	for _, level := range models.RiskLevels {
		if n := counts.Get(level); n > 0 {
			label := fmt.Sprintf("%s:%d", string(level)[:1], n)
			parts = append(parts, riskStyle(string(level)).Render(label))
		}
	}
	b.WriteString(strings.Join(parts, "  "))

	return styleHeader.Width(width).Render(b.String())
}
