package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/models"
)

// Risk colors
var (
	colorCritical = lipgloss.Color("#FF0000")
	colorHigh     = lipgloss.Color("#FF8800")
	colorMedium   = lipgloss.Color("#FFFF00")
	colorLow      = lipgloss.Color("#00FF00")
	colorMuted    = lipgloss.Color("#888888")
	colorAccent   = lipgloss.Color("#7B68EE")
	colorBorder   = lipgloss.Color("#444444")
	colorError    = lipgloss.Color("#FF5555")
)

// Panel styles
var (
	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	styleDetailPanel = lipgloss.NewStyle().
				Padding(0, 1).
				BorderStyle(lipgloss.NormalBorder()).
				BorderTop(true).
				BorderForeground(colorBorder)

	styleFooter = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	styleSearchPrompt = lipgloss.NewStyle().
				Foreground(colorAccent).Bold(true)

	stylePaneTitle = lipgloss.NewStyle().Bold(true)

	stylePaneTitleActive = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorAccent).
				Underline(true)

	styleError = lipgloss.NewStyle().Foreground(colorError).Bold(true)

	styleFormLabel = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
)

// riskStyle returns the lipgloss style for free-form risk text.
func riskStyle(risk string) lipgloss.Style {
	level, _ := aggregator.Classify(risk)
	switch level {
	case models.RiskCritical:
		return lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
	case models.RiskHigh:
		return lipgloss.NewStyle().Foreground(colorHigh).Bold(true)
	case models.RiskMedium:
		return lipgloss.NewStyle().Foreground(colorMedium)
	case models.RiskLow:
		return lipgloss.NewStyle().Foreground(colorLow)
	default:
		return lipgloss.NewStyle()
	}
}
