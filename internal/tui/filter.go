package tui

import (
	"slices"
	"sort"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/models"
)

// filterState holds current active filters.
type filterState struct {
	SearchText string
}

// sortField enumerates the orders the groups table can use.
type sortField int

const (
	sortByOrder sortField = iota
	sortByRisk
	sortByName
)

// sortFieldCount is the total number of group orders.
const sortFieldCount = 3

// filterNames returns names containing the search text, case-insensitively.
func filterNames(names []string, f filterState) []string {
	search := strings.ToLower(f.SearchText)
	out := make([]string, 0, len(names))
	for _, n := range names {
		if search != "" && !strings.Contains(strings.ToLower(n), search) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// filterGroups keeps groups whose name or any member contains the search text.
func filterGroups(groups []models.Group, f filterState) []models.Group {
	search := strings.ToLower(f.SearchText)
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if search != "" && !groupMatches(g, search) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func groupMatches(g models.Group, searchLower string) bool {
	if strings.Contains(strings.ToLower(g.Name), searchLower) {
		return true
	}
	return slices.ContainsFunc(g.Members, func(m string) bool {
		return strings.Contains(strings.ToLower(m), searchLower)
	})
}

// riskPriority orders classified risks first, Critical highest.
func riskPriority(risk string) int {
	level, ok := aggregator.Classify(risk)
	if !ok {
		return len(models.RiskLevels)
	}
	return slices.Index(models.RiskLevels, level)
}

// sortGroups sorts a slice of groups in place. sortByOrder keeps display order.
func sortGroups(groups []models.Group, field sortField) {
	sort.SliceStable(groups, func(i, j int) bool {
		switch field {
		case sortByRisk:
			return riskPriority(groups[i].Risk) < riskPriority(groups[j].Risk)
		case sortByName:
			return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
		default:
			return false
		}
	})
}

// sortFieldName returns a human-readable name for the sort field.
func sortFieldName(f sortField) string {
	switch f {
	case sortByOrder:
		return "order"
	case sortByRisk:
		return "risk"
	case sortByName:
		return "name"
	default:
		return "unknown"
	}
}
