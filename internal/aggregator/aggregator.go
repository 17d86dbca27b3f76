package aggregator

import (
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// Classify maps free-form risk text to a canonical level.
// The second return value is false when the text matches no rule.
func Classify(text string) (models.RiskLevel, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	if normalized == "" {
		return "", false
	}

	// Exact match first
	switch normalized {
	case "CRITICAL":
		return models.RiskCritical, true
	case "HIGH":
		return models.RiskHigh, true
	case "MEDIUM":
		return models.RiskMedium, true
	case "LOW":
		return models.RiskLow, true
	}

	// Substring fallback in strict priority order. Text mentioning HIGH can
	// only ever be High; compound strings like "High Medium Risk" are dropped.
	switch {
	case strings.Contains(normalized, "CRITICAL"):
		return models.RiskCritical, true
	case strings.Contains(normalized, "HIGH"):
		if strings.Contains(normalized, "MEDIUM") || strings.Contains(normalized, "LOW") {
			return "", false
		}
		return models.RiskHigh, true
	case strings.Contains(normalized, "MEDIUM"):
		return models.RiskMedium, true
	case strings.Contains(normalized, "LOW"):
		return models.RiskLow, true
	}

	return "", false
}

// CountByRisk counts risk texts into the four buckets.
// Unclassifiable text is silently excluded.
func CountByRisk(risks []string) models.RiskCounts {
	var counts models.RiskCounts
	for _, r := range risks {
		if level, ok := Classify(r); ok {
			counts.Add(level)
		}
	}
	return counts
}

// CountFindings counts raw findings by their risk text.
func CountFindings(findings []models.Finding) models.RiskCounts {
	risks := make([]string, 0, len(findings))
	for _, f := range findings {
		risks = append(risks, f.Risk)
	}
	return CountByRisk(risks)
}

// CountRows counts finalized report rows by group risk.
func CountRows(rows []models.ReportRow) models.RiskCounts {
	risks := make([]string, 0, len(rows))
	for _, r := range rows {
		risks = append(risks, r.Risk)
	}
	return CountByRisk(risks)
}

// StatusBreakdown holds per-status risk counts for summary reporting
type StatusBreakdown struct {
	New    models.RiskCounts `json:"new"`
	Open   models.RiskCounts `json:"open"`
	Closed models.RiskCounts `json:"closed"`
	// ClosedWithException is a display-only subset of Closed
	ClosedWithException models.RiskCounts `json:"closed_with_exception"`
}

// BreakdownByStatus counts labelled names per status and risk bucket.
// risks maps a name to its risk text; names without a classifiable risk are
// skipped, as are names labelled Unknown.
func BreakdownByStatus(labels map[string]models.AuditStatus, risks map[string]string) StatusBreakdown {
	var b StatusBreakdown
	for name, status := range labels {
		level, ok := Classify(risks[name])
		if !ok {
			continue
		}
		switch status {
		case models.StatusNew:
			b.New.Add(level)
		case models.StatusOpen:
			b.Open.Add(level)
		case models.StatusClosed:
			b.Closed.Add(level)
		case models.StatusClosedWithException:
			b.Closed.Add(level)
			b.ClosedWithException.Add(level)
		}
	}
	return b
}
