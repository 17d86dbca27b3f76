package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/differ"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/policy"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

const rule = "--------------------------------------------------\n"

// TextReporter generates human-readable text reports
type TextReporter struct {
	writer io.Writer
}

// NewTextReporter creates a new text reporter
func NewTextReporter(writer io.Writer) *TextReporter {
	return &TextReporter{
		writer: writer,
	}
}

// View renders the matched groups and the unmatched findings of a session.
func (r *TextReporter) View(sessionID string, view *reconcile.View) error {
	r.printHeader("VulnRecon Session")
	if sessionID != "" {
		r.printf("Session: %s\n\n", sessionID)
	}

	r.printf("Matched Groups (%d):\n", len(view.MatchedGroups))
	r.printf(rule)
	if len(view.MatchedGroups) == 0 {
		r.printf("  (none)\n")
	}
	for _, g := range view.MatchedGroups {
		marker := ""
		if g.Origin() == models.OriginSession {
			marker = " [new]"
		}
		r.printf("  #%d %s (%s)%s\n", g.ID, g.Name, displayRisk(g.Risk), marker)
		for _, m := range g.Members {
			r.printf("      - %s\n", m)
		}
	}

	r.printf("\nUnmatched Findings (%d):\n", len(view.Unmatched))
	r.printf(rule)
	if len(view.Unmatched) == 0 {
		r.printf("  (none)\n")
	}
	for _, name := range view.Unmatched {
		r.printf("  %s\n", name)
	}

	counts := models.RiskCounts{}
	for _, g := range view.MatchedGroups {
		if level, ok := aggregator.Classify(g.Risk); ok {
			counts.Add(level)
		}
	}
	r.printf("\n")
	r.printRiskCounts("Groups by Risk", counts)
	return nil
}

// Risk renders a four-bucket risk count.
func (r *TextReporter) Risk(counts models.RiskCounts) error {
	r.printRiskCounts("Findings by Risk", counts)
	r.printf("  Total: %d\n", counts.Total())
	return nil
}

// Diff renders a follow-up audit comparison.
func (r *TextReporter) Diff(rep *differ.Report) error {
	r.printHeader("VulnRecon Follow-up Audit")
	if rep.Previous != "" {
		r.printf("Compared With: %s\n\n", rep.Previous)
	}

	r.printf("Summary:\n")
	r.printf(rule)
	r.printf("  New: %d  Open: %d  Closed: %d", rep.Counts.New, rep.Counts.Open, rep.Counts.Closed)
	if n := len(rep.ClosedWithException); n > 0 {
		r.printf(" (%d with exception)", n)
	}
	r.printf("\n\n")

	r.printRiskCounts("New by Risk", rep.Breakdown.New)
	r.printRiskCounts("Open by Risk", rep.Breakdown.Open)
	r.printRiskCounts("Closed by Risk", rep.Breakdown.Closed)

	exceptions := make(map[string]struct{}, len(rep.ClosedWithException))
	for _, n := range rep.ClosedWithException {
		exceptions[n] = struct{}{}
	}

	r.printNames("New", rep.New, nil)
	r.printNames("Open", rep.Open, nil)
	r.printNames("Closed", rep.Closed, exceptions)
	return nil
}

// Policy renders the outcome of a policy evaluation.
func (r *TextReporter) Policy(result *policy.Result) error {
	if result.Pass {
		r.printf("Policy: PASS\n")
		return nil
	}
	r.printf("Policy: FAIL (%d violation(s))\n", len(result.Violations))
	for _, v := range result.Violations {
		r.printf("  [%s] %s\n", v.Rule, v.Message)
	}
	return nil
}

// Sessions renders a session listing.
func (r *TextReporter) Sessions(list []storage.Summary) error {
	if len(list) == 0 {
		r.printf("No stored sessions.\n")
		return nil
	}
	r.printf("%-36s  %-19s  %6s  %9s  %4s\n", "ID", "UPDATED", "GROUPS", "UNMATCHED", "UNDO")
	for _, s := range list {
		r.printf("%-36s  %-19s  %6d  %9d  %4d\n",
			s.ID, formatTimestamp(s.UpdatedAt), s.Groups, s.Unmatched, s.Undoable)
	}
	return nil
}

func (r *TextReporter) printHeader(title string) {
	r.printf("╔════════════════════════════════════════════╗\n")
	r.printf("║ %-42s ║\n", title)
	r.printf("╚════════════════════════════════════════════╝\n\n")
}

func (r *TextReporter) printRiskCounts(title string, counts models.RiskCounts) {
	r.printf("%s:\n", title)
	for _, level := range models.RiskLevels {
		r.printf("  %-8s %d\n", string(level)+":", counts.Get(level))
	}
	r.printf("\n")
}

func (r *TextReporter) printNames(title string, names []string, exceptions map[string]struct{}) {
	if len(names) == 0 {
		return
	}
	r.printf("%s (%d):\n", title, len(names))
	r.printf(rule)
	for _, n := range names {
		if _, ok := exceptions[n]; ok {
			r.printf("  %s (with exception)\n", n)
			continue
		}
		r.printf("  %s\n", n)
	}
	r.printf("\n")
}

// printf is a helper to write formatted output
func (r *TextReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format, args...)
}

func displayRisk(risk string) string {
	if level, ok := aggregator.Classify(risk); ok {
		return string(level)
	}
	if strings.TrimSpace(risk) == "" {
		return "unrated"
	}
	return risk
}

// formatTimestamp formats a timestamp for display
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
