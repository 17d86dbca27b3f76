package differ

import (
	"sort"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/models"
)

// Report is the renderable outcome of a follow-up audit comparison.
type Report struct {
	Previous            string                        `json:"previous,omitempty"`
	Counts              Counts                        `json:"counts"`
	Breakdown           aggregator.StatusBreakdown    `json:"breakdown"`
	New                 []string                      `json:"new"`
	Open                []string                      `json:"open"`
	Closed              []string                      `json:"closed"`
	ClosedWithException []string                      `json:"closed_with_exception"`
	Labels              map[string]models.AuditStatus `json:"-"`
}

// NewReport applies exceptions to r and counts every status by risk.
// Exception names stay in Closed and are also listed separately.
func NewReport(r *Result, exceptions []string, risks map[string]string) *Report {
	labels := ApplyExceptions(r, exceptions)

	cwe := []string{}
	for name, s := range labels {
		if s == models.StatusClosedWithException {
			cwe = append(cwe, name)
		}
	}
	sort.Strings(cwe)

	return &Report{
		Counts:              r.Counts(),
		Breakdown:           Summarize(labels, risks),
		New:                 r.New,
		Open:                r.Open,
		Closed:              r.Closed,
		ClosedWithException: cwe,
		Labels:              labels,
	}
}

// LabelRows sets Status on each row from the diff result.
func LabelRows(r *Result, rows []models.ReportRow, exceptions []string) []models.ReportRow {
	labels := ApplyExceptions(r, exceptions)
	out := make([]models.ReportRow, len(rows))
	for i, row := range rows {
		if s, ok := labels[row.Name]; ok {
			row.Status = s
		} else {
			row.Status = r.Label(row.Name)
		}
		out[i] = row
	}
	return out
}

// ClosedRows builds rows for names that were in the previous audit only, so
// an export still lists what was fixed.
func ClosedRows(r *Result, previous []models.PreviousFinding, exceptions []string) []models.ReportRow {
	labels := ApplyExceptions(r, exceptions)
	seen := make(map[string]struct{})
	var rows []models.ReportRow
	for _, p := range previous {
		s := labels[p.Name]
		if !s.IsClosed() {
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		rows = append(rows, models.ReportRow{Name: p.Name, Risk: p.Risk, Status: s})
	}
	return rows
}
