package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// exportHeader is read back by collector.LoadPreviousAudit
var exportHeader = []string{
	"Group ID", "Name", "Risk", "Status", "CVE", "CVSS",
	"Observation", "Impact", "Recommendation", "Reference", "Members",
}

// ExportCSV writes status-labelled rows as the audit artifact used by the
// next follow-up diff. Members are newline-separated inside one cell.
func ExportCSV(w io.Writer, rows []models.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range rows {
		var d models.Details
		if row.Details != nil {
			d = *row.Details
		}
		id := ""
		if row.GroupID != 0 {
			id = strconv.Itoa(row.GroupID)
		}
		rec := []string{
			id, row.Name, row.Risk, string(row.Status), d.CVE, d.CVSS,
			d.Observation, d.Impact, d.Recommendation, d.Reference,
			strings.Join(row.Members, "\n"),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write row %q: %w", row.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportJSON writes rows as a JSON array.
func ExportJSON(w io.Writer, rows []models.ReportRow) error {
	if rows == nil {
		rows = []models.ReportRow{}
	}
	return NewJSONReporter(w, true).Generate(rows)
}

// Export writes rows in the named format.
func Export(w io.Writer, rows []models.ReportRow, format string) error {
	switch format {
	case "csv":
		return ExportCSV(w, rows)
	case "json":
		return ExportJSON(w, rows)
	default:
		return fmt.Errorf("unsupported export format %q (expected csv or json)", format)
	}
}
