package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// LoadPreviousAudit reads the rows of a prior audit artifact. Accepted
// inputs are the JSON and CSV files written by the export command and the
// archived report JSON kept in the storage directory.
func LoadPreviousAudit(path string) ([]models.PreviousFinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous audit: %w", err)
	}

	format, err := DetectFormat(path, data)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return parsePreviousJSON(data)
	case FormatCSV:
		return parsePreviousCSV(data)
	default:
		return nil, fmt.Errorf("unsupported previous audit format: %s", path)
	}
}

// PreviousFromReport converts an archived report into previous-audit rows.
func PreviousFromReport(r *models.AuditReport) []models.PreviousFinding {
	rows := make([]models.PreviousFinding, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, models.PreviousFinding{Name: row.Name, Risk: row.Risk, Status: row.Status})
	}
	return rows
}

// PreviousNames returns the names of the rows.
func PreviousNames(rows []models.PreviousFinding) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	return names
}

func parsePreviousJSON(data []byte) ([]models.PreviousFinding, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))

	if len(data) > 0 && data[0] == '[' {
		var rows []models.ReportRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse previous audit JSON: %w", err)
		}
		return PreviousFromReport(&models.AuditReport{Rows: rows}), nil
	}

	var report models.AuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse previous audit JSON: %w", err)
	}
	return PreviousFromReport(&report), nil
}

func parsePreviousCSV(data []byte) ([]models.PreviousFinding, error) {
	records, cols, err := readCSV(data)
	if err != nil {
		return nil, err
	}

	nameCol := cols.find(nameHeaders)
	if nameCol < 0 {
		return nil, fmt.Errorf("missing name column (expected one of: %s)", strings.Join(nameHeaders, ", "))
	}
	riskCol := cols.find(riskHeaders)
	statusCol := cols.find(statusHeaders)

	rows := make([]models.PreviousFinding, 0, len(records))
	for _, rec := range records {
		name := field(rec, nameCol)
		if name == "" {
			continue
		}
		row := models.PreviousFinding{Name: name, Risk: field(rec, riskCol)}
		if statusCol >= 0 {
			row.Status = models.ParseAuditStatus(field(rec, statusCol))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
