package collector

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/vulnrecon/internal/models"
)

// Header aliases accepted in CSV exports, compared case-insensitively.
// Nessus exports use "Plugin Name" and "Risk Factor".
var (
	nameHeaders   = []string{"name", "plugin name", "vulnerability", "title"}
	riskHeaders   = []string{"risk", "risk factor", "severity"}
	hostHeaders   = []string{"host", "hostname", "ip"}
	branchHeaders = []string{"branch"}
	statusHeaders = []string{"status"}
)

// ParseFindings decodes a scan export in the given format.
// Rows without a name are skipped.
func ParseFindings(data []byte, format Format) ([]models.Finding, error) {
	switch format {
	case FormatJSON:
		return ParseFindingsJSON(data)
	case FormatCSV:
		return ParseFindingsCSV(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ParseFindingsJSON accepts either a bare array of findings or an object
// with a "findings" array.
func ParseFindingsJSON(data []byte) ([]models.Finding, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var findings []models.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		var wrapped struct {
			Findings []models.Finding `json:"findings"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse findings JSON: %w", err)
		}
		findings = wrapped.Findings
	}

	out := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			continue
		}
		f.Risk = strings.TrimSpace(f.Risk)
		out = append(out, f)
	}
	return out, nil
}

// ParseFindingsCSV reads a CSV export whose header names the columns.
// Only the name column is required.
func ParseFindingsCSV(data []byte) ([]models.Finding, error) {
	records, cols, err := readCSV(data)
	if err != nil {
		return nil, err
	}

	nameCol := cols.find(nameHeaders)
	if nameCol < 0 {
		return nil, fmt.Errorf("missing name column (expected one of: %s)", strings.Join(nameHeaders, ", "))
	}
	riskCol := cols.find(riskHeaders)
	hostCol := cols.find(hostHeaders)
	branchCol := cols.find(branchHeaders)

	findings := make([]models.Finding, 0, len(records))
	for _, rec := range records {
		name := field(rec, nameCol)
		if name == "" {
			continue
		}
		findings = append(findings, models.Finding{
			Name:   name,
			Risk:   field(rec, riskCol),
			Host:   field(rec, hostCol),
			Branch: field(rec, branchCol),
		})
	}
	return findings, nil
}

// UniqueNames returns finding names in first-seen order, without duplicates.
func UniqueNames(findings []models.Finding) []string {
	seen := make(map[string]struct{}, len(findings))
	names := make([]string, 0, len(findings))
	for _, f := range findings {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		names = append(names, f.Name)
	}
	return names
}

// RiskByName maps each finding name to the risk text first seen for it.
func RiskByName(findings []models.Finding) map[string]string {
	risks := make(map[string]string, len(findings))
	for _, f := range findings {
		if _, ok := risks[f.Name]; !ok {
			risks[f.Name] = f.Risk
		}
	}
	return risks
}

type columns map[string]int

func (c columns) find(aliases []string) int {
	for _, a := range aliases {
		if i, ok := c[a]; ok {
			return i
		}
	}
	return -1
}

// readCSV returns the data rows and a lower-cased header index.
func readCSV(data []byte) ([][]string, columns, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("empty CSV file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(columns, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	return records, cols, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
