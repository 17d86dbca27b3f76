package validator

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/collector"
	"github.com/ppiankov/vulnrecon/internal/models"
)

// ValidationError represents a validation failure
type ValidationError struct {
	Source string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid %s:\n  - %s", e.Source, strings.Join(e.Errors, "\n  - "))
}

// Validator checks catalogs, scan exports and earlier audit reports
type Validator struct{}

// New creates a new validator
func New() *Validator {
	return &Validator{}
}

// informational risk labels are skipped by risk counting on purpose
var informational = map[string]bool{
	"none": true, "info": true, "informational": true,
}

// ValidateCatalogFile loads and validates the catalog at path.
func (v *Validator) ValidateCatalogFile(path string) error {
	groups, err := catalog.Load(path)
	if err != nil {
		return &ValidationError{
			Source: "catalog " + path,
			Errors: []string{fmt.Sprintf("Failed to load catalog: %v", err)},
		}
	}
	if err := v.ValidateCatalog(groups); err != nil {
		err.(*ValidationError).Source = "catalog " + path
		return err
	}
	return nil
}

// ValidateCatalog checks loaded catalog groups. A member line claimed by an
// earlier group can never match the later one, so it is reported.
func (v *Validator) ValidateCatalog(groups []models.CatalogGroup) error {
	var errors []string

	owner := make(map[string]int)
	for _, g := range groups {
		if strings.TrimSpace(g.Name) == "" {
			errors = append(errors, fmt.Sprintf("Group #%d has no name", g.ID))
		}
		if _, ok := aggregator.Classify(g.Risk); !ok {
			errors = append(errors, fmt.Sprintf("Group #%d has invalid risk: '%s'", g.ID, g.Risk))
		}

		lines := 0
		for _, member := range g.Members {
			for _, line := range strings.Split(member, "\n") {
				key := strings.ToLower(strings.TrimSpace(line))
				if key == "" {
					continue
				}
				lines++
				if prev, dup := owner[key]; dup && prev != g.ID {
					errors = append(errors, fmt.Sprintf("Member '%s' of group #%d is shadowed by group #%d", strings.TrimSpace(line), g.ID, prev))
					continue
				}
				owner[key] = g.ID
			}
		}
		if lines == 0 {
			errors = append(errors, fmt.Sprintf("Group #%d has no members", g.ID))
		}
	}

	if len(errors) > 0 {
		return &ValidationError{Source: "catalog", Errors: errors}
	}
	return nil
}

// ValidateScanFile parses one scanner export and validates its findings.
func (v *Validator) ValidateScanFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	source := "scan export " + path
	format, err := collector.DetectFormat(path, data)
	if err != nil {
		return &ValidationError{Source: source, Errors: []string{err.Error()}}
	}
	findings, err := collector.ParseFindings(data, format)
	if err != nil {
		return &ValidationError{
			Source: source,
			Errors: []string{fmt.Sprintf("Failed to parse %s: %v", format, err)},
		}
	}

	if err := v.ValidateFindings(findings); err != nil {
		err.(*ValidationError).Source = source
		return err
	}
	return nil
}

// ValidateFindings rejects an export with no named findings and reports risk
// labels that would be dropped from risk counts.
func (v *Validator) ValidateFindings(findings []models.Finding) error {
	if len(findings) == 0 {
		return &ValidationError{Source: "findings", Errors: []string{"No findings with a name"}}
	}

	var errors []string
	reported := make(map[string]bool)
	for _, f := range findings {
		risk := strings.TrimSpace(f.Risk)
		if risk == "" || informational[strings.ToLower(risk)] || reported[risk] {
			continue
		}
		if _, ok := aggregator.Classify(risk); !ok {
			reported[risk] = true
			errors = append(errors, fmt.Sprintf("Finding '%s' has invalid risk: '%s'", f.Name, risk))
		}
	}

	if len(errors) > 0 {
		return &ValidationError{Source: "findings", Errors: errors}
	}
	return nil
}

// ValidatePreviousFile checks an earlier audit artifact before it is used
// as the baseline of a follow-up audit.
func (v *Validator) ValidatePreviousFile(path string) error {
	source := "previous audit " + path
	rows, err := collector.LoadPreviousAudit(path)
	if err != nil {
		return &ValidationError{Source: source, Errors: []string{err.Error()}}
	}

	var errors []string
	if len(rows) == 0 {
		errors = append(errors, "No rows")
	}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		switch r.Status {
		case "", models.StatusNew, models.StatusOpen, models.StatusClosed, models.StatusClosedWithException:
		default:
			errors = append(errors, fmt.Sprintf("Row '%s' has invalid status: '%s'", r.Name, r.Status))
		}
		if seen[r.Name] {
			errors = append(errors, fmt.Sprintf("Row '%s' appears more than once", r.Name))
		}
		seen[r.Name] = true
	}

	if len(errors) > 0 {
		return &ValidationError{Source: source, Errors: errors}
	}
	return nil
}

// ValidateTimestamp checks if a report timestamp is reasonable (not in future, not too old)
func ValidateTimestamp(t time.Time) error {
	now := time.Now()

	// Not in future
	if t.After(now.Add(1 * time.Hour)) {
		return fmt.Errorf("timestamp is in the future: %v", t)
	}

	// Not older than 1 year
	oneYearAgo := now.AddDate(-1, 0, 0)
	if t.Before(oneYearAgo) {
		return fmt.Errorf("timestamp is too old (> 1 year): %v", t)
	}

	return nil
}
