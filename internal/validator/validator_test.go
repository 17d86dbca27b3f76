package validator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/vulnrecon/internal/models"
)

func containsError(errs []string, substr string) bool {
	for _, err := range errs {
		if strings.Contains(err, substr) {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func asValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	return ve
}

func TestValidateCatalog(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		groups   []models.CatalogGroup
		wantErrs []string
	}{
		{
			name: "valid",
			groups: []models.CatalogGroup{
				{ID: 1, Name: "SQL Injection", Risk: "High", Members: []string{"SQL Injection", "SQLi"}},
				{ID: 2, Name: "Weak TLS", Risk: "Medium Risk", Members: []string{"TLS 1.0\nTLS 1.1"}},
			},
		},
		{
			name:     "missing name",
			groups:   []models.CatalogGroup{{ID: 4, Risk: "Low", Members: []string{"x"}}},
			wantErrs: []string{"Group #4 has no name"},
		},
		{
			name:     "invalid risk",
			groups:   []models.CatalogGroup{{ID: 1, Name: "A", Risk: "High Medium", Members: []string{"x"}}},
			wantErrs: []string{"Group #1 has invalid risk: 'High Medium'"},
		},
		{
			name:     "no members",
			groups:   []models.CatalogGroup{{ID: 2, Name: "A", Risk: "Low", Members: []string{"", " \n "}}},
			wantErrs: []string{"Group #2 has no members"},
		},
		{
			name: "shadowed member",
			groups: []models.CatalogGroup{
				{ID: 1, Name: "A", Risk: "High", Members: []string{"SQLi"}},
				{ID: 2, Name: "B", Risk: "High", Members: []string{"Blind SQLi\nsqli"}},
			},
			wantErrs: []string{"Member 'sqli' of group #2 is shadowed by group #1"},
		},
		{
			name: "several problems",
			groups: []models.CatalogGroup{
				{ID: 1, Risk: "unknown"},
			},
			wantErrs: []string{"has no name", "invalid risk", "has no members"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCatalog(tt.groups)
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("ValidateCatalog() error = %v", err)
				}
				return
			}
			ve := asValidationError(t, err)
			if len(ve.Errors) != len(tt.wantErrs) {
				t.Errorf("errors = %v, want %d", ve.Errors, len(tt.wantErrs))
			}
			for _, want := range tt.wantErrs {
				if !containsError(ve.Errors, want) {
					t.Errorf("errors %v missing %q", ve.Errors, want)
				}
			}
		})
	}
}

func TestValidateCatalogFile(t *testing.T) {
	v := New()

	valid := writeFile(t, "catalog.yaml", "groups:\n  - name: A\n    risk: High\n    members: [a]\n")
	if err := v.ValidateCatalogFile(valid); err != nil {
		t.Errorf("valid catalog: %v", err)
	}

	broken := writeFile(t, "catalog.yaml", "groups: [")
	ve := asValidationError(t, v.ValidateCatalogFile(broken))
	if !strings.Contains(ve.Source, broken) || !containsError(ve.Errors, "Failed to load catalog") {
		t.Errorf("broken catalog error = %+v", ve)
	}

	invalid := writeFile(t, "catalog.csv", "name,risk,members\nA,Severe,a\n")
	ve = asValidationError(t, v.ValidateCatalogFile(invalid))
	if ve.Source != "catalog "+invalid || !containsError(ve.Errors, "invalid risk: 'Severe'") {
		t.Errorf("invalid catalog error = %+v", ve)
	}
}

func TestValidateFindings(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		findings []models.Finding
		wantErrs []string
	}{
		{
			name: "valid",
			findings: []models.Finding{
				{Name: "SQLi", Risk: "High"},
				{Name: "Banner", Risk: "None"},
				{Name: "Cookie", Risk: "Info"},
				{Name: "Unrated"},
			},
		},
		{
			name:     "empty",
			wantErrs: []string{"No findings with a name"},
		},
		{
			name: "bad risk reported once",
			findings: []models.Finding{
				{Name: "A", Risk: "Severe"},
				{Name: "B", Risk: "Severe"},
				{Name: "C", Risk: "High/Low"},
			},
			wantErrs: []string{"Finding 'A' has invalid risk: 'Severe'", "Finding 'C' has invalid risk: 'High/Low'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateFindings(tt.findings)
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("ValidateFindings() error = %v", err)
				}
				return
			}
			ve := asValidationError(t, err)
			if len(ve.Errors) != len(tt.wantErrs) {
				t.Errorf("errors = %v, want %d", ve.Errors, len(tt.wantErrs))
			}
			for _, want := range tt.wantErrs {
				if !containsError(ve.Errors, want) {
					t.Errorf("errors %v missing %q", ve.Errors, want)
				}
			}
		})
	}
}

func TestValidateScanFile(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"json", "scan.json", `[{"name": "SQLi", "risk": "High"}]`, ""},
		{"csv", "scan.csv", "Plugin Name,Risk Factor\nSSLv3,Medium\n", ""},
		{"unparseable json", "scan.json", `[{"name": `, "Failed to parse json"},
		{"csv without name column", "scan.csv", "Host,Risk\n10.0.0.1,High\n", "Failed to parse csv"},
		{"unknown format", "scan.txt", "just text", "unrecognized format"},
		{"invalid risk", "scan.json", `[{"name": "SQLi", "risk": "Bad"}]`, "invalid risk: 'Bad'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			err := v.ValidateScanFile(path)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateScanFile() error = %v", err)
				}
				return
			}
			ve := asValidationError(t, err)
			if ve.Source != "scan export "+path {
				t.Errorf("Source = %q", ve.Source)
			}
			if !containsError(ve.Errors, tt.wantErr) {
				t.Errorf("errors %v missing %q", ve.Errors, tt.wantErr)
			}
		})
	}

	if err := v.ValidateScanFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should fail")
	} else if errors.As(err, new(*ValidationError)) {
		t.Errorf("missing file should be a read error, got %v", err)
	}
}

func TestValidatePreviousFile(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		file     string
		content  string
		wantErrs []string
	}{
		{"csv export", "audit.csv", "Name,Risk,Status\nA,High,New\nB,Low,Closed With Exception\n", nil},
		{"json rows", "audit.json", `[{"name": "A", "risk": "High", "status": "Open"}, {"name": "B"}]`, nil},
		{"archived report", "report.json", `{"timestamp": "2026-01-02T00:00:00Z", "rows": [{"name": "A", "risk": "High"}]}`, nil},
		{"bad json status", "audit.json", `[{"name": "A", "status": "Fixed"}]`, []string{"Row 'A' has invalid status: 'Fixed'"}},
		{"bad csv status", "audit.csv", "Name,Status\nA,Pending\n", []string{"Row 'A' has invalid status: 'Unknown'"}},
		{"duplicate", "audit.csv", "Name\nA\nA\n", []string{"Row 'A' appears more than once"}},
		{"no rows", "audit.json", `[]`, []string{"No rows"}},
		{"not a report", "audit.json", `{"rows": 5}`, []string{"failed to parse previous audit JSON"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			err := v.ValidatePreviousFile(path)
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("ValidatePreviousFile() error = %v", err)
				}
				return
			}
			ve := asValidationError(t, err)
			for _, want := range tt.wantErrs {
				if !containsError(ve.Errors, want) {
					t.Errorf("errors %v missing %q", ve.Errors, want)
				}
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Source: "catalog c.yaml", Errors: []string{"first", "second"}}
	want := "Invalid catalog c.yaml:\n  - first\n  - second"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidateTimestamp(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		ts      time.Time
		wantErr bool
	}{
		{"now", now, false},
		{"last month", now.AddDate(0, -1, 0), false},
		{"future", now.Add(2 * time.Hour), true},
		{"too old", now.AddDate(-2, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTimestamp(tt.ts)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
