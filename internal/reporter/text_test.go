package reporter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/vulnrecon/internal/differ"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/policy"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

func sampleView() *reconcile.View {
	return &reconcile.View{
		MatchedGroups: []models.Group{
			{ID: 3, Name: "SQL Injection", Risk: "High", Members: []string{"SQLi"}},
			{ID: -2, Name: "Weak Ciphers", Risk: "medium risk", Members: []string{"Weak Cipher A", "Weak Cipher B"}},
		},
		Unmatched: []string{"Clickjacking"},
	}
}

func wantLines(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestTextView(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextReporter(&buf).View("abc", sampleView()); err != nil {
		t.Fatalf("View: %v", err)
	}

	wantLines(t, buf.String(),
		"Session: abc",
		"#3 SQL Injection (High)",
		"#-2 Weak Ciphers (Medium) [new]",
		"      - Weak Cipher B",
		"Unmatched Findings (1):",
		"  High:    1",
		"  Medium:  1",
	)
}

func TestTextViewEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextReporter(&buf).View("", &reconcile.View{}); err != nil {
		t.Fatalf("View: %v", err)
	}
	out := buf.String()
	if n := strings.Count(out, "(none)"); n != 2 {
		t.Errorf("expected 2 empty sections, got %d\n%s", n, out)
	}
	if strings.Contains(out, "Session:") {
		t.Errorf("session header without a session id:\n%s", out)
	}
}

func TestTextRisk(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextReporter(&buf).Risk(models.RiskCounts{Critical: 2, Low: 1}); err != nil {
		t.Fatalf("Risk: %v", err)
	}

	wantLines(t, buf.String(), "  Critical: 2", "  High:    0", "  Total: 3")
}

func TestTextDiff(t *testing.T) {
	r := differ.Diff([]string{"Y", "Z"}, []string{"X", "Y"})
	rep := differ.NewReport(r, []string{"X"}, map[string]string{"X": "High", "Y": "Low", "Z": "Critical"})
	rep.Previous = "prev.csv"

	var buf bytes.Buffer
	if err := NewTextReporter(&buf).Diff(rep); err != nil {
		t.Fatalf("Diff: %v", err)
	}

	wantLines(t, buf.String(),
		"Compared With: prev.csv",
		"New: 1  Open: 1  Closed: 1 (1 with exception)",
		"  X (with exception)",
		"New (1):",
	)
}

func TestTextPolicy(t *testing.T) {
	var buf bytes.Buffer
	rep := NewTextReporter(&buf)

	if err := rep.Policy(&policy.Result{Pass: true}); err != nil {
		t.Fatal(err)
	}
	if err := rep.Policy(&policy.Result{Violations: []policy.Violation{{Rule: "max_new", Message: "too many"}}}); err != nil {
		t.Fatal(err)
	}

	wantLines(t, buf.String(), "Policy: PASS", "Policy: FAIL (1 violation(s))", "[max_new] too many")
}

func TestTextSessions(t *testing.T) {
	var buf bytes.Buffer
	rep := NewTextReporter(&buf)

	if err := rep.Sessions(nil); err != nil {
		t.Fatal(err)
	}
	wantLines(t, buf.String(), "No stored sessions.")

	buf.Reset()
	err := rep.Sessions([]storage.Summary{{
		ID:        "abc",
		UpdatedAt: time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC),
		Groups:    2,
		Unmatched: 5,
	}})
	if err != nil {
		t.Fatal(err)
	}
	wantLines(t, buf.String(), "abc", "2026-02-15 10:00:00")
}
