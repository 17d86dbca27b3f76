package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/vulnrecon/internal/differ"
)

// followUpEnv archives a first audit and opens a second session in which
// SQL Injection is gone and Clickjacking is still unmatched.
func followUpEnv(t *testing.T) (*testEnv, *backend, string) {
	t.Helper()
	env := newTestEnv(t)
	b := env.backend(t)

	first := matchSession(t, env, b)
	if err := runExport(context.Background(), &bytes.Buffer{}, b, exportOptions{SessionID: first}); err != nil {
		t.Fatalf("first export: %v", err)
	}

	env.scans = filepath.Join(env.dir, "scans2")
	writeTestFile(t, filepath.Join(env.scans, "scan.json"),
		`[{"name": "TLS 1.0", "risk": "Medium"}, {"name": "Clickjacking", "risk": "Low"}]`)
	return env, b, matchSession(t, env, b)
}

func decodeDiff(t *testing.T, out string) diffOutput {
	t.Helper()
	var d diffOutput
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode diff: %v\n%s", err, out)
	}
	return d
}

func TestRunDiffSessionAgainstArchive(t *testing.T) {
	env, b, id := followUpEnv(t)
	env.cfg.Format = "json"

	var out bytes.Buffer
	if err := runDiff(context.Background(), &out, b, diffOptions{SessionID: id}); err != nil {
		t.Fatalf("runDiff: %v", err)
	}

	d := decodeDiff(t, out.String())
	if d.Report == nil {
		t.Fatal("missing report")
	}
	if want := (differ.Counts{New: 0, Open: 1, Closed: 1}); d.Counts != want {
		t.Errorf("counts = %+v, want %+v", d.Counts, want)
	}
	if !reflect.DeepEqual(d.Closed, []string{"SQL Injection"}) {
		t.Errorf("closed = %v", d.Closed)
	}
	if d.Breakdown.Closed.High != 1 || d.Breakdown.Open.Medium != 1 {
		t.Errorf("breakdown = %+v", d.Breakdown)
	}
	if d.Policy != nil {
		t.Errorf("no policy expected, got %+v", d.Policy)
	}
	if !strings.HasPrefix(d.Previous, "archived audit of ") {
		t.Errorf("previous = %q", d.Previous)
	}
}

func TestRunDiffTextWithException(t *testing.T) {
	_, b, id := followUpEnv(t)

	var out bytes.Buffer
	err := runDiff(context.Background(), &out, b, diffOptions{SessionID: id, Exceptions: []string{"SQL Injection"}})
	if err != nil {
		t.Fatalf("runDiff: %v", err)
	}
	for _, want := range []string{"New: 0  Open: 1  Closed: 1 (1 with exception)", "SQL Injection (with exception)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("diff output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunDiffPolicy(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		explicit bool
		wantCode int
		wantText string
	}{
		{"pass", "rules:\n  max_new: 0\n", true, ExitOK, "Policy: PASS"},
		{"unmatched limit", "rules:\n  max_unmatched: 0\n", true, ExitPolicyFail, "[max_unmatched]"},
		{"forbidden open finding", "rules:\n  forbid_findings:\n    - Weak TLS\n", true, ExitPolicyFail, "[forbid_findings]"},
		{"discovered", "rules:\n  max_unmatched: 0\n", false, ExitPolicyFail, "Policy: FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, b, id := followUpEnv(t)

			opts := diffOptions{SessionID: id}
			if tt.explicit {
				opts.PolicyPath = filepath.Join(env.dir, "ci-policy.yaml")
				writeTestFile(t, opts.PolicyPath, tt.policy)
			} else {
				writeTestFile(t, filepath.Join(env.dir, ".vulnrecon-policy.yaml"), tt.policy)
			}

			var out bytes.Buffer
			err := runDiff(context.Background(), &out, b, opts)
			if code := HandleError(err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (err %v)", code, tt.wantCode, err)
			}
			if !strings.Contains(out.String(), tt.wantText) {
				t.Errorf("output missing %q:\n%s", tt.wantText, out.String())
			}
		})
	}
}

func TestRunDiffMissingPolicyFile(t *testing.T) {
	env, b, id := followUpEnv(t)
	err := runDiff(context.Background(), &bytes.Buffer{}, b, diffOptions{
		SessionID:  id,
		PolicyPath: filepath.Join(env.dir, "nope.yaml"),
	})
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("exit code = %d, want %d (err %v)", code, ExitInvalidInput, err)
	}
}

func TestRunDiffFailNew(t *testing.T) {
	env := newTestEnv(t)
	b := env.backend(t)
	id := matchSession(t, env, b)

	previous := filepath.Join(env.dir, "last.csv")
	writeTestFile(t, previous, "Name,Risk\nWeak TLS,Medium\n")

	err := runDiff(context.Background(), &bytes.Buffer{}, b, diffOptions{SessionID: id, Previous: previous, FailNew: true})
	if code := HandleError(err); code != ExitPolicyFail {
		t.Errorf("exit code = %d, want %d (err %v)", code, ExitPolicyFail, err)
	}
}

func TestRunDiffReportFiles(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Format = "json"
	b := env.backend(t)

	current := filepath.Join(env.dir, "current.csv")
	previous := filepath.Join(env.dir, "previous.json")
	writeTestFile(t, current, "Name,Risk,Status\nA,High,Open\nB,Low,New\nGone,High,Closed\n")
	writeTestFile(t, previous, `[{"name": "A", "risk": "High", "status": "New"}, {"name": "C", "risk": "Critical"}]`)

	var out bytes.Buffer
	err := runDiff(context.Background(), &out, b, diffOptions{Current: current, Previous: previous})
	if err != nil {
		t.Fatalf("runDiff: %v", err)
	}

	d := decodeDiff(t, out.String())
	if !reflect.DeepEqual(d.New, []string{"B"}) || !reflect.DeepEqual(d.Open, []string{"A"}) || !reflect.DeepEqual(d.Closed, []string{"C"}) {
		t.Errorf("new %v open %v closed %v", d.New, d.Open, d.Closed)
	}
	if d.Breakdown.Closed.Critical != 1 {
		t.Errorf("closed critical = %d, want 1", d.Breakdown.Closed.Critical)
	}
}

func TestRunDiffWithoutPrevious(t *testing.T) {
	env := newTestEnv(t)
	b := env.backend(t)
	id := matchSession(t, env, b)

	err := runDiff(context.Background(), &bytes.Buffer{}, b, diffOptions{SessionID: id})
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("exit code = %d, want %d (err %v)", code, ExitInvalidInput, err)
	}
}
