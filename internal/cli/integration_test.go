package cli

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/vulnrecon/internal/api"
	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/collector"
	"github.com/ppiankov/vulnrecon/internal/differ"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/session"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

var newGroupArgs = []string{
	"--name", "Weak Protocols", "--risk", "Medium",
	"--observation", "Legacy protocols enabled", "--impact", "Traffic interception",
	"--recommendation", "Disable them",
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("vulnrecon %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestAuditLifecycle(t *testing.T) {
	env := newTestEnv(t)
	conf := []string{"--config", env.configPath}

	out := mustRun(t, append(conf, "--format", "json", "match", env.scans)...)
	var v viewOutput
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode match output: %v\n%s", err, out)
	}
	if v.SessionID == "" || len(v.MatchedGroups) != 2 || len(v.Unmatched) != 3 {
		t.Fatalf("match output = %+v", v)
	}

	mergeArgs := append(append(conf, "merge", "new", "SSLv3", "Clickjacking"), newGroupArgs...)
	out = mustRun(t, mergeArgs...)
	if !strings.Contains(out, "#-1 Weak Protocols") || !strings.Contains(out, "Undo available: 1") {
		t.Errorf("merge output:\n%s", out)
	}

	out = mustRun(t, append(conf, "undo")...)
	if !strings.Contains(out, "Undo available: 0") || strings.Contains(out, "Weak Protocols") {
		t.Errorf("undo output:\n%s", out)
	}

	out, err := runCLI(t, append(conf, "undo")...)
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("undo on empty log: exit %d (err %v)\n%s", code, err, out)
	}

	mustRun(t, mergeArgs...)
	mustRun(t, append(conf, "merge", "matched", "Blind SQLi", "--group", "3")...)

	out = mustRun(t, append(conf, "catalog", "append")...)
	if !strings.Contains(out, "Added #6 Weak Protocols (2 member(s))") {
		t.Errorf("catalog append output:\n%s", out)
	}

	report := filepath.Join(env.dir, "audit-1.csv")
	mustRun(t, append(conf, "export", "-o", report)...)
	rows, err := collector.LoadPreviousAudit(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("report rows = %+v", rows)
	}

	out = mustRun(t, append(conf, "sessions", "list")...)
	if !strings.Contains(out, "No stored sessions") {
		t.Errorf("session survived export:\n%s", out)
	}

	// Follow-up audit: SQL injection fixed, the new catalog group matches.
	scans2 := filepath.Join(env.dir, "scans2")
	writeTestFile(t, filepath.Join(scans2, "scan.csv"), "Name,Risk\nTLS 1.0,Medium\nClickjacking,Low\n")
	mustRun(t, append(conf, "match", scans2)...)

	out = mustRun(t, append(conf, "-f", "json", "diff")...)
	var d diffOutput
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode diff: %v\n%s", err, out)
	}
	if want := (differ.Counts{New: 0, Open: 2, Closed: 1}); d.Counts != want {
		t.Errorf("diff counts = %+v, want %+v", d.Counts, want)
	}

	policyPath := filepath.Join(env.dir, "policy.yaml")
	writeTestFile(t, policyPath, "rules:\n  forbid_findings:\n    - Weak TLS\n")
	_, err = runCLI(t, append(conf, "diff", "--policy", policyPath)...)
	if code := HandleError(err); code != ExitPolicyFail {
		t.Errorf("policy diff exit = %d (err %v)", code, err)
	}
}

func TestRemoteCuration(t *testing.T) {
	env := newTestEnv(t)

	store, err := storage.Open("json", filepath.Join(env.dir, "server-store"))
	if err != nil {
		t.Fatalf("open server store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewManager(store, env.cfg.Limits())
	srv := httptest.NewServer(api.NewServer(manager, api.Config{CatalogPath: env.catalog, RateLimit: 1000}).Handler())
	t.Cleanup(srv.Close)

	conf := []string{"--config", env.configPath, "--server", srv.URL}

	out := mustRun(t, append(conf, "-f", "json", "match", env.scans)...)
	var v viewOutput
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode match output: %v\n%s", err, out)
	}
	if len(v.MatchedGroups) != 2 || len(v.Unmatched) != 3 {
		t.Fatalf("remote match = %+v", v)
	}

	list, err := manager.List(t.Context())
	if err != nil || len(list) != 1 || list[0].ID != v.SessionID {
		t.Fatalf("server sessions = %+v, err %v", list, err)
	}

	mustRun(t, append(append(conf, "merge", "new", "SSLv3"), newGroupArgs...)...)
	out = mustRun(t, append(conf, "show")...)
	if !strings.Contains(out, "Weak Protocols") {
		t.Errorf("remote show:\n%s", out)
	}

	_, err = runCLI(t, append(conf, "merge", "matched", "Nope", "--group", "3")...)
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("unknown finding over the wire: exit %d (err %v)", code, err)
	}

	report := filepath.Join(env.dir, "remote.json")
	mustRun(t, append(conf, "export", "-o", report)...)
	rows, err := collector.LoadPreviousAudit(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("remote report rows = %+v", rows)
	}
	for _, r := range rows {
		if r.Status != models.StatusNew {
			t.Errorf("%s status = %q, want New", r.Name, r.Status)
		}
	}

	// The server archived the audit and the local store was never touched.
	if _, err := manager.LatestReport(t.Context()); err != nil {
		t.Errorf("server did not archive the report: %v", err)
	}
	if groups, err := catalog.Load(env.catalog); err != nil || len(groups) != 2 {
		t.Errorf("catalog changed: %d groups, err %v", len(groups), err)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "store")); !os.IsNotExist(err) {
		t.Errorf("local store used in remote mode: %v", err)
	}

	// Follow-up audit of the same scan: the server's archive is the baseline.
	mustRun(t, append(conf, "match", env.scans)...)

	out = mustRun(t, append(conf, "-f", "json", "diff")...)
	var d diffOutput
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode diff: %v\n%s", err, out)
	}
	if want := (differ.Counts{New: 0, Open: 2, Closed: 1}); d.Counts != want {
		t.Errorf("remote diff counts = %+v, want %+v", d.Counts, want)
	}

	followUp := filepath.Join(env.dir, "remote-2.json")
	mustRun(t, append(conf, "export", "-o", followUp)...)
	rows, err = collector.LoadPreviousAudit(followUp)
	if err != nil {
		t.Fatalf("read follow-up report: %v", err)
	}
	want := map[string]models.AuditStatus{
		"SQL Injection":  models.StatusOpen,
		"Weak TLS":       models.StatusOpen,
		"Weak Protocols": models.StatusClosed,
	}
	if got := statusByPrevious(rows); !reflect.DeepEqual(got, want) {
		t.Errorf("follow-up statuses = %v, want %v", got, want)
	}
}

func statusByPrevious(rows []models.PreviousFinding) map[string]models.AuditStatus {
	out := make(map[string]models.AuditStatus, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Status
	}
	return out
}
