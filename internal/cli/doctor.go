package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/apiclient"
	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/policy"
	"github.com/ppiankov/vulnrecon/internal/reporter"
	"github.com/ppiankov/vulnrecon/internal/storage"
	"github.com/ppiankov/vulnrecon/internal/validator"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment readiness and diagnose common problems",
	Long: `Doctor validates your vulnrecon setup end-to-end:

  1. Config file: found and readable?
  2. Catalog: configured and parseable?
  3. Storage: directory writable, session store opens?
  4. Server: reachable, when server_url is set?
  5. Policy: found and parseable?

Fix the issues it reports, then run 'vulnrecon match' with confidence.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

type doctorResult struct {
	Checks  []doctorCheck `json:"checks"`
	Summary string        `json:"summary"`
}

func runDoctor(ctx context.Context, w io.Writer) error {
	checks := []doctorCheck{
		checkConfig(),
		checkCatalog(),
		checkStorage(),
		checkSessionStore(ctx),
		checkServer(ctx),
		checkPolicy(),
	}

	fails, warns := 0, 0
	for _, c := range checks {
		switch c.Status {
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}

	summary := "all checks passed"
	if fails > 0 {
		summary = fmt.Sprintf("%d issue(s) found", fails)
	} else if warns > 0 {
		summary = fmt.Sprintf("ok with %d warning(s)", warns)
	}

	result := doctorResult{Checks: checks, Summary: summary}

	if cfg.Format == "json" {
		return reporter.NewJSONReporter(w, true).Generate(result)
	}
	return writeDoctorText(w, result)
}

func writeDoctorText(w io.Writer, result doctorResult) error {
	icons := map[string]string{
		"ok":   "✓",
		"warn": "△",
		"fail": "✗",
	}

	for _, c := range result.Checks {
		icon := icons[c.Status]
		if c.Detail != "" {
			fmt.Fprintf(w, "  %s %-10s %s\n", icon, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "  %s %s\n", icon, c.Name)
		}
	}

	_, err := fmt.Fprintf(w, "\n%s\n", result.Summary)
	return err
}

func checkConfig() doctorCheck {
	candidates := []string{configFile}
	if configFile == "" {
		candidates = []string{"vulnrecon.yaml"}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, "vulnrecon.yaml"))
		}
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			candidates = append(candidates, filepath.Join(xdg, "vulnrecon", "vulnrecon.yaml"))
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return doctorCheck{Name: "config", Status: "ok", Detail: path}
		}
	}
	return doctorCheck{
		Name:   "config",
		Status: "warn",
		Detail: "no config file found (using defaults). Run: vulnrecon config init",
	}
}

func checkCatalog() doctorCheck {
	if cfg.CatalogPath == "" {
		return doctorCheck{
			Name:   "catalog",
			Status: "warn",
			Detail: "catalog_path not set (match needs --catalog)",
		}
	}

	groups, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return doctorCheck{Name: "catalog", Status: "fail", Detail: err.Error()}
	}
	var invalid *validator.ValidationError
	if err := validator.New().ValidateCatalog(groups); errors.As(err, &invalid) {
		return doctorCheck{
			Name:   "catalog",
			Status: "warn",
			Detail: fmt.Sprintf("%s: %d problem(s), run 'vulnrecon validate'", cfg.CatalogPath, len(invalid.Errors)),
		}
	}
	return doctorCheck{
		Name:   "catalog",
		Status: "ok",
		Detail: fmt.Sprintf("%s (%d groups)", cfg.CatalogPath, len(groups)),
	}
}

func checkStorage() doctorCheck {
	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Detail: err.Error()}
	}

	info, err := os.Stat(storagePath)
	if err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "ok",
			Detail: fmt.Sprintf("%s (will be created on first match)", storagePath),
		}
	}

	if !info.IsDir() {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s exists but is not a directory", storagePath),
		}
	}

	// Try writing a temp file to check write access
	tmpFile := filepath.Join(storagePath, ".doctor-check")
	if err := os.WriteFile(tmpFile, []byte("ok"), 0600); err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s not writable: %v", storagePath, err),
		}
	}
	_ = os.Remove(tmpFile)

	return doctorCheck{Name: "storage", Status: "ok", Detail: storagePath}
}

func checkSessionStore(ctx context.Context) doctorCheck {
	if cfg.ServerURL != "" {
		return doctorCheck{Name: "sessions", Status: "ok", Detail: "held by the server"}
	}

	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		return doctorCheck{Name: "sessions", Status: "fail", Detail: err.Error()}
	}
	if _, err := os.Stat(storagePath); err != nil {
		return doctorCheck{Name: "sessions", Status: "ok", Detail: "none yet"}
	}

	store, err := storage.Open(cfg.SessionBackend, storagePath)
	if err != nil {
		return doctorCheck{Name: "sessions", Status: "fail", Detail: err.Error()}
	}
	defer func() { _ = store.Close() }()

	list, err := store.ListSessions(ctx)
	if err != nil {
		return doctorCheck{Name: "sessions", Status: "fail", Detail: err.Error()}
	}
	reports, err := store.ListReports(ctx)
	if err != nil {
		return doctorCheck{Name: "sessions", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{
		Name:   "sessions",
		Status: "ok",
		Detail: fmt.Sprintf("%d open, %d archived audit(s) (%s backend)", len(list), len(reports), cfg.SessionBackend),
	}
}

func checkServer(ctx context.Context) doctorCheck {
	if cfg.ServerURL == "" {
		return doctorCheck{Name: "server", Status: "ok", Detail: "not used (local sessions)"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := apiclient.New(cfg.ServerURL).Health(ctx); err != nil {
		return doctorCheck{
			Name:   "server",
			Status: "fail",
			Detail: fmt.Sprintf("unreachable (%v)", err),
		}
	}
	return doctorCheck{Name: "server", Status: "ok", Detail: cfg.ServerURL}
}

func checkPolicy() doctorCheck {
	path := policy.FindPolicyFile()
	if path == "" {
		return doctorCheck{Name: "policy", Status: "ok", Detail: "none (diff does not gate)"}
	}
	if _, err := policy.LoadFromFile(path); err != nil {
		return doctorCheck{Name: "policy", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{Name: "policy", Status: "ok", Detail: path}
}
