package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/collector"
	"github.com/ppiankov/vulnrecon/internal/reporter"
	"github.com/ppiankov/vulnrecon/internal/validator"
)

var (
	validateCatalog  string
	validatePrevious []string
)

var validateCmd = &cobra.Command{
	Use:   "validate [scan-path]...",
	Short: "Check the catalog, scan exports and earlier audits",
	Long: `Validate checks the inputs of an audit before a session is opened.

The catalog must load, every group needs a name, a risk that maps to
Critical, High, Medium or Low and at least one member, and no member line
may be claimed by two groups. Scan exports must parse and carry usable risk
labels. Earlier audit reports given with --previous must use known status
labels and list each finding once.

Returns exit 0 if everything is valid, exit 2 otherwise.

Examples:
  vulnrecon validate
  vulnrecon validate ./scans --previous audit-2025.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := validateCatalog
		if path == "" {
			path = cfg.CatalogPath
		}
		return runValidate(cmd.OutOrStdout(), path, args, validatePrevious)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateCatalog, "catalog", "",
		"catalog file (default: catalog_path from config)")
	validateCmd.Flags().StringArrayVar(&validatePrevious, "previous", nil,
		"earlier audit report to check (repeatable)")
}

// validateResult is the outcome for one input.
type validateResult struct {
	Input  string `json:"input"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func runValidate(w io.Writer, catalogPath string, scanPaths, previous []string) error {
	v := validator.New()
	var results []validateResult

	check := func(input string, err error) {
		r := validateResult{Input: input, Valid: err == nil}
		if err != nil {
			r.Reason = err.Error()
		}
		results = append(results, r)
	}

	if catalogPath != "" {
		check(catalogPath, v.ValidateCatalogFile(catalogPath))
	}
	if len(scanPaths) > 0 {
		files, err := collector.ExpandPaths(scanPaths)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}
		for _, f := range files {
			check(f, v.ValidateScanFile(f))
		}
	}
	for _, p := range previous {
		check(p, v.ValidatePreviousFile(p))
	}

	if len(results) == 0 {
		return &ValidationError{Message: "nothing to validate (set catalog_path or pass scan paths)"}
	}

	invalid := 0
	for _, r := range results {
		if !r.Valid {
			invalid++
		}
	}

	if cfg.Format == "json" {
		if err := reporter.NewJSONReporter(w, true).Generate(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(w, "VALID: %s\n", r.Input)
			} else {
				fmt.Fprintf(w, "INVALID: %s\n", r.Reason)
			}
		}
	}

	if invalid > 0 {
		return &ValidationError{Message: fmt.Sprintf("%d of %d input(s) failed validation", invalid, len(results))}
	}
	return nil
}
