package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/collector"
	"github.com/ppiankov/vulnrecon/internal/differ"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reporter"
	"github.com/ppiankov/vulnrecon/internal/storage"
	"github.com/ppiankov/vulnrecon/internal/validator"
)

var (
	exportOutput         string
	exportType           string
	exportPrevious       string
	exportExceptions     []string
	exportExceptionsFile string
	exportKeep           bool
)

// exportCmd finalizes a session into a labelled audit report
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Finalize a session and write the audit report",
	Long: `Finalizes a curation session into one row per group, labels every row
New or Open against the previous audit, appends the Closed rows of the
previous audit, and writes the result as CSV or JSON.

The previous audit is read from --previous, or else from the most recent
report archived in the storage directory. The finalized report is archived
so the next audit can be compared with it. The session is discarded unless
--keep is given.

Examples:
  vulnrecon export --output audit.csv
  vulnrecon export --previous last-audit.csv --exception "Old Finding"
  vulnrecon export --export-format json --keep`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		exceptions, err := loadExceptions(exportExceptions, exportExceptionsFile)
		if err != nil {
			return err
		}
		return runExport(cmd.Context(), cmd.OutOrStdout(), b, exportOptions{
			SessionID:  sessionFlag,
			Output:     exportOutput,
			Format:     exportType,
			Previous:   exportPrevious,
			Exceptions: exceptions,
			Keep:       exportKeep,
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportType, "export-format", "",
		"report format: csv or json (default: from --output extension, else csv)")
	exportCmd.Flags().StringVar(&exportPrevious, "previous", "",
		"previous audit report (.csv or .json)")
	exportCmd.Flags().StringArrayVar(&exportExceptions, "exception", nil,
		"closed finding accepted as an exception (repeatable)")
	exportCmd.Flags().StringVar(&exportExceptionsFile, "exceptions-file", "",
		"file with one exception name per line")
	exportCmd.Flags().BoolVar(&exportKeep, "keep", false,
		"keep the session after finalizing")
}

type exportOptions struct {
	SessionID  string
	Output     string
	Format     string
	Previous   string
	Exceptions []string
	Keep       bool
}

func runExport(ctx context.Context, stdout io.Writer, b *backend, opts exportOptions) error {
	format, err := exportFormat(opts.Format, opts.Output)
	if err != nil {
		return err
	}

	id, err := resolveSessionID(ctx, b.curator, opts.SessionID)
	if err != nil {
		return err
	}

	// Read before finalizing, which archives a newer report.
	previous, _, err := loadPrevious(ctx, b, opts.Previous)
	if err != nil {
		return err
	}

	w := stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	report, err := b.curator.Finalize(ctx, id, opts.Keep)
	if err != nil {
		return err
	}
	if n := len(report.Unmatched); n > 0 {
		slog.Warn("uncurated findings are not in the report",
			"count", n, "findings", strings.Join(report.Unmatched, ", "))
	}

	rows := labelReport(report, previous, opts.Exceptions)
	if err := reporter.Export(w, rows, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if opts.Output != "" {
		logVerbose("Report written to %s (%d rows)", opts.Output, len(rows))
	}
	return nil
}

// labelReport labels the finalized rows against previous and appends the
// rows that were closed since.
func labelReport(report *models.AuditReport, previous []models.PreviousFinding, exceptions []string) []models.ReportRow {
	result := differ.Diff(report.Names(), collector.PreviousNames(previous))
	counts := result.Counts()
	logVerbose("Audit labels: %d new, %d open, %d closed", counts.New, counts.Open, counts.Closed)

	rows := differ.LabelRows(result, report.Rows, exceptions)
	return append(rows, differ.ClosedRows(result, previous, exceptions)...)
}

// loadPrevious reads the previous audit from path, or from the newest
// archived report of the local store or the server. It returns a description of the source; an empty
// description means there is no previous audit.
func loadPrevious(ctx context.Context, b *backend, path string) ([]models.PreviousFinding, string, error) {
	if path != "" {
		rows, err := readAuditFile(path)
		if err != nil {
			return nil, "", err
		}
		logDebug("Loaded %d previous row(s) from %s", len(rows), path)
		return rows, path, nil
	}

	report, err := b.curator.LatestReport(ctx)
	if errors.Is(err, storage.ErrNoReports) {
		logVerbose("No archived audit found; every finding is labelled New")
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load archived audit: %w", err)
	}
	if err := validator.ValidateTimestamp(report.Timestamp); err != nil {
		slog.Warn("archived audit may not be a useful baseline", "error", err)
	}
	source := "archived audit of " + report.Timestamp.Format("2006-01-02 15:04:05")
	logDebug("Using %s", source)
	return withoutClosed(collector.PreviousFromReport(report)), source, nil
}

// readAuditFile validates and loads an exported audit, without its Closed rows.
func readAuditFile(path string) ([]models.PreviousFinding, error) {
	if err := validator.New().ValidatePreviousFile(path); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	rows, err := collector.LoadPreviousAudit(path)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return withoutClosed(rows), nil
}

// withoutClosed drops rows an exported report lists as Closed. Those were
// already gone in that audit.
func withoutClosed(rows []models.PreviousFinding) []models.PreviousFinding {
	var out []models.PreviousFinding
	for _, r := range rows {
		if !r.Status.IsClosed() {
			out = append(out, r)
		}
	}
	return out
}

func exportFormat(format, output string) (string, error) {
	if format == "" {
		if strings.EqualFold(filepath.Ext(output), ".json") {
			return "json", nil
		}
		return "csv", nil
	}
	switch format {
	case "csv", "json":
		return format, nil
	default:
		return "", &ValidationError{Message: fmt.Sprintf("invalid export format: %s (must be csv or json)", format)}
	}
}

// loadExceptions merges names given on the command line with those in
// file. Blank lines and lines starting with # are skipped.
func loadExceptions(names []string, file string) ([]string, error) {
	out := append([]string(nil), names...)
	if file == "" {
		return out, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to open exceptions file: %v", err)}
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read exceptions file: %w", err)
	}
	return out, nil
}
