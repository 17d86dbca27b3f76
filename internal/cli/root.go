package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/config"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

const (
	ExitOK           = 0 // Success
	ExitPolicyFail   = 1 // Audit outcome violates the policy
	ExitInvalidInput = 2 // Bad arguments, parse error or rejected operation
	ExitRuntimeError = 3 // I/O, permissions, or runtime error
)

// version is reported by the version command; main overrides it via SetVersion.
var version = "0.1.0"

// SetVersion sets the version string injected at build time.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

var (
	// Global config instance
	cfg *config.Config

	// Global flags
	configFile string
	verbose    bool
	debug      bool
	logLevel   string
	logFormat  string
	serverURL  string
	format     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vulnrecon",
	Short: "vulnrecon - Vulnerability finding reconciliation",
	Long: `vulnrecon reconciles scanner findings against a catalog of known
vulnerability groups and against the previous audit.

It provides:
- Catalog matching of raw scan findings
- Interactive curation of unmatched findings with full undo
- New / Open / Closed labelling for follow-up audits
- CI/CD gating with policy files and exit codes

Quick start:
  vulnrecon config init > vulnrecon.yaml
  vulnrecon match ./scans
  vulnrecon curate
  vulnrecon export --output audit.csv

Other commands:
  vulnrecon diff --current audit.csv --previous last-audit.csv
  vulnrecon risk ./scans
  vulnrecon catalog append
  vulnrecon validate ./scans
  vulnrecon serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
		}

		// Override config with flags if provided
		if verbose {
			cfg.Verbose = true
		}
		if debug {
			cfg.Debug = true
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		if format != "" {
			cfg.Format = format
		}
		if err := cfg.Validate(); err != nil {
			return &ValidationError{Message: err.Error()}
		}

		return setupLogging(cfg)
	},
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logError("%v", err)
		os.Exit(HandleError(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./vulnrecon.yaml or ~/vulnrecon.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"debug mode (very verbose)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format: console or json")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "",
		"output format: text or json")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"drive sessions on a running vulnrecon server instead of local storage")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(curateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vulnrecon v%s\n", version)
		fmt.Fprintln(cmd.OutOrStdout(), "Vulnerability finding reconciliation")
	},
}

// setupLogging installs the default slog logger. --debug forces debug level.
func setupLogging(c *config.Config) error {
	level := strings.ToLower(c.LogLevel)
	if c.Debug {
		level = "debug"
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return &ValidationError{Message: fmt.Sprintf("invalid log level: %s", level)}
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	switch c.LogFormat {
	case "console":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return &ValidationError{Message: fmt.Sprintf("invalid log format: %s", c.LogFormat)}
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// HandleError determines the appropriate exit code for an error
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}

	var validation *ValidationError
	var policyErr *PolicyFailedError
	switch {
	case errors.As(err, &policyErr):
		return ExitPolicyFail
	case errors.As(err, &validation):
		return ExitInvalidInput
	case errors.Is(err, reconcile.ErrValidation),
		errors.Is(err, reconcile.ErrNotFound),
		errors.Is(err, reconcile.ErrEmptyLog),
		errors.Is(err, storage.ErrSessionNotFound):
		return ExitInvalidInput
	default:
		return ExitRuntimeError
	}
}

// ValidationError represents bad command-line input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PolicyFailedError represents a policy gate failure
type PolicyFailedError struct {
	Violations int
}

func (e *PolicyFailedError) Error() string {
	return fmt.Sprintf("policy failed with %d violation(s)", e.Violations)
}

// logVerbose logs at info level when verbose mode is enabled
func logVerbose(format string, args ...interface{}) {
	if cfg != nil && cfg.Verbose {
		slog.Info(fmt.Sprintf(format, args...))
	}
}

// logDebug logs at debug level
func logDebug(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf(format, args...))
}

// logError logs an error message
func logError(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...))
}
