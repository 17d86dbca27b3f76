package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/collector"
	"github.com/ppiankov/vulnrecon/internal/differ"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/policy"
	"github.com/ppiankov/vulnrecon/internal/reporter"
)

var (
	diffCurrent        string
	diffPrevious       string
	diffExceptions     []string
	diffExceptionsFile string
	diffPolicy         string
	diffFailNew        bool
)

// diffCmd compares the current audit with the previous one
var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the current audit with the previous one",
	Long: `Labels every finding of the current audit New, Open or Closed against
the previous audit and counts each status by risk.

The current audit is an exported report (--current) or, by default, the
groups of a session as they stand. The previous audit is --previous or the
most recent archived report.

A policy file (--policy, or .vulnrecon-policy.yaml found in the current or a
parent directory) turns the comparison into a CI gate: exit code 1 when any
rule is violated.

Examples:
  vulnrecon diff
  vulnrecon diff --current audit.csv --previous last-audit.csv
  vulnrecon diff --exception "Legacy FTP" --policy ci-policy.yaml
  vulnrecon diff --fail-new --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		exceptions, err := loadExceptions(diffExceptions, diffExceptionsFile)
		if err != nil {
			return err
		}
		return runDiff(cmd.Context(), cmd.OutOrStdout(), b, diffOptions{
			SessionID:  sessionFlag,
			Current:    diffCurrent,
			Previous:   diffPrevious,
			Exceptions: exceptions,
			PolicyPath: diffPolicy,
			FailNew:    diffFailNew,
		})
	},
}

func init() {
	diffCmd.Flags().StringVarP(&sessionFlag, "session", "s", "",
		"session ID (default: most recently updated session)")
	diffCmd.Flags().StringVar(&diffCurrent, "current", "",
		"current audit report (.csv or .json) instead of a session")
	diffCmd.Flags().StringVar(&diffPrevious, "previous", "",
		"previous audit report (default: most recent archived report)")
	diffCmd.Flags().StringArrayVar(&diffExceptions, "exception", nil,
		"closed finding accepted as an exception (repeatable)")
	diffCmd.Flags().StringVar(&diffExceptionsFile, "exceptions-file", "",
		"file with one exception name per line")
	diffCmd.Flags().StringVar(&diffPolicy, "policy", "",
		"policy file (default: search for .vulnrecon-policy.yaml)")
	diffCmd.Flags().BoolVar(&diffFailNew, "fail-new", false,
		"exit 1 when any new finding appears")
}

type diffOptions struct {
	SessionID  string
	Current    string
	Previous   string
	Exceptions []string
	PolicyPath string
	FailNew    bool
}

// diffOutput is the JSON shape of the diff command.
type diffOutput struct {
	*differ.Report
	Policy *policy.Result `json:"policy,omitempty"`
}

func runDiff(ctx context.Context, w io.Writer, b *backend, opts diffOptions) error {
	current, unmatched, err := loadCurrent(ctx, b, opts)
	if err != nil {
		return err
	}

	previous, source, err := loadPrevious(ctx, b, opts.Previous)
	if err != nil {
		return err
	}
	if source == "" {
		return &ValidationError{Message: "no previous audit to compare with (use --previous)"}
	}

	// Current risk wins for names present in both audits.
	risks := make(map[string]string, len(current)+len(previous))
	for _, p := range previous {
		risks[p.Name] = p.Risk
	}
	for _, c := range current {
		risks[c.Name] = c.Risk
	}

	result := differ.Diff(collector.PreviousNames(current), collector.PreviousNames(previous))
	rep := differ.NewReport(result, opts.Exceptions, risks)
	rep.Previous = source

	policyResult, err := evaluatePolicy(opts.PolicyPath, policy.Input{
		Labels:    rep.Labels,
		Breakdown: rep.Breakdown,
		Unmatched: unmatched,
	})
	if err != nil {
		return err
	}

	if cfg.Format == "json" {
		if err := reporter.NewJSONReporter(w, true).Generate(diffOutput{Report: rep, Policy: policyResult}); err != nil {
			return err
		}
	} else {
		text := reporter.NewTextReporter(w)
		if err := text.Diff(rep); err != nil {
			return err
		}
		if policyResult != nil {
			if err := text.Policy(policyResult); err != nil {
				return err
			}
		}
	}

	if policyResult != nil && !policyResult.Pass {
		return &PolicyFailedError{Violations: len(policyResult.Violations)}
	}
	if opts.FailNew && rep.Counts.New > 0 {
		return &PolicyFailedError{Violations: rep.Counts.New}
	}
	return nil
}

// loadCurrent returns the rows of the current audit and, for a session, the
// number of findings still unmatched.
func loadCurrent(ctx context.Context, b *backend, opts diffOptions) ([]models.PreviousFinding, int, error) {
	if opts.Current != "" {
		rows, err := readAuditFile(opts.Current)
		if err != nil {
			return nil, 0, err
		}
		return rows, 0, nil
	}

	sess, err := loadSession(ctx, b.curator, opts.SessionID)
	if err != nil {
		return nil, 0, err
	}
	report := &models.AuditReport{Rows: sess.State.Finalize()}
	return collector.PreviousFromReport(report), len(sess.State.Unmatched), nil
}

// evaluatePolicy loads the policy at path, or the one found by search.
// A nil result means no policy applies.
func evaluatePolicy(path string, in policy.Input) (*policy.Result, error) {
	explicit := path != ""
	if !explicit {
		path = policy.FindPolicyFile()
		if path == "" {
			return nil, nil
		}
	}

	p, err := policy.LoadFromFile(path)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to load policy: %v", err)}
	}
	if p == nil {
		if explicit {
			return nil, &ValidationError{Message: fmt.Sprintf("policy file not found: %s", path)}
		}
		return nil, nil
	}
	logVerbose("Evaluating policy %s", path)
	return p.Evaluate(in), nil
}
