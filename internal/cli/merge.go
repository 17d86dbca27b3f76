package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
)

// detailFlags holds the operator record of a new group.
type detailFlags struct {
	name           string
	risk           string
	cve            string
	cvss           string
	observation    string
	impact         string
	recommendation string
	reference      string
}

func (d *detailFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&d.name, "name", "", "group name (default: the finding name)")
	f.StringVar(&d.risk, "risk", "", "risk: Critical, High, Medium or Low (required)")
	f.StringVar(&d.cve, "cve", "", "CVE identifier")
	f.StringVar(&d.cvss, "cvss", "", "CVSS score")
	f.StringVar(&d.observation, "observation", "", "what was observed (required)")
	f.StringVar(&d.impact, "impact", "", "impact of the finding (required)")
	f.StringVar(&d.recommendation, "recommendation", "", "remediation advice (required)")
	f.StringVar(&d.reference, "reference", "", "reference link")
}

func (d *detailFlags) details(defaultName string) models.Details {
	name := strings.TrimSpace(d.name)
	if name == "" {
		name = defaultName
	}
	return models.Details{
		Name:           name,
		Risk:           strings.TrimSpace(d.risk),
		CVE:            strings.TrimSpace(d.cve),
		CVSS:           strings.TrimSpace(d.cvss),
		Observation:    strings.TrimSpace(d.observation),
		Impact:         strings.TrimSpace(d.impact),
		Recommendation: strings.TrimSpace(d.recommendation),
		Reference:      strings.TrimSpace(d.reference),
	}
}

var (
	mergeTarget int
	mergeSource int
	newDetails  detailFlags
	soloDetails detailFlags
)

// mergeCmd groups the curation operations
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Curate unmatched findings and groups",
	Long: `Curation operations on a session. Every operation can be reverted
with 'vulnrecon undo'.

Examples:
  vulnrecon merge matched "Blind SQLi" --group 3
  vulnrecon merge new "TLS 1.0" "SSLv3" --name "Weak TLS" --risk High \
      --observation "..." --impact "..." --recommendation "..."
  vulnrecon merge details "Clickjacking" --risk Low --observation "..." \
      --impact "..." --recommendation "..."
  vulnrecon merge groups --source -1 --target 3`,
}

var mergeMatchedCmd = &cobra.Command{
	Use:   "matched <finding>",
	Short: "Add an unmatched finding to an existing group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("group") {
			return &ValidationError{Message: "--group is required"}
		}
		return withCurator(cmd, func(ctx context.Context, c curator, id string) (*reconcile.View, error) {
			return c.MergeWithMatched(ctx, id, args[0], mergeTarget)
		})
	},
}

var mergeNewCmd = &cobra.Command{
	Use:   "new <finding>...",
	Short: "Create a new group from one or more unmatched findings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCurator(cmd, func(ctx context.Context, c curator, id string) (*reconcile.View, error) {
			return c.MergeWithUnmatched(ctx, id, args, newDetails.details(args[0]))
		})
	},
}

var mergeDetailsCmd = &cobra.Command{
	Use:   "details <finding>",
	Short: "Promote one unmatched finding to its own group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCurator(cmd, func(ctx context.Context, c curator, id string) (*reconcile.View, error) {
			return c.AddDetails(ctx, id, args[0], soloDetails.details(args[0]))
		})
	},
}

var mergeGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Fold one group into another",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("source") || !cmd.Flags().Changed("target") {
			return &ValidationError{Message: "--source and --target are required"}
		}
		return withCurator(cmd, func(ctx context.Context, c curator, id string) (*reconcile.View, error) {
			return c.MergeMatchedGroups(ctx, id, mergeSource, mergeTarget)
		})
	},
}

func init() {
	mergeMatchedCmd.Flags().IntVar(&mergeTarget, "group", 0, "target group ID")
	newDetails.register(mergeNewCmd)
	soloDetails.register(mergeDetailsCmd)
	mergeGroupsCmd.Flags().IntVar(&mergeSource, "source", 0, "group ID to fold away")
	mergeGroupsCmd.Flags().IntVar(&mergeTarget, "target", 0, "group ID that receives the members")

	mergeCmd.AddCommand(mergeMatchedCmd)
	mergeCmd.AddCommand(mergeNewCmd)
	mergeCmd.AddCommand(mergeDetailsCmd)
	mergeCmd.AddCommand(mergeGroupsCmd)
}

// withCurator opens the backend, resolves the session and prints the view
// produced by op.
func withCurator(cmd *cobra.Command, op func(context.Context, curator, string) (*reconcile.View, error)) error {
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return runOperation(cmd.Context(), cmd.OutOrStdout(), b.curator, sessionFlag, op)
}

func runOperation(ctx context.Context, w io.Writer, c curator, id string, op func(context.Context, curator, string) (*reconcile.View, error)) error {
	id, err := resolveSessionID(ctx, c, id)
	if err != nil {
		return err
	}
	if _, err := op(ctx, c, id); err != nil {
		return err
	}
	// Re-read so the undo depth is current.
	return runShow(ctx, w, c, id)
}
