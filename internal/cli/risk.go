package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/aggregator"
	"github.com/ppiankov/vulnrecon/internal/collector"
	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reporter"
)

// riskCmd counts findings by risk level
var riskCmd = &cobra.Command{
	Use:   "risk [path]...",
	Short: "Count findings by risk level",
	Long: `Counts findings into Critical, High, Medium and Low.

With paths, every finding in the scan exports is counted. Without paths,
the groups of a session are counted. Risk labels that do not name one of
the four levels are ignored.

Examples:
  vulnrecon risk ./scans
  vulnrecon risk --session 6f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			counts, err := countScanRisks(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printRisk(cmd.OutOrStdout(), counts)
		}

		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return runSessionRisk(cmd.Context(), cmd.OutOrStdout(), b.curator, sessionFlag)
	},
}

func init() {
	riskCmd.Flags().StringVarP(&sessionFlag, "session", "s", "",
		"session ID (default: most recently updated session)")
}

func countScanRisks(ctx context.Context, paths []string) (models.RiskCounts, error) {
	findings, err := collector.New(collector.Config{}).CollectFromPaths(ctx, paths)
	if err != nil {
		return models.RiskCounts{}, fmt.Errorf("failed to collect findings: %w", err)
	}
	return aggregator.CountFindings(findings), nil
}

func runSessionRisk(ctx context.Context, w io.Writer, c curator, id string) error {
	sess, err := loadSession(ctx, c, id)
	if err != nil {
		return err
	}
	risks := make([]string, 0, len(sess.State.MatchedGroups))
	for _, g := range sess.State.MatchedGroups {
		risks = append(risks, g.Risk)
	}
	return printRisk(w, aggregator.CountByRisk(risks))
}

func printRisk(w io.Writer, counts models.RiskCounts) error {
	if cfg.Format == "json" {
		return reporter.NewJSONReporter(w, true).Generate(counts)
	}
	return reporter.NewTextReporter(w).Risk(counts)
}
