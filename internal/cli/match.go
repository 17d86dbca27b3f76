package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/catalog"
	"github.com/ppiankov/vulnrecon/internal/collector"
)

var (
	matchCatalog     string
	matchConcurrency int
)

// matchCmd collects scan exports and opens a curation session
var matchCmd = &cobra.Command{
	Use:   "match <path>...",
	Short: "Match scan findings against the catalog and open a session",
	Long: `Reads scanner exports (JSON or CSV files, or directories of them),
matches every distinct finding name against the catalog and stores the
result as a new curation session.

Catalog matching is exact per line and case-insensitive. Findings that
match no catalog group are left for curation.

Examples:
  vulnrecon match ./scans
  vulnrecon match nessus.csv burp.json --catalog catalog.yaml
  vulnrecon match ./scans --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		catalogPath := matchCatalog
		if catalogPath == "" {
			catalogPath = cfg.CatalogPath
		}
		return runMatch(cmd.Context(), cmd.OutOrStdout(), b, args, catalogPath)
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchCatalog, "catalog", "",
		"catalog file (default: catalog_path from config)")
	matchCmd.Flags().IntVar(&matchConcurrency, "concurrency", 10,
		"number of scan files read in parallel")
}

func runMatch(ctx context.Context, w io.Writer, b *backend, paths []string, catalogPath string) error {
	files, err := collector.ExpandPaths(paths)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	logVerbose("Found %d scan file(s)", len(files))

	bar := newProgressBar(len(files), "Reading scan files")
	coll := collector.New(collector.Config{
		MaxConcurrency: matchConcurrency,
		OnFile: func(path string, err error) {
			if bar == nil {
				return
			}
			if addErr := bar.Add(1); addErr != nil {
				slog.Warn("failed to update progress bar", "error", addErr)
			}
		},
	})

	findings, err := coll.CollectFromPaths(ctx, files)
	if err != nil {
		return fmt.Errorf("failed to collect findings: %w", err)
	}
	names := collector.UniqueNames(findings)
	logVerbose("Collected %d finding(s), %d distinct name(s)", len(findings), len(names))

	if b.client != nil {
		resp, err := b.client.CreateSession(ctx, names)
		if err != nil {
			return err
		}
		return printView(w, resp.ID, resp.View, 0)
	}

	if catalogPath == "" {
		return &ValidationError{Message: "no catalog configured (use --catalog or set catalog_path)"}
	}
	groups, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	logDebug("Loaded %d catalog group(s) from %s", len(groups), catalogPath)

	result := catalog.Match(names, groups)
	logVerbose("Matched %d name(s) into %d group(s); %d unmatched",
		result.MatchedNames(), len(result.Groups), len(result.Unmatched))

	sess, err := b.manager.Create(ctx, result, catalogPath, files)
	if err != nil {
		return err
	}
	return printView(w, sess.ID, sess.State.View(), 0)
}
