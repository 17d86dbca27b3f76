package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/catalog"
)

var catalogTarget string

// catalogCmd manages the vulnerability catalog
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the vulnerability catalog",
}

var catalogAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append the new groups of a session to the catalog",
	Long: `Adds every group created during curation to the end of the catalog so
the next audit matches those findings automatically. New groups get the next
free positive IDs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		path := catalogTarget
		if path == "" {
			path = cfg.CatalogPath
		}
		return runCatalogAppend(cmd.Context(), cmd.OutOrStdout(), b.curator, sessionFlag, path)
	},
}

func init() {
	catalogAppendCmd.Flags().StringVar(&catalogTarget, "catalog", "",
		"catalog file to extend (default: catalog_path from config)")
	catalogCmd.AddCommand(catalogAppendCmd)
}

func runCatalogAppend(ctx context.Context, w io.Writer, c curator, id, path string) error {
	if path == "" {
		return &ValidationError{Message: "no catalog configured (use --catalog or set catalog_path)"}
	}

	sess, err := loadSession(ctx, c, id)
	if err != nil {
		return err
	}

	groups := sess.State.SessionGroups()
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, "No new groups in session.")
		return err
	}

	added, err := catalog.AppendGroups(path, groups)
	if err != nil {
		return fmt.Errorf("failed to update catalog: %w", err)
	}
	for _, g := range added {
		fmt.Fprintf(w, "Added #%d %s (%d member(s))\n", g.ID, g.Name, len(g.Members))
	}
	logVerbose("Catalog %s updated", path)
	return nil
}
