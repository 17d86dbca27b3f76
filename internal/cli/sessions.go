package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/reporter"
)

// sessionsCmd lists and removes stored sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or delete stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return runSessionsList(cmd.Context(), cmd.OutOrStdout(), b.curator)
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete sessions without exporting them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return runSessionsDelete(cmd.Context(), cmd.OutOrStdout(), b.curator, args)
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(ctx context.Context, w io.Writer, c curator) error {
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	if cfg.Format == "json" {
		return reporter.NewJSONReporter(w, true).Generate(list)
	}
	return reporter.NewTextReporter(w).Sessions(list)
}

func runSessionsDelete(ctx context.Context, w io.Writer, c curator, ids []string) error {
	for _, id := range ids {
		if err := c.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
		fmt.Fprintf(w, "Deleted %s\n", id)
	}
	return nil
}
