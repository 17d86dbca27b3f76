package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/reconcile"
)

var sessionFlag string

// showCmd prints the current view of a session
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the matched groups and unmatched findings of a session",
	Long: `Prints the current view of a curation session. Without --session the
most recently updated session is shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return runShow(cmd.Context(), cmd.OutOrStdout(), b.curator, sessionFlag)
	},
}

// undoCmd reverts the last curation operation
var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the last curation operation of a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return runUndo(cmd.Context(), cmd.OutOrStdout(), b.curator, sessionFlag)
	},
}

func init() {
	for _, c := range []*cobra.Command{showCmd, undoCmd, mergeCmd, curateCmd, exportCmd, catalogAppendCmd} {
		c.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "",
			"session ID (default: most recently updated session)")
	}
}

func runShow(ctx context.Context, w io.Writer, c curator, id string) error {
	sess, err := loadSession(ctx, c, id)
	if err != nil {
		return err
	}
	return printView(w, sess.ID, sess.State.View(), len(sess.State.OperationLog))
}

func runUndo(ctx context.Context, w io.Writer, c curator, id string) error {
	return runOperation(ctx, w, c, id, func(ctx context.Context, c curator, id string) (*reconcile.View, error) {
		logVerbose("Undoing last operation on session %s", id)
		return c.Undo(ctx, id)
	})
}
