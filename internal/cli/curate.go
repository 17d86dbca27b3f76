package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/vulnrecon/internal/tui"
)

// curateCmd opens the interactive curation screen
var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Curate a session interactively",
	Long: `Opens a full-screen view of a session with the unmatched findings on
the left and the matched groups on the right.

Keys:
  tab     switch pane          /     search
  space   mark finding         s     cycle sort
  m       merge into group     n     new group from marked
  d       new group (one)      g     merge group into group
  u       undo                 q     quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			return &ValidationError{Message: "curate needs an interactive terminal (use 'vulnrecon merge' in scripts)"}
		}

		b, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx := cmd.Context()
		sess, err := loadSession(ctx, b.curator, sessionFlag)
		if err != nil {
			return err
		}
		return tui.Run(ctx, b.curator, sess.ID, sess.State.View(), len(sess.State.OperationLog))
	},
}
