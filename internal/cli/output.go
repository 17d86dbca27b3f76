package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/reporter"
)

// printView writes a session view in the configured format.
func printView(w io.Writer, sessionID string, view *reconcile.View, undoable int) error {
	if cfg.Format == "json" {
		return reporter.NewJSONReporter(w, true).Generate(viewOutput{
			SessionID: sessionID,
			Undoable:  undoable,
			View:      view,
		})
	}
	if err := reporter.NewTextReporter(w).View(sessionID, view); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nUndo available: %d operation(s)\n", undoable)
	return err
}

// newProgressBar returns a bar on stderr, or nil when stderr is not a
// terminal or JSON output was requested.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if total <= 1 || cfg.Format == "json" || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}
