package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnrecon/internal/config"
)

var (
	configOutput string
	configForce  bool
)

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Print or write a sample configuration file",
	Long: `Prints a commented sample configuration. With --output the sample is
written to a file; an existing file is kept unless --force is given.

Examples:
  vulnrecon config init > vulnrecon.yaml
  vulnrecon config init --output ~/vulnrecon.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInit(cmd.OutOrStdout(), configOutput, configForce)
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", "",
		"write to file instead of stdout")
	configInitCmd.Flags().BoolVar(&configForce, "force", false,
		"overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(w io.Writer, output string, force bool) error {
	sample := config.GenerateSampleConfig()
	if output == "" {
		_, err := io.WriteString(w, sample)
		return err
	}

	if _, err := os.Stat(output); err == nil && !force {
		return &ValidationError{Message: fmt.Sprintf("%s already exists (use --force to overwrite)", output)}
	}
	if err := os.WriteFile(output, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(w, "Wrote %s\n", output)
	return nil
}
