package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Print the string clusters of a binary and exit",
	Long: `Run the string clustering in non-interactive mode and exit.
The clusters are filtered like in the panel and printed as a tree, a table
or JSON.`,
	Example: `
# Print a table of every function referencing a URL
strcluster run --format table -r -Q 'https?://' libgame.so

# Print the unattributed strings only
strcluster run -Q 0_sub --hide libgame.so
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		os.Setenv("STRCLUSTER_NO_COLOR", "1")
		setupLogging(cfg, false)

		path, err := resolveFile(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		quiet, _ := cmd.Flags().GetBool("quiet")
		f := filterFromFlags(cmd, cfg)
		if !quiet {
			slog.Info("Running string clustering", "file", path, "format", format, "query", f.query)
		}
		return runOutput(cmd.OutOrStdout(), path, format, cfg, f)
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Do not log progress")
	runCmd.Flags().StringP("format", "o", formatTree, "Output format: tree, table or json")
	addFilterFlags(runCmd)
}
