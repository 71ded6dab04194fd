// Package commands implements the sessionmesh CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sessionmesh",
	Short: "Composable session storage handler chains",
	Long: `sessionmesh stores sessions through a chain of cooperating handlers:
a canonical store (memory, file, badger, s3, sql) wrapped by decorators
(logging, encrypt, cache, metrics, tracing) declared in the config file.

Environment Variables:
  Format: SESSIONMESH_<SECTION>_<KEY>, e.g. SESSIONMESH_STORE_TYPE=file

Use "sessionmesh [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sessionmesh %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/sessionmesh/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(configCmd)
}
