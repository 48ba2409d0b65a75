// Package cmd implements the netdumpd CLI using cobra.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

// rootCmd is netdumpd itself: running it with no subcommand starts
// the daemon in the foreground, matching the source's single-binary
// CLI surface (-a/-d/-i/-P/-D).
var rootCmd = &cobra.Command{
	Use:   "netdumpd",
	Short: "Receive kernel crash dumps streamed over UDP",
	Long: `netdumpd is a server daemon that receives kernel crash dumps streamed
over UDP from panicking machines and persists them to local storage as
a human-readable metadata file and a binary core image per dump.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"optional YAML config file for timing/sizing tunables")

	registerDaemonFlags(rootCmd)
	rootCmd.AddCommand(statusCmd)
}
