package cmd

import (
	"os"

	"devfleet/pkg/logging"

	"github.com/spf13/cobra"
)

var debugFlag bool

// rootCmd represents the base command for the devfleet application.
var rootCmd = &cobra.Command{
	Use:   "devfleet",
	Short: "Manage a fleet of local dev servers with stable ports",
	Long: `devfleet gives every local dev server a stable, collision-free
endpoint across invocations. Servers are registered by name and working
directory, ports are derived deterministically from that identity, and
command templates are re-resolved when the global configuration drifts.`,
	// SilenceUsage prevents cobra from printing usage on errors the
	// application already reports cleanly.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if debugFlag {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from main
// to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "devfleet version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newVersionCmd())
}
