package cmd

import (
	"os"

	"devfleet/internal/cli"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var (
		cwdFlag string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "refresh NAME",
		Short: "Re-resolve a server against the current configuration and restart it",
		Long: `Refresh re-renders the server's command and environment templates
against the live configuration, updates the registered snapshot, and
restarts the process. Unlike start, it applies drift unconditionally,
regardless of the refreshOnChange policy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := resolveCwd(cwdFlag)
			if err != nil {
				return err
			}
			engine, _, err := newEngine(cwd)
			if err != nil {
				return err
			}

			result, err := engine.Refresh(cmd.Context(), cwd, args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return cli.RenderJSON(os.Stdout, result)
			}
			cli.RenderStartResult(os.Stdout, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory the server is registered in")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}
