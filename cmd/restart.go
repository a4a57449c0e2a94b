package cmd

import (
	"os"

	"devfleet/internal/cli"

	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	var (
		cwdFlag string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "restart NAME",
		Short: "Restart a registered server",
		Long: `Restart tears the server's process down and starts it again with its
registered configuration. Configuration drift is reconciled first,
following the refreshOnChange policy.`,
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

			result, err := engine.Restart(cmd.Context(), cwd, args[0])
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
