package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var cwdFlag string

	cmd := &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a server's process, keeping its registration",
		Long: `Stop tears the server's process down. The registry entry, including
its port, survives, so a later start brings the server back on the
same endpoint.`,
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

			entry, err := engine.Stop(cmd.Context(), cwd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Stopped %s\n", entry.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory the server is registered in")
	return cmd
}
