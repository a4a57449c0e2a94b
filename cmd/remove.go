package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	var (
		cwdFlag     string
		keepRunning bool
	)

	cmd := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a server from the registry",
		Long: `Remove stops the server's process and deletes its registry entry.
With --keep-running the process is left alone and only the
registration is dropped.`,
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

			entry, err := engine.Remove(cmd.Context(), cwd, args[0], keepRunning)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Removed %s\n", entry.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory the server is registered in")
	cmd.Flags().BoolVar(&keepRunning, "keep-running", false, "leave the process running, only drop the registration")
	return cmd
}
