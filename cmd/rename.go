package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRenameCmd() *cobra.Command {
	var cwdFlag string

	cmd := &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Give a server a new explicit name",
		Long: `Rename changes a server's logical name, keeping its port and the rest
of its registration. The new name is always explicit, even when the
old one was derived from the command.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := resolveCwd(cwdFlag)
			if err != nil {
				return err
			}
			engine, _, err := newEngine(cwd)
			if err != nil {
				return err
			}

			entry, err := engine.Rename(cmd.Context(), cwd, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Renamed %s to %s\n", args[0], entry.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory the server is registered in")
	return cmd
}
