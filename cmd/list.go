package cmd

import (
	"os"

	"devfleet/internal/api"
	"devfleet/internal/cli"
	"devfleet/internal/config"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		filter  api.ListFilter
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered servers with their live status",
		Long: `List shows every registered server together with the supervisor's
view of its process. Filters compose conjunctively; --command accepts
a glob pattern matched against the raw command template.`,
		Example: `  devfleet list
  devfleet list --tag frontend
  devfleet list --cwd ~/work/shop --command "npm*"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Cwd != "" {
				abs, err := resolveCwd(filter.Cwd)
				if err != nil {
					return err
				}
				filter.Cwd = abs
			}

			registryPath, err := config.RegistryPath()
			if err != nil {
				return err
			}
			store := registry.NewStore(registryPath)
			entries := store.Load().List(filter)

			rows := cli.FetchStatuses(cmd.Context(), supervisor.NewPM2(), entries)
			if jsonOut {
				return cli.RenderJSON(os.Stdout, rows)
			}
			cli.RenderServerTable(os.Stdout, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Name, "name", "", "only servers with this exact name")
	cmd.Flags().StringVar(&filter.Tag, "tag", "", "only servers carrying this tag")
	cmd.Flags().StringVar(&filter.Cwd, "cwd", "", "only servers registered in this directory")
	cmd.Flags().StringVar(&filter.Command, "command", "", "only servers whose command matches this glob")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the listing as JSON")
	return cmd
}
