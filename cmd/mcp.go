package cmd

import (
	"devfleet/internal/config"
	"devfleet/internal/mcp"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"

	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the fleet over MCP on stdio",
		Long: `mcp exposes the registry and lifecycle operations as MCP tools over
stdio, for agents and editor integrations. The process stays in the
foreground until its stdin closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registryPath, err := config.RegistryPath()
			if err != nil {
				return err
			}
			store := registry.NewStore(registryPath)

			server := mcp.NewServer(store, supervisor.NewPM2(), GetVersion())
			return server.Serve(cmd.Context())
		},
	}
}
