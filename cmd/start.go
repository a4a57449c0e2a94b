package cmd

import (
	"os"

	"devfleet/internal/cli"
	"devfleet/internal/reconcile"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var (
		name       string
		cwdFlag    string
		port       int
		envFlags   []string
		tags       []string
		desc       string
		sequential bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "start COMMAND",
		Short: "Start a dev server, reusing an existing registration when the identity matches",
		Long: `Start registers and launches a dev server for the given command
template. When a server with the same identity (name or, for unnamed
servers, command and environment) already exists in this directory, the
request is reconciled against it instead: the running process is
reused, restarted, or refreshed depending on what changed.

Templates may reference {{port}}, {{hostname}}, {{url}}, {{https-cert}},
{{https-key}}, user-defined variables from the config, and other
servers via {{server:name}}.`,
		Example: `  devfleet start "npm run dev -- --port {{port}}"
  devfleet start --name api "cargo run -- --listen {{url}}"
  devfleet start --name web --env API_URL={{server:api}} "npm start"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := resolveCwd(cwdFlag)
			if err != nil {
				return err
			}
			env, err := parseEnvFlags(envFlags)
			if err != nil {
				return err
			}

			engine, _, err := newEngine(cwd)
			if err != nil {
				return err
			}

			result, err := engine.StartOrReuse(cmd.Context(), reconcile.StartRequest{
				Name:         name,
				Cwd:          cwd,
				Command:      args[0],
				Env:          env,
				Tags:         tags,
				Description:  desc,
				ExplicitPort: port,
				Sequential:   sequential,
			})
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

	cmd.Flags().StringVarP(&name, "name", "n", "", "logical name for the server (derived from command when omitted)")
	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "working directory to run from (default: current directory)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "explicit port within the configured range")
	cmd.Flags().StringArrayVarP(&envFlags, "env", "e", nil, "environment variable template KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "tag for filtering (repeatable)")
	cmd.Flags().StringVar(&desc, "description", "", "free-form description")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "allocate ports sequentially (for batch/automated starts)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}
