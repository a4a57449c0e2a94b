// Package mcp exposes the fleet operations as MCP tools over stdio so
// AI assistants and other MCP clients can manage dev servers through
// the same engine the CLI uses. Drift prompts are auto-declined here;
// the drift diff is returned in the tool result for the client to act
// on with an explicit refresh.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"devfleet/internal/api"
	"devfleet/internal/cli"
	"devfleet/internal/config"
	"devfleet/internal/reconcile"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"
	"devfleet/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server bridges MCP clients to the reconciliation engine.
type Server struct {
	store     *registry.Store
	sup       supervisor.Supervisor
	cache     *RegistryCache
	mcpServer *server.MCPServer
	version   string
}

// NewServer creates the MCP server and registers its tools.
func NewServer(store *registry.Store, sup supervisor.Supervisor, version string) *Server {
	s := &Server{
		store:   store,
		sup:     sup,
		cache:   NewRegistryCache(store),
		version: version,
	}

	s.mcpServer = server.NewMCPServer(
		"devfleet",
		version,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// Serve runs the stdio transport until the client disconnects. The
// registry watcher runs alongside and stops with the context.
func (s *Server) Serve(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.cache.Watch(watchCtx); err != nil {
			logging.Warn("MCPServer", "Registry watch unavailable: %v", err)
		}
	}()

	logging.Info("MCPServer", "Serving MCP tools over stdio")
	return server.ServeStdio(s.mcpServer)
}

// engineFor builds an engine with configuration merged for the given
// working directory. Config is re-loaded per call so a long-lived MCP
// session observes config edits the same way fresh CLI invocations do.
func (s *Server) engineFor(cwd string) (*reconcile.Engine, error) {
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	return reconcile.New(s.store, cfg, s.sup, reconcile.Options{}), nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_server",
		mcp.WithDescription("Start a dev server, reusing or reconciling an existing registration for the same identity"),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command template, e.g. 'npm run dev -- --port {{port}}'")),
		mcp.WithString("cwd", mcp.Required(), mcp.Description("Absolute working directory the server runs from")),
		mcp.WithString("name", mcp.Description("Logical name; derived from command and env when omitted")),
		mcp.WithNumber("port", mcp.Description("Explicit port within the configured range")),
		mcp.WithObject("env", mcp.Description("Environment variable templates")),
		mcp.WithBoolean("sequential", mcp.Description("Use sequential port allocation (for batch starts)")),
	), s.handleStart)

	s.mcpServer.AddTool(mcp.NewTool("list_servers",
		mcp.WithDescription("List registered dev servers with live process status"),
		mcp.WithString("name", mcp.Description("Filter by exact name")),
		mcp.WithString("tag", mcp.Description("Filter by tag membership")),
		mcp.WithString("cwd", mcp.Description("Filter by exact working directory")),
		mcp.WithString("command", mcp.Description("Filter by glob-style command pattern")),
	), s.handleList)

	s.mcpServer.AddTool(mcp.NewTool("get_server",
		mcp.WithDescription("Describe one registered server, including live process status"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Server name")),
		mcp.WithString("cwd", mcp.Description("Working directory to resolve the name in")),
	), s.handleGet)

	s.mcpServer.AddTool(mcp.NewTool("restart_server",
		mcp.WithDescription("Restart a registered server, reconciling configuration drift per policy"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Server name")),
		mcp.WithString("cwd", mcp.Description("Working directory to resolve the name in")),
	), s.handleRestart)

	s.mcpServer.AddTool(mcp.NewTool("refresh_server",
		mcp.WithDescription("Re-resolve a server's templates against current configuration and restart it"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Server name")),
		mcp.WithString("cwd", mcp.Description("Working directory to resolve the name in")),
	), s.handleRefresh)

	s.mcpServer.AddTool(mcp.NewTool("stop_server",
		mcp.WithDescription("Stop a server's process, keeping its registration"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Server name")),
		mcp.WithString("cwd", mcp.Description("Working directory to resolve the name in")),
	), s.handleStop)

	s.mcpServer.AddTool(mcp.NewTool("remove_server",
		mcp.WithDescription("Stop a server and delete its registration"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Server name")),
		mcp.WithString("cwd", mcp.Description("Working directory to resolve the name in")),
		mcp.WithBoolean("keep_running", mcp.Description("Leave the process running, only forget it")),
	), s.handleRemove)
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cwd, err := request.RequireString("cwd")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := reconcile.StartRequest{
		Name:         request.GetString("name", ""),
		Cwd:          cwd,
		Command:      command,
		ExplicitPort: request.GetInt("port", 0),
		Sequential:   request.GetBool("sequential", false),
	}
	if envRaw, ok := request.GetArguments()["env"].(map[string]interface{}); ok {
		req.Env = map[string]string{}
		for k, v := range envRaw {
			req.Env[k] = fmt.Sprintf("%v", v)
		}
	}

	engine, err := s.engineFor(cwd)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := engine.StartOrReuse(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.cache.Invalidate()
	return jsonResult(result)
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := api.ListFilter{
		Name:    request.GetString("name", ""),
		Tag:     request.GetString("tag", ""),
		Cwd:     request.GetString("cwd", ""),
		Command: request.GetString("command", ""),
	}

	entries := s.cache.Snapshot().List(filter)
	rows := cli.FetchStatuses(ctx, s.sup, entries)
	return jsonResult(rows)
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cwd := request.GetString("cwd", "")

	engine, err := s.engineFor(cwd)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, info, err := engine.Describe(ctx, cwd, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cli.ServerRow{Entry: *entry, Info: info})
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleLifecycle(ctx, request, func(engine *reconcile.Engine, cwd, name string) (interface{}, error) {
		return engine.Restart(ctx, cwd, name)
	})
}

func (s *Server) handleRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleLifecycle(ctx, request, func(engine *reconcile.Engine, cwd, name string) (interface{}, error) {
		return engine.Refresh(ctx, cwd, name)
	})
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleLifecycle(ctx, request, func(engine *reconcile.Engine, cwd, name string) (interface{}, error) {
		return engine.Stop(ctx, cwd, name)
	})
}

func (s *Server) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keepRunning := request.GetBool("keep_running", false)
	return s.handleLifecycle(ctx, request, func(engine *reconcile.Engine, cwd, name string) (interface{}, error) {
		return engine.Remove(ctx, cwd, name, keepRunning)
	})
}

func (s *Server) handleLifecycle(ctx context.Context, request mcp.CallToolRequest, op func(*reconcile.Engine, string, string) (interface{}, error)) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cwd := request.GetString("cwd", "")

	engine, err := s.engineFor(cwd)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := op(engine, cwd, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.cache.Invalidate()
	return jsonResult(result)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
