package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mcpnrepl/internal/client"
	"mcpnrepl/internal/config"
	"mcpnrepl/internal/mcp"
	"mcpnrepl/internal/render"
	"mcpnrepl/internal/supervisor"
)

var (
	serverPort    int
	serverCommand string
	foreground    bool
)

// serverCmd groups local server lifecycle management.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the local MCP server process",
	Long: `Starts, stops, and inspects the local MCP server without touching the
client connection settings. The server's configured command line is launched
in the background with output captured to server_<port>.log; the process is
tracked through server_<port>.pid.`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sup := newSupervisor(cmd)
		if foreground {
			return sup.StartForeground(ctx)
		}
		return sup.Start(ctx)
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newSupervisor(cmd).Stop()
	},
}

var serverRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		return newSupervisor(cmd).Restart(ctx)
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's process and health state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		return newSupervisor(cmd).Status(ctx)
	},
}

// serverHealthCmd runs the backend's own comprehensive health check through
// the supervised server's MCP endpoint.
var serverHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the comprehensive health check",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		sup := newSupervisor(cmd)
		if !sup.IsResponding(ctx) {
			return fmt.Errorf("server not running; start it with: mcpnrepl server start")
		}

		// Point the client at the supervised server, not the configured URL.
		serverURL = sup.EndpointURL()
		if err := cmd.Flags().Set("url", serverURL); err != nil {
			return err
		}

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		ex, err := app.dispatcher.Invoke(ctx, client.OpHealthCheck, nil, pretty)
		if err != nil {
			return err
		}
		if mcp.BackendFailed(ex) {
			return fmt.Errorf("health check reported failure")
		}
		return nil
	},
}

func init() {
	serverCmd.PersistentFlags().IntVar(&serverPort, "port", 0,
		"Server port (default: 3004)")
	serverCmd.PersistentFlags().StringVar(&serverCommand, "command", "",
		"Server command line (overrides the configured server_command)")
	serverStartCmd.Flags().BoolVar(&foreground, "foreground", false,
		"Run the server in the foreground")

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverRestartCmd)
	serverCmd.AddCommand(serverStatusCmd)
	serverCmd.AddCommand(serverHealthCmd)
}

// newSupervisor builds a supervisor from the resolved configuration, with the
// --port flag taking precedence.
func newSupervisor(cmd *cobra.Command) *supervisor.Supervisor {
	port := serverPort
	command := []string(nil)
	if cfg, err := loadConfig(cmd); err == nil {
		if port == 0 {
			port = cfg.ServerPort
		}
		command = cfg.ServerCommand
	}
	if serverCommand != "" {
		command = strings.Fields(serverCommand)
	}
	if port == 0 {
		port = config.DefaultServerPort
	}
	return supervisor.New(port, command, render.Detect(pretty), logger)
}
