package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mcpnrepl/internal/client"
	"mcpnrepl/internal/config"
	"mcpnrepl/internal/mcp"
	"mcpnrepl/internal/render"
	"mcpnrepl/internal/repl"
	"mcpnrepl/internal/scenario"
)

var (
	// Global flags
	serverURL    string
	stdioCommand string
	cfgFile      string
	timeout      time.Duration
	pretty       bool
	quiet        bool
	verbose      bool

	// Per-command flags
	evalNS      string
	callArgs    string
	listFormat  string
	summaryOnly bool
	suitePath   string

	// Logger
	logger *zap.Logger
)

// rootCmd is the base command. Without a subcommand it connects, lists the
// available tools, and prints a usage hint.
var rootCmd = &cobra.Command{
	Use:   "mcpnrepl",
	Short: "MCP client for nREPL evaluation servers",
	Long: `mcpnrepl talks JSON-RPC to an MCP server fronting an nREPL backend.

It evaluates Clojure code, inspects the server's tool catalog, runs the
built-in health suite, and offers an interactive evaluation loop. The local
server process can be managed with the server subcommand.

Run without arguments to list the server's tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else if quiet {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		if err := app.dispatcher.PrintCatalog(ctx, "table"); err != nil {
			return err
		}
		if !quiet {
			fmt.Println("\nRun 'mcpnrepl --help' for usage, or 'mcpnrepl repl' for interactive mode.")
		}
		return nil
	},
}

// evalCmd evaluates one code string and exits.
var evalCmd = &cobra.Command{
	Use:   "eval [code]",
	Short: "Evaluate Clojure code and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		code := strings.Join(args, " ")
		ex, err := app.dispatcher.EvalCode(ctx, code, evalNS, pretty)
		if err != nil {
			return err
		}
		if mcp.BackendFailed(ex) {
			return fmt.Errorf("evaluation failed")
		}
		return nil
	},
}

// statusCmd shows the backend status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show nREPL server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		_, err = app.dispatcher.Status(ctx, pretty)
		return err
	},
}

// toolsCmd lists the server's tool catalog.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the server's available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		return app.dispatcher.PrintCatalog(ctx, listFormat)
	},
}

// callCmd invokes one named tool with JSON arguments.
var callCmd = &cobra.Command{
	Use:   "call [tool-name]",
	Short: "Call a specific tool",
	Long: `Calls a named tool with arguments supplied as a JSON object.

Example:
  mcpnrepl call nrepl-eval --args '{"code": "(+ 1 2)"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs, err := client.ParseArguments(callArgs)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		ex, err := app.dispatcher.Invoke(ctx, args[0], toolArgs, pretty)
		if err != nil {
			return err
		}
		if mcp.BackendFailed(ex) {
			return fmt.Errorf("tool reported failure")
		}
		return nil
	},
}

// testCmd runs the scenario suite against the live backend.
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run comprehensive nREPL tests",
	Long: `Runs the built-in health suite, or a custom YAML suite with --suite.

Every step executes regardless of earlier failures; the exit code is 0 only
when all steps pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		steps := scenario.DefaultSuite()
		if suitePath != "" {
			steps, err = scenario.LoadSuite(suitePath)
			if err != nil {
				return err
			}
		}

		app.runner.SetSummaryOnly(summaryOnly)
		result := app.runner.Run(ctx, steps)
		if !result.Success() {
			return fmt.Errorf("%d of %d tests failed", result.Total-result.Passed, result.Total)
		}
		return nil
	},
}

// replCmd starts the interactive loop.
var replCmd = &cobra.Command{
	Use:     "repl",
	Aliases: []string{"interactive"},
	Short:   "Start the interactive evaluation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.close()

		history := app.dispatcher.History()
		if err := history.Load(); err != nil {
			logger.Warn("failed to load history", zap.Error(err))
		}

		candidates := func() []string {
			return append(repl.Commands(), app.session.Catalog().Names()...)
		}
		reader := repl.NewLineReader(repl.Prompt, history.Path(), candidates)
		loop := repl.New(app.dispatcher, app.runner, history, app.renderer, reader, logger)
		return loop.Run(ctx)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "url", "", "MCP server URL (default: "+config.DefaultURL+")")
	pf.StringVar(&stdioCommand, "stdio", "", "Spawn this command and talk MCP over its stdio instead of HTTP")
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./.mcpnrepl.yaml)")
	pf.DurationVar(&timeout, "timeout", 0, "Request timeout (default: 30s)")
	pf.BoolVar(&pretty, "pretty", false, "Pretty formatted output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Minimal output: bare result payloads only")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	evalCmd.Flags().StringVar(&evalNS, "ns", "", "Namespace to evaluate in")
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "Tool arguments as JSON (default: {})")
	toolsCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text, json, or table")
	testCmd.Flags().BoolVar(&summaryOnly, "summary", false, "Show only the aggregate test result")
	testCmd.Flags().StringVar(&suitePath, "suite", "", "Custom YAML test suite")

	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(serverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// commandContext cancels on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// app bundles the wired client stack for one command invocation.
type app struct {
	cfg        *config.Config
	renderer   render.Renderer
	session    *client.Session
	dispatcher *client.Dispatcher
	runner     *scenario.Runner
}

// loadConfig resolves configuration with command-line flags taking precedence
// over environment and file values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("url") {
		cfg.URL = serverURL
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = timeout
	}
	return cfg, nil
}

// newApp wires transport, session, dispatcher, and runner, and performs the
// handshake. The caller owns the returned app and must close it.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	renderer := render.Detect(pretty)

	var transport mcp.Transport
	endpoint := cfg.URL
	if stdioCommand != "" {
		stdio := mcp.NewStdioTransport(stdioCommand, logger)
		if err := stdio.Start(); err != nil {
			return nil, err
		}
		transport = stdio
		endpoint = "stdio:" + stdioCommand
	} else {
		transport = mcp.NewHTTPTransport(cfg.URL, cfg.Timeout, logger)
	}

	session := client.NewSession(transport, endpoint, logger)
	if err := session.Connect(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}

	history := client.NewHistory(cfg.HistoryFile)
	dispatcher := client.NewDispatcher(session, history, renderer, logger)
	dispatcher.SetQuiet(quiet)

	runner := scenario.NewRunner(dispatcher, renderer, logger)

	return &app{
		cfg:        cfg,
		renderer:   renderer,
		session:    session,
		dispatcher: dispatcher,
		runner:     runner,
	}, nil
}

func (a *app) close() {
	if err := a.session.Close(); err != nil {
		logger.Debug("transport close failed", zap.Error(err))
	}
}
