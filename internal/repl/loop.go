package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mcpnrepl/internal/client"
	"mcpnrepl/internal/render"
	"mcpnrepl/internal/scenario"
)

// Prompt is the interactive prompt string.
const Prompt = "nrepl> "

// historyDisplayCount bounds the "history" command output.
const historyDisplayCount = 10

// State is the loop's execution state.
type State int

const (
	StateAwaitingInput State = iota
	StateDispatching
	StateClosed
)

// commandWords is the fixed command set recognized by the loop.
var commandWords = []string{
	"eval", "status", "tools", "tool", "describe", "test", "history", "clear", "quit",
}

// Commands returns the fixed command-word set, used for completion.
func Commands() []string {
	out := make([]string, len(commandWords))
	copy(out, commandWords)
	return out
}

// Loop is the interactive command loop. It is single-threaded and
// cooperative: each iteration blocks on one line read, dispatches at most one
// exchange, and returns to awaiting input. A per-command error never
// terminates the loop.
type Loop struct {
	dispatcher *client.Dispatcher
	runner     *scenario.Runner
	history    *client.History
	renderer   render.Renderer
	reader     LineReader
	logger     *zap.Logger

	out   io.Writer
	state State
}

// New creates the loop writing to stdout.
func New(dispatcher *client.Dispatcher, runner *scenario.Runner, history *client.History,
	renderer render.Renderer, reader LineReader, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		dispatcher: dispatcher,
		runner:     runner,
		history:    history,
		renderer:   renderer,
		reader:     reader,
		logger:     logger,
		out:        os.Stdout,
	}
}

// SetOutput redirects the loop's own output. Dispatcher and runner output is
// routed separately.
func (l *Loop) SetOutput(w io.Writer) { l.out = w }

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

// Run drives the loop until quit, end-of-input, or interrupt. On close the
// history is persisted best-effort: a persistence failure is logged, never
// fatal.
func (l *Loop) Run(ctx context.Context) error {
	l.printBanner()
	l.state = StateAwaitingInput

	for {
		line, err := l.reader.ReadLine()
		if err != nil {
			// End-of-input or interrupt at the prompt closes the loop.
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		l.state = StateDispatching
		quit := l.execute(ctx, line)
		if quit {
			break
		}
		l.state = StateAwaitingInput
	}

	l.state = StateClosed
	if err := l.history.Save(); err != nil {
		l.logger.Warn("failed to persist history", zap.Error(err))
	}
	_ = l.reader.Close()
	fmt.Fprintln(l.out, l.renderer.Info("Goodbye!"))
	return nil
}

// execute runs one tokenized command. The return value reports an explicit
// quit.
func (l *Loop) execute(ctx context.Context, line string) bool {
	word, rest := splitCommand(line)

	switch strings.ToLower(word) {
	case "quit", "exit":
		return true

	case "eval":
		if rest == "" {
			fmt.Fprintln(l.out, l.renderer.Error("Usage: eval <clojure-code>"))
			return false
		}
		_, _ = l.dispatcher.EvalCode(ctx, rest, "", true)

	case "status":
		_, _ = l.dispatcher.Status(ctx, true)

	case "tools":
		_ = l.dispatcher.PrintCatalog(ctx, "table")

	case "describe":
		if rest == "" {
			fmt.Fprintln(l.out, l.renderer.Error("Usage: describe <tool-name>"))
			return false
		}
		desc, ok := l.dispatcher.Session().Catalog().Describe(rest)
		if !ok {
			fmt.Fprintln(l.out, l.renderer.Error(fmt.Sprintf("Tool %q not found", rest)))
			return false
		}
		fmt.Fprintln(l.out, desc)

	case "tool":
		l.invokeNamed(ctx, rest)

	case "test":
		_ = l.runner.Run(ctx, scenario.DefaultSuite())

	case "history":
		entries := l.history.Last(historyDisplayCount)
		if len(entries) == 0 {
			fmt.Fprintln(l.out, l.renderer.Info("No evaluation history"))
			return false
		}
		fmt.Fprintln(l.out, "Evaluation History:")
		for i, entry := range entries {
			fmt.Fprintf(l.out, "  %s. %s\n", strconv.Itoa(i+1), entry)
		}

	case "clear":
		fmt.Fprint(l.out, "\033[2J\033[H")

	default:
		fmt.Fprintln(l.out, l.renderer.Error("Unknown command: "+word))
	}
	return false
}

// invokeNamed handles "tool <name> [json-args]": arguments are parsed
// locally; malformed JSON never reaches the transport.
func (l *Loop) invokeNamed(ctx context.Context, rest string) {
	if rest == "" {
		fmt.Fprintln(l.out, l.renderer.Error("Usage: tool <name> [json-args]"))
		return
	}
	name, rawArgs := splitCommand(rest)
	args, err := client.ParseArguments(rawArgs)
	if err != nil {
		fmt.Fprintln(l.out, l.renderer.Error("Invalid JSON arguments"))
		return
	}
	_, _ = l.dispatcher.Invoke(ctx, name, args, true)
}

func (l *Loop) printBanner() {
	fmt.Fprintln(l.out, "Interactive MCP-nREPL Client")
	fmt.Fprintln(l.out, "Commands:")
	fmt.Fprintln(l.out, "  eval <clojure-code>     - Evaluate Clojure code")
	fmt.Fprintln(l.out, "  status                  - Show nREPL server status")
	fmt.Fprintln(l.out, "  tools                   - List available tools")
	fmt.Fprintln(l.out, "  tool <name> [args]      - Call a specific tool")
	fmt.Fprintln(l.out, "  describe <name>         - Show a tool's parameters")
	fmt.Fprintln(l.out, "  test                    - Run comprehensive tests")
	fmt.Fprintln(l.out, "  history                 - Show evaluation history")
	fmt.Fprintln(l.out, "  clear                   - Clear screen")
	fmt.Fprintln(l.out, "  quit                    - Exit")
	fmt.Fprintln(l.out)
}

// splitCommand tokenizes a line into the command word and the raw tail.
func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
