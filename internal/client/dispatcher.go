package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"mcpnrepl/internal/mcp"
	"mcpnrepl/internal/render"
)

// Well-known operations of the nREPL evaluation backend. These are
// server-defined names, looked up through the catalog like any other
// operation, never assumed present.
const (
	OpEval        = "nrepl-eval"
	OpStatus      = "nrepl-status"
	OpTest        = "nrepl-test"
	OpHealthCheck = "nrepl-health-check"
)

// Dispatcher maps a named operation plus argument map to one transport
// exchange. It validates the operation against the cached catalog before
// sending, prints or suppresses output, and records evaluated code in the
// session history.
type Dispatcher struct {
	session  *Session
	history  *History
	renderer render.Renderer
	logger   *zap.Logger

	out   io.Writer
	quiet bool
}

// NewDispatcher creates a dispatcher writing to stdout.
func NewDispatcher(session *Session, history *History, renderer render.Renderer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		session:  session,
		history:  history,
		renderer: renderer,
		logger:   logger,
		out:      os.Stdout,
	}
}

// SetOutput redirects printed output.
func (d *Dispatcher) SetOutput(w io.Writer) { d.out = w }

// SetQuiet suppresses narration. The bare result payload of an invocation is
// still printed so quiet mode stays usable in scripts.
func (d *Dispatcher) SetQuiet(quiet bool) { d.quiet = quiet }

// Session returns the dispatcher's session.
func (d *Dispatcher) Session() *Session { return d.session }

// History returns the session history.
func (d *Dispatcher) History() *History { return d.history }

// Invoke validates name against the current catalog, sends one tools/call
// exchange, and renders the result. An operation absent from the catalog
// fails locally with *UnknownOperationError before any transport call. A
// transport or protocol error is surfaced unmodified alongside the completed
// exchange; the dispatcher never retries.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any, formatted bool) (*mcp.Exchange, error) {
	catalog := d.session.Catalog()
	if _, ok := catalog.Find(name); !ok {
		err := &UnknownOperationError{Name: name, Available: catalog.Names()}
		d.printError(err.Error())
		return nil, err
	}

	if args == nil {
		args = map[string]any{}
	}

	d.narrate("Calling tool: " + name)
	if len(args) > 0 && !d.quiet {
		if pretty, err := json.MarshalIndent(args, "", "  "); err == nil {
			fmt.Fprintf(d.out, "Arguments: %s\n", pretty)
		}
	}

	ex := d.session.Exchange(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if ex.Err != nil {
		d.printError(fmt.Sprintf("Tool call failed: %v", ex.Err))
		d.logger.Debug("invoke failed",
			zap.String("operation", name), zap.Int("id", ex.ID), zap.Error(ex.Err))
		return ex, ex.Err
	}

	d.printResult(ex, formatted)
	return ex, nil
}

// EvalCode evaluates a code string via the backend's evaluation operation.
// Every successfully dispatched evaluation is appended to the history, even
// when the backend reports an evaluation failure; only transport and
// dispatch-level failures are not recorded.
func (d *Dispatcher) EvalCode(ctx context.Context, code, ns string, formatted bool) (*mcp.Exchange, error) {
	args := map[string]any{"code": code}
	if ns != "" {
		args["ns"] = ns
	}
	d.narrate("Evaluating: " + code)

	ex, err := d.Invoke(ctx, OpEval, args, formatted)
	if err == nil {
		d.history.Append(code)
	}
	return ex, err
}

// Status fetches the backend status.
func (d *Dispatcher) Status(ctx context.Context, formatted bool) (*mcp.Exchange, error) {
	return d.Invoke(ctx, OpStatus, map[string]any{}, formatted)
}

// PrintCatalog lists the operation catalog in the requested format: "json",
// "table", or plain "text". An empty catalog triggers one refresh attempt
// before listing; a still-empty catalog is an error.
func (d *Dispatcher) PrintCatalog(ctx context.Context, format string) error {
	catalog := d.session.Catalog()
	if catalog.Len() == 0 {
		if err := d.session.RefreshCatalog(ctx); err != nil {
			d.printError(fmt.Sprintf("Failed to list tools: %v", err))
			return err
		}
		catalog = d.session.Catalog()
	}
	if catalog.Len() == 0 {
		d.printError("No tools available")
		return fmt.Errorf("no tools available")
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(catalog.Operations(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(d.out, string(data))
	case "table":
		fmt.Fprintln(d.out, d.renderer.ToolTable(catalog.Rows()))
	default:
		fmt.Fprintln(d.out, render.Plain{}.ToolTable(catalog.Rows()))
	}
	return nil
}

// printResult renders a successful exchange. Quiet mode prints only the bare
// textual payload; formatted mode routes through the renderer's structured
// display; otherwise the raw result payload is printed indented.
func (d *Dispatcher) printResult(ex *mcp.Exchange, formatted bool) {
	if d.quiet {
		if text, ok := ex.Text(); ok {
			fmt.Fprintln(d.out, text)
		}
		return
	}
	if formatted {
		fmt.Fprintln(d.out, d.renderer.Result(ex.Result))
		return
	}
	var v any
	if err := json.Unmarshal(ex.Result, &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			fmt.Fprintln(d.out, string(pretty))
			return
		}
	}
	fmt.Fprintln(d.out, string(ex.Result))
}

func (d *Dispatcher) narrate(msg string) {
	if !d.quiet {
		fmt.Fprintln(d.out, d.renderer.Info(msg))
	}
}

func (d *Dispatcher) printError(msg string) {
	if !d.quiet {
		fmt.Fprintln(d.out, d.renderer.Error(msg))
	}
}
