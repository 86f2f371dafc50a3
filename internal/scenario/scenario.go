// Package scenario runs an ordered list of named steps against the live
// backend and tallies pass/fail per step. A failing step never halts the
// run; the aggregate counts are always reported.
package scenario

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcpnrepl/internal/mcp"
	"mcpnrepl/internal/render"
)

// Invoker dispatches one named operation. Satisfied by *client.Dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any, formatted bool) (*mcp.Exchange, error)
}

// Step is one scenario step: an operation, its arguments, and the predicate
// deciding whether the completed exchange counts as a pass. Steps are
// immutable and evaluated strictly in declaration order.
type Step struct {
	Label string         `yaml:"label"`
	Tool  string         `yaml:"tool"`
	Args  map[string]any `yaml:"args"`

	// Expect overrides the default pass predicate. Nil means DefaultPass.
	Expect func(*mcp.Exchange) bool `yaml:"-"`
}

// StepResult records the outcome of one step.
type StepResult struct {
	Label  string
	Passed bool
	Detail string
}

// Result aggregates a scenario run.
type Result struct {
	RunID  string
	Passed int
	Total  int
	Steps  []StepResult
}

// Success reports whether every step passed. CLI callers translate this to
// exit code 0, and 1 otherwise.
func (r Result) Success() bool { return r.Passed == r.Total }

// DefaultPass is the standard step predicate: the exchange completed without
// a transport or protocol error AND its textual payload, if any, does not
// begin with the reserved failure marker. Both layers fail the step
// identically.
func DefaultPass(ex *mcp.Exchange) bool {
	return !ex.Failed() && !mcp.BackendFailed(ex)
}

// Runner executes scenario steps sequentially through an Invoker.
type Runner struct {
	invoker  Invoker
	renderer render.Renderer
	logger   *zap.Logger

	out         io.Writer
	summaryOnly bool
}

// NewRunner creates a runner writing narration to stdout.
func NewRunner(invoker Invoker, renderer render.Renderer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{invoker: invoker, renderer: renderer, logger: logger, out: os.Stdout}
}

// SetOutput redirects narration and the final tally.
func (r *Runner) SetOutput(w io.Writer) { r.out = w }

// SetSummaryOnly suppresses per-step narration. The final aggregate counts
// are never suppressed.
func (r *Runner) SetSummaryOnly(summaryOnly bool) { r.summaryOnly = summaryOnly }

// Run executes every step in order and returns the aggregated result. A
// failing step does not stop the run.
func (r *Runner) Run(ctx context.Context, steps []Step) Result {
	result := Result{RunID: uuid.NewString(), Total: len(steps)}

	if !r.summaryOnly {
		fmt.Fprintln(r.out, r.renderer.Info("Running comprehensive nREPL tests..."))
	}

	for _, step := range steps {
		if !r.summaryOnly {
			fmt.Fprintln(r.out, r.renderer.Info("Running test: "+step.Label))
		}

		ex, err := r.invoker.Invoke(ctx, step.Tool, step.Args, false)

		passed := false
		detail := ""
		switch {
		case err != nil && ex == nil:
			// Local dispatch failure (unknown operation): the predicate
			// never sees an exchange.
			detail = err.Error()
		case step.Expect != nil:
			passed = step.Expect(ex)
		default:
			passed = DefaultPass(ex)
			if !passed {
				if ex.Err != nil {
					detail = ex.Err.Error()
				} else if text, ok := ex.Text(); ok {
					detail = text
				}
			}
		}

		if passed {
			result.Passed++
			if !r.summaryOnly {
				fmt.Fprintln(r.out, r.renderer.Success("✓ "+step.Label))
			}
		} else if !r.summaryOnly {
			msg := "✗ " + step.Label
			if detail != "" {
				msg += ": " + detail
			}
			fmt.Fprintln(r.out, r.renderer.Error(msg))
		}

		result.Steps = append(result.Steps, StepResult{Label: step.Label, Passed: passed, Detail: detail})
		r.logger.Debug("scenario step finished",
			zap.String("run_id", result.RunID),
			zap.String("label", step.Label),
			zap.Bool("passed", passed))
	}

	fmt.Fprintf(r.out, "\nTest Results: %d/%d passed\n", result.Passed, result.Total)
	if result.Success() {
		fmt.Fprintln(r.out, r.renderer.Success("All tests passed!"))
	} else {
		fmt.Fprintln(r.out, r.renderer.Warn(fmt.Sprintf("%d tests failed", result.Total-result.Passed)))
	}

	return result
}

// DefaultSuite is the built-in health suite run against the backend.
func DefaultSuite() []Step {
	return []Step{
		{Label: "Connection Status", Tool: "nrepl-status", Args: map[string]any{}},
		{Label: "Basic Arithmetic", Tool: "nrepl-eval", Args: map[string]any{"code": "(+ 1 2 3)"}},
		{Label: "String Operations", Tool: "nrepl-eval", Args: map[string]any{"code": `(str "Hello" " " "World")`}},
		{Label: "Data Structures", Tool: "nrepl-eval", Args: map[string]any{"code": "(count [1 2 3 4 5])"}},
		{Label: "Function Definition", Tool: "nrepl-eval", Args: map[string]any{"code": "(defn test-fn [x] (* x 2))"}},
		{Label: "Function Call", Tool: "nrepl-eval", Args: map[string]any{"code": "(test-fn 21)"}},
		{Label: "Comprehensive Health Test", Tool: "nrepl-test", Args: map[string]any{}},
	}
}

// LoadSuite reads a custom suite from a YAML file: a list of steps with
// label, tool, and optional args. Loaded steps use the default pass
// predicate.
func LoadSuite(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load suite: %w", err)
	}

	var steps []Step
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("suite %s contains no steps", path)
	}
	for i, step := range steps {
		if step.Label == "" {
			return nil, fmt.Errorf("suite %s: step %d has no label", path, i+1)
		}
		if step.Tool == "" {
			return nil, fmt.Errorf("suite %s: step %q has no tool", path, step.Label)
		}
	}
	return steps, nil
}
