// Package render provides the output formatting strategy for the client.
// Two interchangeable implementations exist: a plain-text renderer and a
// color renderer built on lipgloss. The implementation is selected once at
// startup from terminal capability detection and injected everywhere output
// is produced.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// ToolRow is one catalog entry prepared for display. Params are already
// marked: required parameters carry a trailing "*".
type ToolRow struct {
	Name        string
	Description string
	Params      []string
}

// Renderer turns client events and payloads into printable strings.
type Renderer interface {
	Info(msg string) string
	Success(msg string) string
	Error(msg string) string
	Warn(msg string) string

	// Result renders the payload of a successful exchange. A textual payload
	// that parses as JSON is re-indented for structured display; on parse
	// failure it falls back silently to plain text.
	Result(payload json.RawMessage) string

	// ToolTable renders the operation catalog for human display.
	ToolTable(rows []ToolRow) string
}

// Detect selects the renderer once at startup: color output when requested
// and stdout is a terminal with color not disabled, plain text otherwise.
func Detect(pretty bool) Renderer {
	if pretty && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd()) {
		return NewColor()
	}
	return Plain{}
}

// resultText extracts the textual payload of a tools/call result, or falls
// back to the indented raw payload.
func resultText(payload json.RawMessage) string {
	var content struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(payload, &content); err == nil {
		for _, item := range content.Content {
			if item.Type == "text" {
				return prettyJSON(item.Text)
			}
		}
	}
	return prettyJSON(string(payload))
}

// prettyJSON re-indents s when it is valid JSON; otherwise returns s as-is.
func prettyJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s
	}
	return string(out)
}

// Plain renders without any terminal styling.
type Plain struct{}

func (Plain) Info(msg string) string    { return "ℹ️  " + msg }
func (Plain) Success(msg string) string { return "✅ " + msg }
func (Plain) Error(msg string) string   { return "❌ " + msg }
func (Plain) Warn(msg string) string    { return "⚠️  " + msg }

func (Plain) Result(payload json.RawMessage) string {
	return resultText(payload)
}

func (Plain) ToolTable(rows []ToolRow) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Available Tools (%d):\n", len(rows))
	for i, row := range rows {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, row.Name)
		desc := row.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&sb, "     %s\n", desc)
		if len(row.Params) > 0 {
			fmt.Fprintf(&sb, "     Parameters: %s\n", strings.Join(row.Params, ", "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Color renders with lipgloss styling.
type Color struct {
	info    lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	panel   lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
}

// NewColor creates the color renderer with the default palette.
func NewColor() *Color {
	return &Color{
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2a3850")).
			Padding(0, 1),
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		cell:   lipgloss.NewStyle().Padding(0, 1),
	}
}

func (c *Color) Info(msg string) string    { return c.info.Render("ℹ️  " + msg) }
func (c *Color) Success(msg string) string { return c.success.Render("✅ " + msg) }
func (c *Color) Error(msg string) string   { return c.err.Render("❌ " + msg) }
func (c *Color) Warn(msg string) string    { return c.warn.Render("⚠️  " + msg) }

func (c *Color) Result(payload json.RawMessage) string {
	return c.panel.Render(resultText(payload))
}

func (c *Color) ToolTable(rows []ToolRow) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#2a3850"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return c.header
			}
			return c.cell
		}).
		Headers("Tool Name", "Description", "Parameters")

	for _, row := range rows {
		params := "None"
		if len(row.Params) > 0 {
			params = strings.Join(row.Params, ", ")
		}
		tbl.Row(row.Name, row.Description, params)
	}
	return tbl.Render()
}

var (
	_ Renderer = Plain{}
	_ Renderer = (*Color)(nil)
)
