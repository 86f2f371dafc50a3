// Package client implements the protocol session, the cached operation
// catalog, and the command dispatcher that bridges named operations to the
// transport.
package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"mcpnrepl/internal/mcp"
	"mcpnrepl/internal/render"
)

// Operation is one server-advertised callable operation with its parameter
// schema. Required and Optional hold parameter names; the catalog's schema is
// advisory for display and completion only, never enforced before send.
type Operation struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
	Optional    []string `json:"optional,omitempty"`
}

// ParamList returns the display form of the parameters: required names first
// with a trailing "*" marker, then optional names.
func (op Operation) ParamList() []string {
	params := make([]string, 0, len(op.Required)+len(op.Optional))
	for _, p := range op.Required {
		params = append(params, p+"*")
	}
	params = append(params, op.Optional...)
	return params
}

// Catalog is an immutable-per-refresh snapshot of the server's operations.
// Order is the server-reported order; a refresh replaces the whole catalog
// atomically.
type Catalog struct {
	ops   []Operation
	index map[string]int
}

// NewCatalog builds a catalog from already-parsed operations.
func NewCatalog(ops []Operation) *Catalog {
	index := make(map[string]int, len(ops))
	for i, op := range ops {
		index[op.Name] = i
	}
	return &Catalog{ops: ops, index: index}
}

// ParseCatalog builds a catalog from raw tools/list descriptors. Parameter
// names inside one operation are not ordered on the wire (JSON object keys),
// so optional parameters are sorted; required parameters keep the server's
// array order. Descriptors with unparseable schemas keep an empty parameter
// list rather than failing the refresh.
func ParseCatalog(schemas []mcp.ToolSchema) *Catalog {
	ops := make([]Operation, 0, len(schemas))
	for _, schema := range schemas {
		op := Operation{Name: schema.Name, Description: schema.Description}
		if len(schema.InputSchema) > 0 {
			var input mcp.InputSchema
			if err := json.Unmarshal(schema.InputSchema, &input); err == nil {
				requiredSet := make(map[string]bool, len(input.Required))
				for _, name := range input.Required {
					if _, declared := input.Properties[name]; declared {
						op.Required = append(op.Required, name)
						requiredSet[name] = true
					}
				}
				for name := range input.Properties {
					if !requiredSet[name] {
						op.Optional = append(op.Optional, name)
					}
				}
				sort.Strings(op.Optional)
			}
		}
		ops = append(ops, op)
	}
	return NewCatalog(ops)
}

// Find looks up an operation by exact name match.
func (c *Catalog) Find(name string) (Operation, bool) {
	i, ok := c.index[name]
	if !ok {
		return Operation{}, false
	}
	return c.ops[i], true
}

// Names returns the operation names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.ops))
	for i, op := range c.ops {
		names[i] = op.Name
	}
	return names
}

// Describe composes a human-readable description of one operation. The
// second return is false when the operation is absent.
func (c *Catalog) Describe(name string) (string, bool) {
	op, ok := c.Find(name)
	if !ok {
		return "", false
	}
	desc := op.Description
	if desc == "" {
		desc = "No description"
	}
	params := "none"
	if list := op.ParamList(); len(list) > 0 {
		params = strings.Join(list, ", ")
	}
	return fmt.Sprintf("%s: %s\n  parameters: %s", op.Name, desc, params), true
}

// Len returns the number of operations in the snapshot.
func (c *Catalog) Len() int { return len(c.ops) }

// Operations returns a copy of the catalog entries in catalog order.
func (c *Catalog) Operations() []Operation {
	out := make([]Operation, len(c.ops))
	copy(out, c.ops)
	return out
}

// Rows prepares the catalog for table display.
func (c *Catalog) Rows() []render.ToolRow {
	rows := make([]render.ToolRow, len(c.ops))
	for i, op := range c.ops {
		rows[i] = render.ToolRow{
			Name:        op.Name,
			Description: op.Description,
			Params:      op.ParamList(),
		}
	}
	return rows
}
