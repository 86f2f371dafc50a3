// Package mcp implements the client side of the MCP (Model Context Protocol)
// control protocol: a JSON-RPC 2.0 request/response exchange used to invoke
// named operations on a remote nREPL evaluation backend.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
)

// ProtocolVersion is the fixed protocol version sent in the initialize handshake.
const ProtocolVersion = "2024-11-05"

// FailureMarker is the reserved prefix the backend puts on the textual payload
// of a structurally successful result to signal that the evaluated operation
// itself failed.
const FailureMarker = "❌"

// ToolSchema is the raw operation descriptor advertised by the server in a
// tools/list result.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// InputSchema is the parsed parameter schema of a tool. Properties carry the
// per-parameter JSON schemas; Required lists the mandatory parameter names.
type InputSchema struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// Capabilities reports what the server advertised during the handshake.
type Capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
}

// Exchange is one correlated request/response pair. Exactly one of Result and
// Err is populated once the exchange completes; exchanges are never reused.
type Exchange struct {
	ID     int
	Method string
	Params any

	Result json.RawMessage
	Err    error // *TransportError or *RPCError
}

// Failed reports whether the exchange completed with a transport or protocol
// error.
func (e *Exchange) Failed() bool {
	return e == nil || e.Err != nil
}

// Text extracts the textual payload of a successful tools/call result, i.e.
// the first content item of type "text". The second return is false when the
// exchange failed or the result carries no textual content.
func (e *Exchange) Text() (string, bool) {
	if e == nil || e.Err != nil || len(e.Result) == 0 {
		return "", false
	}
	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(e.Result, &payload); err != nil {
		return "", false
	}
	for _, item := range payload.Content {
		if item.Type == "text" {
			return item.Text, true
		}
	}
	return "", false
}

// BackendFailed reports whether a structurally successful exchange carries a
// textual payload starting with the reserved failure marker. Distinct from a
// protocol error: the transport and envelope succeeded but the evaluated
// operation itself failed.
func BackendFailed(e *Exchange) bool {
	text, ok := e.Text()
	return ok && strings.HasPrefix(text, FailureMarker)
}

// Transport sends one request and receives the correlated response. The call
// blocks until a response or a terminal transport failure is available; on
// failure the returned Exchange carries a *TransportError and no result.
// Implementations assume a single in-flight exchange per client instance.
type Transport interface {
	Exchange(ctx context.Context, id int, method string, params any) *Exchange
	Close() error
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func newRequest(id int, method string, params any) rpcRequest {
	if params == nil {
		params = map[string]any{}
	}
	return rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// complete fills in the exchange from a decoded response envelope, verifying
// the correlation id.
func (e *Exchange) complete(resp *rpcResponse) {
	if resp.ID != e.ID {
		e.Err = &TransportError{Kind: TransportFrame, Cause: "response id mismatch"}
		return
	}
	if resp.Error != nil {
		e.Err = resp.Error
		return
	}
	e.Result = resp.Result
}
