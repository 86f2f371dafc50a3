package client

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpnrepl/internal/mcp"
)

type recordedCall struct {
	ID     int
	Method string
	Params any
}

// stubTransport records every exchange and answers from a handler. The
// default handler answers initialize with an empty result, tools/list with
// the configured tool set, and tools/call by echoing text per tool name.
type stubTransport struct {
	calls   []recordedCall
	handler func(id int, method string, params any) *mcp.Exchange
	closed  bool
}

func (s *stubTransport) Exchange(_ context.Context, id int, method string, params any) *mcp.Exchange {
	s.calls = append(s.calls, recordedCall{ID: id, Method: method, Params: params})
	if s.handler != nil {
		return s.handler(id, method, params)
	}
	return &mcp.Exchange{ID: id, Method: method, Params: params, Result: json.RawMessage(`{}`)}
}

func (s *stubTransport) Close() error {
	s.closed = true
	return nil
}

// backendStub builds a handler for a fixed tool set. tools/call answers with
// the text registered for the called tool.
func backendStub(t *testing.T, schemas []mcp.ToolSchema, replies map[string]string) func(int, string, any) *mcp.Exchange {
	t.Helper()
	return func(id int, method string, params any) *mcp.Exchange {
		ex := &mcp.Exchange{ID: id, Method: method, Params: params}
		switch method {
		case "initialize":
			ex.Result = json.RawMessage(`{"capabilities":{"tools":{}},"serverInfo":{"name":"stub","version":"0.0.1"}}`)
		case "tools/list":
			payload, err := json.Marshal(map[string]any{"tools": schemas})
			require.NoError(t, err)
			ex.Result = payload
		case "tools/call":
			name := params.(map[string]any)["name"].(string)
			text, ok := replies[name]
			if !ok {
				ex.Err = &mcp.RPCError{Code: -32601, Message: "Method not found"}
				return ex
			}
			payload, err := json.Marshal(map[string]any{
				"content": []map[string]any{{"type": "text", "text": text}},
			})
			require.NoError(t, err)
			ex.Result = payload
		default:
			ex.Err = &mcp.RPCError{Code: -32601, Message: "Method not found"}
		}
		return ex
	}
}

func evalSchemas() []mcp.ToolSchema {
	return []mcp.ToolSchema{
		{
			Name:        "nrepl-eval",
			Description: "Evaluate Clojure code",
			InputSchema: json.RawMessage(`{"properties":{"code":{"type":"string"},"ns":{"type":"string"}},"required":["code"]}`),
		},
		{Name: "nrepl-status", Description: "Server status"},
		{Name: "nrepl-test", Description: "Comprehensive health test"},
	}
}

func TestConnectHandshakeAndCatalogRefresh(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil)

	s := NewSession(tr, "http://localhost:3000/mcp", nil)
	require.False(t, s.Initialized())

	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.Initialized())
	assert.Equal(t, []string{"nrepl-eval", "nrepl-status", "nrepl-test"}, s.Catalog().Names())

	// Handshake then refresh, with strictly increasing ids and no gaps.
	require.Len(t, tr.calls, 2)
	assert.Equal(t, "initialize", tr.calls[0].Method)
	assert.Equal(t, "tools/list", tr.calls[1].Method)
	assert.Equal(t, 1, tr.calls[0].ID)
	assert.Equal(t, 2, tr.calls[1].ID)
}

func TestConnectFailureLeavesSessionUninitialized(t *testing.T) {
	tr := &stubTransport{
		handler: func(id int, method string, params any) *mcp.Exchange {
			return &mcp.Exchange{
				ID: id, Method: method, Params: params,
				Err: &mcp.TransportError{Kind: mcp.TransportTimeout},
			}
		},
	}

	s := NewSession(tr, "http://localhost:3000/mcp", nil)
	err := s.Connect(context.Background())
	require.Error(t, err)

	var terr *mcp.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, mcp.TransportTimeout, terr.Kind)

	assert.False(t, s.Initialized())
	assert.Zero(t, s.Catalog().Len())
	// No refresh is attempted after a failed handshake.
	assert.Len(t, tr.calls, 1)
}

func TestRefreshCatalogFailureKeepsPreviousCatalog(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil)

	s := NewSession(tr, "http://localhost:3000/mcp", nil)
	require.NoError(t, s.Connect(context.Background()))
	before := s.Catalog().Names()

	tr.handler = func(id int, method string, params any) *mcp.Exchange {
		return &mcp.Exchange{
			ID: id, Method: method, Params: params,
			Err: &mcp.TransportError{Kind: mcp.TransportConnect},
		}
	}
	require.Error(t, s.RefreshCatalog(context.Background()))

	if diff := cmp.Diff(before, s.Catalog().Names()); diff != "" {
		t.Fatalf("catalog changed after failed refresh (-before +after):\n%s", diff)
	}
}

func TestRefreshCatalogIdempotentOrdering(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil)

	s := NewSession(tr, "http://localhost:3000/mcp", nil)
	require.NoError(t, s.RefreshCatalog(context.Background()))
	first := s.Catalog().Names()

	require.NoError(t, s.RefreshCatalog(context.Background()))
	second := s.Catalog().Names()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("catalog ordering not idempotent (-first +second):\n%s", diff)
	}
}

func TestRequestIDsStrictlyIncreasingNoGaps(t *testing.T) {
	tr := &stubTransport{}
	s := NewSession(tr, "stub", nil)

	for i := 0; i < 5; i++ {
		ex := s.Exchange(context.Background(), "tools/list", nil)
		// The id assigned by the session appears unchanged on the exchange.
		assert.Equal(t, i+1, ex.ID)
	}
	for i, call := range tr.calls {
		assert.Equal(t, i+1, call.ID, "call %d", i)
	}
}

func TestSessionCloseReleasesTransport(t *testing.T) {
	tr := &stubTransport{}
	s := NewSession(tr, "stub", nil)
	require.NoError(t, s.Close())
	assert.True(t, tr.closed)
}

func TestRefreshCatalogParseFailure(t *testing.T) {
	tr := &stubTransport{
		handler: func(id int, method string, params any) *mcp.Exchange {
			return &mcp.Exchange{ID: id, Method: method, Params: params, Result: json.RawMessage(`"garbage"`)}
		},
	}
	s := NewSession(tr, "stub", nil)
	err := s.RefreshCatalog(context.Background())
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "parse operation list")
}
