package client

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpnrepl/internal/mcp"
	"mcpnrepl/internal/render"
)

func newTestDispatcher(t *testing.T, tr *stubTransport) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	session := NewSession(tr, "stub", nil)
	history := NewHistory(filepath.Join(t.TempDir(), ".mcp_history"))
	d := NewDispatcher(session, history, render.Plain{}, nil)

	var out bytes.Buffer
	d.SetOutput(&out)
	return d, &out
}

func TestInvokeUnknownOperationMakesNoTransportCall(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil)
	d, _ := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	sent := len(tr.calls)
	ex, err := d.Invoke(context.Background(), "no-such-tool", nil, false)

	var unknown *UnknownOperationError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no-such-tool", unknown.Name)
	assert.Nil(t, ex)
	// The transport stub must observe zero additional invocations.
	assert.Len(t, tr.calls, sent)
}

func TestInvokeReachesTransportExactlyOnce(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), map[string]string{"nrepl-status": "ok"})
	d, _ := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	sent := len(tr.calls)
	ex, err := d.Invoke(context.Background(), "nrepl-status", map[string]any{}, false)
	require.NoError(t, err)
	require.NotNil(t, ex)
	assert.Len(t, tr.calls, sent+1, "exactly one transport call, no implicit retries")
	assert.Equal(t, "tools/call", tr.calls[len(tr.calls)-1].Method)
}

func TestInvokeSurfacesProtocolErrorUnmodified(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil) // no replies: tools/call errors
	d, _ := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	ex, err := d.Invoke(context.Background(), "nrepl-status", nil, false)
	require.Error(t, err)
	require.NotNil(t, ex)

	var rpcErr *mcp.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestEvalCodeEndToEnd(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), map[string]string{"nrepl-eval": "6"})
	d, out := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	ex, err := d.EvalCode(context.Background(), "(+ 1 2 3)", "", true)
	require.NoError(t, err)

	text, ok := ex.Text()
	require.True(t, ok)
	assert.Equal(t, "6", text)
	assert.Contains(t, out.String(), "6")

	assert.Equal(t, []string{"(+ 1 2 3)"}, d.History().Last(1))
}

func TestEvalCodeRecordsBackendReportedFailures(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), map[string]string{
		"nrepl-eval": mcp.FailureMarker + " Unable to resolve symbol: nope",
	})
	d, _ := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	ex, err := d.EvalCode(context.Background(), "(nope)", "", false)
	require.NoError(t, err)
	assert.True(t, mcp.BackendFailed(ex))
	// Backend-reported evaluation errors still land in history.
	assert.Equal(t, []string{"(nope)"}, d.History().Last(1))
}

func TestEvalCodeSkipsHistoryOnTransportFailure(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil)
	d, _ := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	tr.handler = func(id int, method string, params any) *mcp.Exchange {
		return &mcp.Exchange{
			ID: id, Method: method, Params: params,
			Err: &mcp.TransportError{Kind: mcp.TransportTimeout},
		}
	}

	_, err := d.EvalCode(context.Background(), "(+ 1 1)", "", false)
	require.Error(t, err)
	assert.Zero(t, d.History().Len())
}

func TestEvalCodePassesNamespace(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), map[string]string{"nrepl-eval": "ok"})
	d, _ := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))

	_, err := d.EvalCode(context.Background(), "(def x 1)", "user.core", false)
	require.NoError(t, err)

	last := tr.calls[len(tr.calls)-1]
	args := last.Params.(map[string]any)["arguments"].(map[string]any)
	assert.Equal(t, "user.core", args["ns"])
	assert.Equal(t, "(def x 1)", args["code"])
}

func TestQuietModePrintsBarePayloadOnly(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), map[string]string{"nrepl-eval": "3"})
	d, out := newTestDispatcher(t, tr)
	require.NoError(t, d.Session().RefreshCatalog(context.Background()))
	d.SetQuiet(true)

	_, err := d.EvalCode(context.Background(), "(+ 1 2)", "", false)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out.String())
}

func TestPrintCatalogFormats(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, evalSchemas(), nil)
	d, out := newTestDispatcher(t, tr)

	// Empty catalog triggers one refresh before listing.
	require.NoError(t, d.PrintCatalog(context.Background(), "text"))
	assert.Contains(t, out.String(), "nrepl-eval")
	assert.Contains(t, out.String(), "code*")

	out.Reset()
	require.NoError(t, d.PrintCatalog(context.Background(), "json"))
	assert.Contains(t, out.String(), `"name": "nrepl-eval"`)
}

func TestPrintCatalogEmptyAfterRefreshIsError(t *testing.T) {
	tr := &stubTransport{}
	tr.handler = backendStub(t, nil, nil)
	d, _ := newTestDispatcher(t, tr)

	assert.Error(t, d.PrintCatalog(context.Background(), "text"))
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(`{"code": "(+ 1 2)"}`)
	require.NoError(t, err)
	assert.Equal(t, "(+ 1 2)", args["code"])

	args, err = ParseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseArguments("{not json")
	var parseErr *ArgumentParseError
	require.ErrorAs(t, err, &parseErr)
}
